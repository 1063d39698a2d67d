// Package toolchain resolves MSVC toolchains from CMake File API toolchain
// entries and derives the analyze-mode arguments and environment shared by
// every invocation of one compiler.
package toolchain

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/fileapi"
)

// Language is a compiled language with a resolvable MSVC toolchain.
type Language string

const (
	LanguageC   Language = "C"
	LanguageCXX Language = "CXX"
)

// compilerID is the File API compiler identity of the supported family.
const compilerID = "MSVC"

// IncludePath is one include directory and whether it is a system include.
type IncludePath struct {
	Path     string
	IsSystem bool
}

// Descriptor is a normalized MSVC toolchain: the compiler, its installation
// layout, and the implicit includes the build system already probed.
type Descriptor struct {
	Language         Language
	CompilerPath     string
	CompilerVersion  string
	ImplicitIncludes []IncludePath
	ToolsetVersion   string
	HostArch         string
	TargetArch       string
}

// LayoutError reports a compiler path that does not follow the MSVC
// installation layout this tool derives architectures from.
type LayoutError struct {
	CompilerPath string
	Detail       string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("compiler path %s does not match the MSVC installation layout: %s", e.CompilerPath, e.Detail)
}

// layout is the portion of a Descriptor derivable from the compiler path
// alone.
type layout struct {
	toolsetVersion string
	hostArch       string
	targetArch     string
}

// hostDirArch maps the host-architecture directory names of the MSVC bin
// layout (…\bin\Hostx64\x64\cl.exe) to architecture names.
var hostDirArch = map[string]string{
	"hostx86": "x86",
	"hostx64": "x64",
}

var targetArchNames = map[string]bool{
	"x86": true,
	"x64": true,
}

// parseLayout derives toolset version and architectures from the compiler
// path using the fixed MSVC layout
// <VS>\VC\Tools\MSVC\<toolset>\bin\Host<arch>\<arch>\cl.exe.
// It is a pure function over the path string so synthetic paths exercise
// every failure mode.
func parseLayout(compilerPath string) (layout, error) {
	targetDir := filepath.Dir(compilerPath)
	hostDir := filepath.Dir(targetDir)
	binDir := filepath.Dir(hostDir)
	toolsetDir := filepath.Dir(binDir)

	target := strings.ToLower(filepath.Base(targetDir))
	if !targetArchNames[target] {
		return layout{}, &LayoutError{CompilerPath: compilerPath, Detail: fmt.Sprintf("unrecognized target architecture directory %q", filepath.Base(targetDir))}
	}

	host, ok := hostDirArch[strings.ToLower(filepath.Base(hostDir))]
	if !ok {
		return layout{}, &LayoutError{CompilerPath: compilerPath, Detail: fmt.Sprintf("unrecognized host architecture directory %q", filepath.Base(hostDir))}
	}

	toolset := filepath.Base(toolsetDir)
	if toolset == "." || toolset == string(filepath.Separator) || toolset == "/" {
		return layout{}, &LayoutError{CompilerPath: compilerPath, Detail: "no toolset version directory"}
	}

	return layout{toolsetVersion: toolset, hostArch: host, targetArch: target}, nil
}

// vsRoot climbs from cl.exe to the Visual Studio installation root
// (<VS>\VC\Tools\MSVC\<toolset>\bin\Host<arch>\<arch>\cl.exe).
func vsRoot(compilerPath string) string {
	root := compilerPath
	for i := 0; i < 8; i++ {
		root = filepath.Dir(root)
	}
	return root
}

// Resolve filters the toolchains document to MSVC entries and derives one
// Descriptor per supported language. Entries for other compilers or
// languages are ignored; an empty result is an error because nothing can be
// analyzed.
func Resolve(doc *fileapi.ToolchainsDocument) (map[Language]*Descriptor, error) {
	descriptors := make(map[Language]*Descriptor)

	for _, entry := range doc.Toolchains {
		lang := Language(entry.Language)
		if lang != LanguageC && lang != LanguageCXX {
			continue
		}
		if entry.Compiler.ID != compilerID {
			continue
		}
		if _, exists := descriptors[lang]; exists {
			continue
		}

		lay, err := parseLayout(entry.Compiler.Path)
		if err != nil {
			return nil, err
		}

		desc := &Descriptor{
			Language:        lang,
			CompilerPath:    entry.Compiler.Path,
			CompilerVersion: entry.Compiler.Version,
			ToolsetVersion:  lay.toolsetVersion,
			HostArch:        lay.hostArch,
			TargetArch:      lay.targetArch,
		}
		for _, dir := range entry.Compiler.Implicit.IncludeDirectories {
			desc.ImplicitIncludes = append(desc.ImplicitIncludes, IncludePath{Path: dir, IsSystem: true})
		}

		descriptors[lang] = desc
	}

	if len(descriptors) == 0 {
		return nil, fmt.Errorf("no MSVC toolchain found in the build; only the MSVC compiler family is supported")
	}

	return descriptors, nil
}
