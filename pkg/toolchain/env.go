package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/utils"
)

// caExcludePath is the environment variable the analysis engine consults for
// paths whose diagnostics are suppressed.
const caExcludePath = "CAExcludePath"

// EnvExtractor runs the toolchain environment-initialization script and
// reports the variables it exports. Implemented by the runner package; tests
// substitute fakes.
type EnvExtractor interface {
	Extract(scriptPath, archSpec, toolsetVersion string) (map[string]string, error)
}

// sharedEnv composes the environment for one compiler: the ambient process
// environment with the SARIF emission compatibility flag set, optionally
// widened by the INCLUDE/LIB paths the initialization script exports.
// Extracted include paths are also excluded from analysis so implicit
// standard-library headers stay visible to the compiler without adding noise.
func sharedEnv(desc *Descriptor, opts SharedOptions, extractor EnvExtractor, logger *utils.VerboseLogger) ([]string, error) {
	env := os.Environ()
	env = setEnv(env, "CAEmitSarifLog", "1")

	if !opts.ExtractEnvironment {
		return env, nil
	}

	script := filepath.Join(vsRoot(desc.CompilerPath), "VC", "Auxiliary", "Build", "vcvarsall.bat")
	archSpec := desc.TargetArch
	if desc.HostArch != desc.TargetArch {
		archSpec = desc.HostArch + "_" + desc.TargetArch
	}

	logger.Logf("Extracting toolchain environment: %s %s (toolset %s)\n", script, archSpec, desc.ToolsetVersion)
	vars, err := extractor.Extract(script, archSpec, desc.ToolsetVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to extract toolchain environment for %s: %w", desc.CompilerPath, err)
	}

	if include := vars["INCLUDE"]; include != "" {
		env = setEnv(env, "INCLUDE", appendPathList(getEnv(env, "INCLUDE"), include))
		env = setEnv(env, caExcludePath, appendPathList(getEnv(env, caExcludePath), include))
	}
	if lib := vars["LIB"]; lib != "" {
		env = setEnv(env, "LIB", appendPathList(getEnv(env, "LIB"), lib))
	}

	return env, nil
}

// setEnv replaces or appends a NAME=value entry. Names compare
// case-insensitively, matching Windows environment semantics.
func setEnv(env []string, name, value string) []string {
	prefix := strings.ToLower(name) + "="
	for i, entry := range env {
		if strings.HasPrefix(strings.ToLower(entry), prefix) {
			env[i] = name + "=" + value
			return env
		}
	}
	return append(env, name+"="+value)
}

// getEnv reads a value from a NAME=value list, case-insensitively.
func getEnv(env []string, name string) string {
	prefix := strings.ToLower(name) + "="
	for _, entry := range env {
		if strings.HasPrefix(strings.ToLower(entry), prefix) {
			return entry[len(prefix):]
		}
	}
	return ""
}

// appendPathList joins semicolon-delimited path lists, tolerating empty
// operands.
func appendPathList(existing, extra string) string {
	existing = strings.Trim(existing, ";")
	extra = strings.Trim(extra, ";")
	switch {
	case existing == "":
		return extra
	case extra == "":
		return existing
	default:
		return existing + ";" + extra
	}
}
