// Package synth turns CMake code-model compile groups into per-file MSVC
// analyze invocations: configuration selection, target exclusion, compile
// unit extraction, and final argument/environment assembly.
package synth

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/fileapi"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/pathutil"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/toolchain"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/utils"
)

// CompileUnit is one source file of a compiled target together with the
// compile-group data needed to analyze it.
type CompileUnit struct {
	SourcePath       string
	Language         toolchain.Language
	LanguageStandard string

	// Fragments is the group's raw command fragments joined into one
	// string; it is re-tokenized during argument assembly.
	Fragments string

	// Includes lists project includes first, in group order. Toolchain
	// implicit includes are appended during argument assembly.
	Includes []toolchain.IncludePath

	Defines []string
}

// Invocation is one unit of work for the external executor: a complete
// analyze command line, its environment, and the SARIF log it must produce.
type Invocation struct {
	SourcePath   string
	CompilerPath string
	Args         []string
	Env          []string
	SarifLog     string
}

// Options configures synthesis for one run.
type Options struct {
	// TargetExcludes drops targets whose source directory falls under any
	// listed path.
	TargetExcludes []string

	// IncludeExcludes marks includes under any listed path as external.
	IncludeExcludes []string

	// IgnoreSystemHeaders marks system includes as external.
	IgnoreSystemHeaders bool
}

// SelectConfiguration picks the configuration to analyze. Multi-config code
// models require an explicit name; a supplied name must match exactly one
// configuration either way.
func SelectConfiguration(model *fileapi.Codemodel, name string) (*fileapi.Configuration, error) {
	if name == "" {
		if len(model.Configurations) > 1 {
			var names []string
			for _, cfg := range model.Configurations {
				names = append(names, cfg.Name)
			}
			return nil, fmt.Errorf("the build has multiple configurations (%s); a configuration name is required", strings.Join(names, ", "))
		}
		return &model.Configurations[0], nil
	}

	for i := range model.Configurations {
		if model.Configurations[i].Name == name {
			return &model.Configurations[i], nil
		}
	}

	return nil, fmt.Errorf("configuration %q not found in the build", name)
}

// CollectUnits walks the configuration's targets and extracts one
// CompileUnit per compiled source. Targets whose source directory is inside
// an excluded path contribute nothing.
func CollectUnits(model *fileapi.Codemodel, cfg *fileapi.Configuration, opts Options, logger *utils.VerboseLogger) ([]CompileUnit, error) {
	var units []CompileUnit

	for _, ref := range cfg.Targets {
		srcDir, err := model.SourceDir(cfg, ref)
		if err != nil {
			return nil, err
		}
		if pathutil.IsWithinAny(pathutil.Normalize(srcDir, ""), opts.TargetExcludes) {
			logger.Logf("Skipping excluded target %s (%s)\n", ref.Name, srcDir)
			continue
		}

		target, err := model.LoadTarget(ref)
		if err != nil {
			return nil, err
		}

		targetUnits, err := extractUnits(model, target)
		if err != nil {
			return nil, err
		}
		units = append(units, targetUnits...)
	}

	return units, nil
}

func extractUnits(model *fileapi.Codemodel, target *fileapi.Target) ([]CompileUnit, error) {
	var units []CompileUnit

	for _, group := range target.CompileGroups {
		var fragments []string
		for _, fragment := range group.CompileCommandFragments {
			fragments = append(fragments, fragment.Fragment)
		}

		var includes []toolchain.IncludePath
		for _, include := range group.Includes {
			includes = append(includes, toolchain.IncludePath{Path: include.Path, IsSystem: include.IsSystem})
		}

		var defines []string
		for _, define := range group.Defines {
			defines = append(defines, define.Define)
		}

		standard := ""
		if group.LanguageStandard != nil {
			standard = group.LanguageStandard.Standard
		}

		for _, index := range group.SourceIndexes {
			if index < 0 || index >= len(target.Sources) {
				return nil, fmt.Errorf("target %s compile group references source %d, but the target has %d sources", target.Name, index, len(target.Sources))
			}
			units = append(units, CompileUnit{
				SourcePath:       pathutil.Normalize(target.Sources[index].Path, model.Paths.Source),
				Language:         toolchain.Language(group.Language),
				LanguageStandard: standard,
				Fragments:        strings.Join(fragments, " "),
				Includes:         includes,
				Defines:          defines,
			})
		}
	}

	return units, nil
}

// BuildInvocations assembles one analyze invocation per compile unit whose
// language has a resolved toolchain. Units in other languages cannot be
// analyzed and are skipped. Log allocation failures clean up every log
// already allocated into logs before returning.
func BuildInvocations(units []CompileUnit, descriptors map[toolchain.Language]*toolchain.Descriptor, shared map[string]*toolchain.Shared, opts Options, logs *LogSet, logger *utils.VerboseLogger) ([]Invocation, error) {
	var invocations []Invocation

	for _, unit := range units {
		desc, ok := descriptors[unit.Language]
		if !ok {
			logger.Logf("Skipping %s: no %s toolchain resolved\n", unit.SourcePath, unit.Language)
			continue
		}

		common, ok := shared[desc.CompilerPath]
		if !ok {
			return nil, fmt.Errorf("no shared arguments built for compiler %s", desc.CompilerPath)
		}

		args, err := unitArgs(unit, desc, opts)
		if err != nil {
			return nil, err
		}

		logPath, err := logs.Allocate()
		if err != nil {
			return nil, err
		}

		args = append(args, unit.SourcePath, toolchain.SarifLogArg(logPath))
		args = append(args, common.Args...)

		invocations = append(invocations, Invocation{
			SourcePath:   unit.SourcePath,
			CompilerPath: desc.CompilerPath,
			Args:         args,
			Env:          common.Env,
			SarifLog:     logPath,
		})
	}

	return invocations, nil
}

// unitArgs renders the unit-specific argument prefix: re-tokenized raw
// fragments, include flags (unit includes then toolchain implicit ones), and
// define flags.
func unitArgs(unit CompileUnit, desc *toolchain.Descriptor, opts Options) ([]string, error) {
	args, err := shlex.Split(unit.Fragments)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize compile fragments for %s: %w", unit.SourcePath, err)
	}

	includes := append(append([]toolchain.IncludePath{}, unit.Includes...), desc.ImplicitIncludes...)
	for _, include := range includes {
		external := (opts.IgnoreSystemHeaders && include.IsSystem) ||
			pathutil.IsWithinAny(include.Path, opts.IncludeExcludes)
		args = append(args, toolchain.IncludeArg(include.Path, external))
	}

	for _, define := range unit.Defines {
		args = append(args, toolchain.DefineArg(define))
	}

	return args, nil
}
