package toolchain

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/shlex"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/utils"
)

// espXEngine is the analysis engine plugin shipped next to the compiler, in
// the binary directory matching the host architecture.
const espXEngine = "EspXEngine.dll"

// officialRulesetDir is the ruleset directory shipped with Visual Studio,
// relative to the installation root.
var officialRulesetDir = filepath.Join("Team Tools", "Static Analysis Tools", "Rule Sets")

// SharedOptions carries the run options that shape the per-toolchain shared
// arguments and environment.
type SharedOptions struct {
	// ProjectRoot anchors project-relative ruleset paths.
	ProjectRoot string

	// Ruleset names a ruleset file; empty runs all checks.
	Ruleset string

	// IgnoreSystemHeaders suppresses analysis warnings from external code.
	IgnoreSystemHeaders bool

	// ExtractEnvironment recovers implicit INCLUDE/LIB paths by running the
	// toolchain initialization script.
	ExtractEnvironment bool

	// AdditionalArgs is a free-form argument string appended last.
	AdditionalArgs string
}

// Shared is the argument suffix and environment common to every invocation
// of one compiler.
type Shared struct {
	Args []string
	Env  []string
}

// BuildSharedTable derives the Shared entry for every distinct compiler path
// among the descriptors. The table is built once, before any dispatch, and
// read-only afterwards, so later parallel dispatch needs no extra locking
// around it.
func BuildSharedTable(descriptors map[Language]*Descriptor, opts SharedOptions, extractor EnvExtractor, logger *utils.VerboseLogger) (map[string]*Shared, error) {
	table := make(map[string]*Shared)

	for _, desc := range descriptors {
		if _, done := table[desc.CompilerPath]; done {
			continue
		}

		args, err := sharedArgs(desc, opts, logger)
		if err != nil {
			return nil, err
		}
		env, err := sharedEnv(desc, opts, extractor, logger)
		if err != nil {
			return nil, err
		}

		table[desc.CompilerPath] = &Shared{Args: args, Env: env}
	}

	return table, nil
}

// sharedArgs composes the analyze-mode argument suffix for one compiler:
// analyze-only quiet SARIF output, the EspX plugin, ruleset selection,
// external-code handling, and any caller-supplied extras.
func sharedArgs(desc *Descriptor, opts SharedOptions, logger *utils.VerboseLogger) ([]string, error) {
	plugin, err := findEspXEngine(desc)
	if err != nil {
		return nil, err
	}

	args := []string{
		"/analyze:only",
		"/analyze:quiet",
		"/analyze:log:format:sarif",
		"/analyze:autolog-",
		"/nologo",
		"/analyze:plugin" + plugin,
	}

	rulesetArgs, err := resolveRuleset(desc, opts, logger)
	if err != nil {
		return nil, err
	}
	args = append(args, rulesetArgs...)

	if opts.IgnoreSystemHeaders {
		// Down-weight external warnings and keep external code out of the
		// analysis target set.
		args = append(args, "/external:W0", "/analyze:external-")
	}

	if opts.AdditionalArgs != "" {
		extra, err := shlex.Split(opts.AdditionalArgs)
		if err != nil {
			return nil, fmt.Errorf("failed to tokenize additional arguments %q: %w", opts.AdditionalArgs, err)
		}
		args = append(args, extra...)
	}

	return args, nil
}

// findEspXEngine locates the analysis plugin in the host-architecture binary
// directory of the toolset (…\bin\Host<arch>\<hostArch>\EspXEngine.dll).
func findEspXEngine(desc *Descriptor) (string, error) {
	hostBinDir := filepath.Dir(filepath.Dir(desc.CompilerPath))
	plugin := filepath.Join(hostBinDir, desc.HostArch, espXEngine)
	if _, err := os.Stat(plugin); err != nil {
		return "", fmt.Errorf("analysis engine %s not found for compiler %s: %w", plugin, desc.CompilerPath, err)
	}
	return plugin, nil
}

// resolveRuleset resolves the requested ruleset against the project root
// first, then the officially shipped ruleset directory. An explicitly
// requested ruleset that resolves nowhere is fatal; no request at all runs
// every check with a warning.
func resolveRuleset(desc *Descriptor, opts SharedOptions, logger *utils.VerboseLogger) ([]string, error) {
	if opts.Ruleset == "" {
		logger.Warnf("no ruleset specified, all analysis checks are enabled\n")
		return nil, nil
	}

	projectPath := opts.Ruleset
	if !filepath.IsAbs(projectPath) {
		projectPath = filepath.Join(opts.ProjectRoot, opts.Ruleset)
	}
	if _, err := os.Stat(projectPath); err == nil {
		return []string{"/analyze:ruleset" + projectPath}, nil
	}

	officialDir := filepath.Join(vsRoot(desc.CompilerPath), officialRulesetDir)
	officialPath := filepath.Join(officialDir, opts.Ruleset)
	if _, err := os.Stat(officialPath); err == nil {
		// The ruleset directory lets references to sibling official
		// rulesets resolve.
		return []string{
			"/analyze:ruleset" + officialPath,
			"/analyze:rulesetdirectory" + officialDir,
		}, nil
	}

	return nil, fmt.Errorf("ruleset %q not found in project root %s or ruleset directory %s", opts.Ruleset, opts.ProjectRoot, officialDir)
}

// IncludeArg renders one include directory as a compiler flag: a plain
// include or, for external code, an external include.
func IncludeArg(path string, external bool) string {
	if external {
		return "/external:I" + path
	}
	return "/I" + path
}

// DefineArg renders one preprocessor define as a compiler flag.
func DefineArg(define string) string {
	return "/D" + define
}

// SarifLogArg renders the per-invocation diagnostic log flag.
func SarifLogArg(path string) string {
	return "/analyze:log" + path
}
