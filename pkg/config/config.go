package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/pathutil"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/utils"
)

// DefaultsFileName is looked up next to the build directory's parent (the
// usual project root) and in the current directory to supply project-wide
// defaults. Command-line flags always win over file values.
const DefaultsFileName = "cmake-msvc-analyze.toml"

// Options holds one analysis run's configuration.
type Options struct {
	// BuildDir is the configured CMake build tree. Required.
	BuildDir string `toml:"build_dir"`

	// OutputPath is where the merged SARIF report is written.
	OutputPath string `toml:"output"`

	// Configuration selects a configuration by name for multi-config
	// generators. Required when the code model lists more than one.
	Configuration string `toml:"configuration"`

	// IgnoreSystemHeaders treats system includes as external code and
	// suppresses analysis warnings originating in them.
	IgnoreSystemHeaders bool `toml:"ignore_system_headers"`

	// ExtractEnvironment runs the toolchain environment-initialization
	// script to recover implicit INCLUDE/LIB search paths.
	ExtractEnvironment bool `toml:"extract_environment"`

	// IgnoredPaths entries are excluded both as target directories and as
	// include roots.
	IgnoredPaths []string `toml:"ignored_paths"`

	// IgnoredTargetPaths excludes targets whose source directory falls
	// under any listed path.
	IgnoredTargetPaths []string `toml:"ignored_target_paths"`

	// IgnoredIncludePaths marks includes under any listed path as external.
	IgnoredIncludePaths []string `toml:"ignored_include_paths"`

	// Ruleset names a ruleset file, either project-relative or shipped
	// with the toolchain.
	Ruleset string `toml:"ruleset"`

	// AdditionalArgs is a free-form compiler argument string appended to
	// every analyze invocation.
	AdditionalArgs string `toml:"additional_args"`
}

// LoadDefaults reads Options from a defaults file if one exists near the
// given build directory. A missing file is not an error; a malformed one is.
func LoadDefaults(buildDir string) (*Options, error) {
	candidates := []string{
		filepath.Join(filepath.Dir(buildDir), DefaultsFileName),
		DefaultsFileName,
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var opts Options
		if _, err := toml.DecodeFile(path, &opts); err != nil {
			return nil, fmt.Errorf("failed to load defaults from %s: %w", path, err)
		}
		return &opts, nil
	}

	return &Options{}, nil
}

// MergeFlags overlays flag-supplied values on top of file defaults. Only
// values the user actually set override the file.
func (o *Options) MergeFlags(flags *Options, set map[string]bool) {
	if flags.BuildDir != "" {
		o.BuildDir = flags.BuildDir
	}
	if flags.OutputPath != "" {
		o.OutputPath = flags.OutputPath
	}
	if flags.Configuration != "" {
		o.Configuration = flags.Configuration
	}
	if set["ignore-system-headers"] {
		o.IgnoreSystemHeaders = flags.IgnoreSystemHeaders
	}
	if set["extract-environment"] {
		o.ExtractEnvironment = flags.ExtractEnvironment
	}
	if len(flags.IgnoredPaths) > 0 {
		o.IgnoredPaths = flags.IgnoredPaths
	}
	if len(flags.IgnoredTargetPaths) > 0 {
		o.IgnoredTargetPaths = flags.IgnoredTargetPaths
	}
	if len(flags.IgnoredIncludePaths) > 0 {
		o.IgnoredIncludePaths = flags.IgnoredIncludePaths
	}
	if flags.Ruleset != "" {
		o.Ruleset = flags.Ruleset
	}
	if flags.AdditionalArgs != "" {
		o.AdditionalArgs = flags.AdditionalArgs
	}
}

// Validate checks that the options describe a runnable configuration.
func (o *Options) Validate() error {
	if o.BuildDir == "" {
		return fmt.Errorf("a build directory is required")
	}

	info, err := os.Stat(o.BuildDir)
	if err != nil {
		return fmt.Errorf("build directory %s does not exist: %w", o.BuildDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("build directory %s is not a directory", o.BuildDir)
	}

	entries, err := os.ReadDir(o.BuildDir)
	if err != nil {
		return fmt.Errorf("failed to read build directory %s: %w", o.BuildDir, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("build directory %s is empty; configure the build first", o.BuildDir)
	}

	return nil
}

// TargetExcludes returns the normalized set of excluded target directories:
// the dedicated target list plus the combined ignored-paths list.
func (o *Options) TargetExcludes() []string {
	return normalizeAll(append(utils.TrimSpaceSlice(o.IgnoredTargetPaths), utils.TrimSpaceSlice(o.IgnoredPaths)...))
}

// IncludeExcludes returns the normalized set of include roots whose headers
// are treated as external: the dedicated include list plus the combined
// ignored-paths list.
func (o *Options) IncludeExcludes() []string {
	return normalizeAll(append(utils.TrimSpaceSlice(o.IgnoredIncludePaths), utils.TrimSpaceSlice(o.IgnoredPaths)...))
}

func normalizeAll(paths []string) []string {
	var result []string
	for _, p := range paths {
		result = append(result, pathutil.Normalize(p, ""))
	}
	return result
}
