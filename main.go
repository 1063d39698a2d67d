package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/config"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/fileapi"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/runner"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/sarif"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/synth"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/toolchain"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/utils"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/version"
)

func main() {
	var (
		buildDir            = flag.String("build", "", "Configured CMake build directory to analyze (required)")
		outputPath          = flag.String("output", "", "Path of the merged SARIF report (default: analysis.sarif)")
		configuration       = flag.String("configuration", "", "Build configuration name (required for multi-config generators)")
		ignoreSystemHeaders = flag.Bool("ignore-system-headers", false, "Treat system includes as external code and suppress their warnings")
		extractEnvironment  = flag.Bool("extract-environment", false, "Run the toolchain initialization script to recover implicit INCLUDE/LIB paths")
		ignoredPaths        = flag.String("ignored-paths", "", "Semicolon-delimited paths excluded both as targets and as include roots")
		ignoredTargetPaths  = flag.String("ignored-target-paths", "", "Semicolon-delimited paths whose targets are not analyzed")
		ignoredIncludePaths = flag.String("ignored-include-paths", "", "Semicolon-delimited include roots treated as external code")
		ruleset             = flag.String("ruleset", "", "Ruleset file, project-relative or shipped with the toolchain")
		additionalArgs      = flag.String("args", "", "Extra compiler arguments appended to every analyze invocation")
		verbose             = flag.Bool("v", false, "Verbose output")
		showVersion         = flag.Bool("version", false, "Show version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersionWithCommit())
		os.Exit(0)
	}

	flagOpts := &config.Options{
		BuildDir:            *buildDir,
		OutputPath:          *outputPath,
		Configuration:       *configuration,
		IgnoreSystemHeaders: *ignoreSystemHeaders,
		ExtractEnvironment:  *extractEnvironment,
		IgnoredPaths:        utils.ParseSemicolonDelimited(*ignoredPaths),
		IgnoredTargetPaths:  utils.ParseSemicolonDelimited(*ignoredTargetPaths),
		IgnoredIncludePaths: utils.ParseSemicolonDelimited(*ignoredIncludePaths),
		Ruleset:             *ruleset,
		AdditionalArgs:      *additionalArgs,
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	opts, err := config.LoadDefaults(*buildDir)
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}
	opts.MergeFlags(flagOpts, set)
	if opts.OutputPath == "" {
		opts.OutputPath = "analysis.sarif"
	}

	if err := opts.Validate(); err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}

	logger := utils.NewVerboseLogger(*verbose)

	if err := run(opts, logger); err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
}

// run drives the whole pipeline: metadata, toolchains, synthesis, dispatch,
// and aggregation. All diagnostic logs allocated along the way are removed
// on every exit path.
func run(opts *config.Options, logger *utils.VerboseLogger) error {
	cmake, err := runner.NewCMake(logger)
	if err != nil {
		return err
	}

	index, err := fileapi.LoadBuildMetadata(opts.BuildDir, cmake, logger)
	if err != nil {
		return err
	}
	logger.Logf("Build metadata generated by CMake %s\n", index.CMakeVersion)

	model, err := fileapi.LoadCodemodel(index)
	if err != nil {
		return err
	}
	toolchainsDoc, err := fileapi.LoadToolchains(index)
	if err != nil {
		return err
	}

	descriptors, err := toolchain.Resolve(toolchainsDoc)
	if err != nil {
		return err
	}
	for lang, desc := range descriptors {
		logger.Logf("Resolved %s toolchain: %s (toolset %s, %s -> %s)\n",
			lang, desc.CompilerPath, desc.ToolsetVersion, desc.HostArch, desc.TargetArch)
	}

	var extractor toolchain.EnvExtractor
	if opts.ExtractEnvironment {
		helper, err := runner.NewEnvHelper(logger)
		if err != nil {
			return err
		}
		extractor = helper
	}

	shared, err := toolchain.BuildSharedTable(descriptors, toolchain.SharedOptions{
		ProjectRoot:         model.Paths.Source,
		Ruleset:             opts.Ruleset,
		IgnoreSystemHeaders: opts.IgnoreSystemHeaders,
		ExtractEnvironment:  opts.ExtractEnvironment,
		AdditionalArgs:      opts.AdditionalArgs,
	}, extractor, logger)
	if err != nil {
		return err
	}

	cfg, err := synth.SelectConfiguration(model, opts.Configuration)
	if err != nil {
		return err
	}
	logger.Logf("Analyzing configuration %q\n", cfg.Name)

	synthOpts := synth.Options{
		TargetExcludes:      opts.TargetExcludes(),
		IncludeExcludes:     opts.IncludeExcludes(),
		IgnoreSystemHeaders: opts.IgnoreSystemHeaders,
	}

	units, err := synth.CollectUnits(model, cfg, synthOpts, logger)
	if err != nil {
		return err
	}
	logger.Logf("Collected %d compile unit(s)\n", len(units))

	logs := synth.NewLogSet()
	defer logs.RemoveAll()

	invocations, err := synth.BuildInvocations(units, descriptors, shared, synthOpts, logs, logger)
	if err != nil {
		return err
	}

	producedLogs, failed := runner.RunAll(invocations, runner.NewCompilerExecutor(logger), logger)

	report, err := sarif.Merge(producedLogs)
	if err != nil {
		return err
	}
	if err := sarif.Write(report, opts.OutputPath); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Merged report with %d finding(s) written to: %s\n", len(report.Runs[0].Results), opts.OutputPath)

	return runner.FailureError(failed)
}
