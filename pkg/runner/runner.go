// Package runner hosts the external collaborators of an analysis run:
// invoking CMake to refresh File API replies, spawning the compiler once per
// analyze invocation, and running the environment-extraction helper. All
// dispatch is sequential; a hanging collaborator blocks the run.
package runner

import (
	"fmt"
	"os"
	"strings"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/synth"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/utils"
)

// cmakeBinEnv overrides the cmake executable looked up in PATH.
const cmakeBinEnv = "CMAKE_BIN"

// CMake invokes the build system to regenerate File API replies. It
// implements fileapi.Regenerator.
type CMake struct {
	binary string
	logger *utils.VerboseLogger
}

// NewCMake locates the cmake executable (honoring the CMAKE_BIN override).
func NewCMake(logger *utils.VerboseLogger) (*CMake, error) {
	name := os.Getenv(cmakeBinEnv)
	if name == "" {
		name = "cmake"
	}
	binary, err := utils.CheckExecutableAvailable(name, logger.IsVerbose())
	if err != nil {
		return nil, fmt.Errorf("cannot locate the cmake executable: %w", err)
	}
	return &CMake{binary: binary, logger: logger}, nil
}

// Regenerate reruns cmake against the build tree so the reply directory
// reflects the query this tool planted.
func (c *CMake) Regenerate(buildDir string) error {
	result := utils.ExecuteCommand(c.binary, []string{buildDir}, "", nil, c.logger.IsVerbose())
	if !result.Succeeded() {
		return fmt.Errorf("cmake exited with code %d: %s", result.ExitCode, strings.TrimSpace(string(result.Output)))
	}
	return nil
}

// Executor runs one analyze invocation and reports its outcome. The default
// implementation spawns the compiler; tests substitute fakes.
type Executor interface {
	Run(invocation synth.Invocation) *utils.CommandResult
}

// CompilerExecutor spawns the analysis-capable compiler per invocation.
type CompilerExecutor struct {
	logger *utils.VerboseLogger
}

// NewCompilerExecutor returns an executor spawning real compiler processes.
func NewCompilerExecutor(logger *utils.VerboseLogger) *CompilerExecutor {
	return &CompilerExecutor{logger: logger}
}

// Run spawns the compiler with the invocation's arguments and environment.
func (e *CompilerExecutor) Run(invocation synth.Invocation) *utils.CommandResult {
	return utils.ExecuteCommand(invocation.CompilerPath, invocation.Args, "", invocation.Env, e.logger.IsVerbose())
}

// RunAll dispatches the invocations in order. A non-zero compiler exit is
// recorded and the run continues, so one broken file does not hide the
// diagnostics of the others. It returns the diagnostic logs of successful
// invocations in dispatch order and the source paths that failed.
func RunAll(invocations []synth.Invocation, executor Executor, logger *utils.VerboseLogger) (producedLogs []string, failed []string) {
	for i, invocation := range invocations {
		logger.Logf("Analyzing %s (%d/%d)\n", invocation.SourcePath, i+1, len(invocations))

		result := executor.Run(invocation)
		if !result.Succeeded() {
			logger.Logf("Analysis of %s failed with exit code %d\n%s", invocation.SourcePath, result.ExitCode, string(result.Output))
			failed = append(failed, invocation.SourcePath)
			continue
		}
		producedLogs = append(producedLogs, invocation.SarifLog)
	}

	return producedLogs, failed
}

// FailureError renders the accumulated per-file failures as one error naming
// every failed file.
func FailureError(failed []string) error {
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("analysis failed for %d file(s): %s", len(failed), strings.Join(failed, ", "))
}
