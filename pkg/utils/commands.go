package utils

import (
	"fmt"
	"os"
	"os/exec"
)

// CommandResult represents the result of an external command execution
type CommandResult struct {
	Output   []byte
	ExitCode int
	Error    error
}

// Succeeded reports whether the command ran and exited zero
func (r *CommandResult) Succeeded() bool {
	return r.Error == nil && r.ExitCode == 0
}

// CheckExecutableAvailable checks if the named executable is available in PATH
func CheckExecutableAvailable(name string, verbose bool) (string, error) {
	if verbose {
		fmt.Fprintf(os.Stderr, "Checking availability of %s\n", name)
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", name)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "%s is available at %s\n", name, path)
	}

	return path, nil
}

// ExecuteCommand runs an executable with the specified arguments, working
// directory, and environment (nil env inherits the process environment).
// Stderr is folded into the captured output so callers can surface tool
// diagnostics in error messages.
func ExecuteCommand(name string, args []string, workingDir string, env []string, verbose bool) *CommandResult {
	if verbose {
		fmt.Fprintf(os.Stderr, "Executing %s %v in %s\n", name, args, workingDir)
	}

	cmd := exec.Command(name, args...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	if env != nil {
		cmd.Env = env
	}

	output, err := cmd.CombinedOutput()

	result := &CommandResult{
		Output: output,
		Error:  err,
	}

	// Extract exit code
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitError.ExitCode()
		} else {
			result.ExitCode = -1 // Unknown exit code
		}
	} else {
		result.ExitCode = 0
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "%s completed with exit code: %d\n", name, result.ExitCode)
	}

	return result
}
