package runner

import (
	"fmt"
	"os"
	"strings"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/utils"
)

// envHelperEnv overrides the environment-extraction helper looked up in
// PATH.
const envHelperEnv = "MSVC_ENV_HELPER"

// defaultEnvHelper is the shipped wrapper that calls the toolchain
// initialization script and echoes the resulting environment.
const defaultEnvHelper = "cmake-msvc-analyze-env.cmd"

// EnvHelper runs the toolchain environment-initialization script through a
// wrapper that prints NAME=value lines. It implements toolchain.EnvExtractor.
type EnvHelper struct {
	helper string
	logger *utils.VerboseLogger
}

// NewEnvHelper locates the extraction helper (honoring the MSVC_ENV_HELPER
// override).
func NewEnvHelper(logger *utils.VerboseLogger) (*EnvHelper, error) {
	name := os.Getenv(envHelperEnv)
	if name == "" {
		name = defaultEnvHelper
	}
	helper, err := utils.CheckExecutableAvailable(name, logger.IsVerbose())
	if err != nil {
		return nil, fmt.Errorf("cannot locate the environment-extraction helper: %w", err)
	}
	return &EnvHelper{helper: helper, logger: logger}, nil
}

// Extract invokes the helper with the initialization script, architecture
// spec, and toolset version, and parses the NAME=value lines it prints. The
// helper must exit zero and report at least INCLUDE and LIB.
func (h *EnvHelper) Extract(scriptPath, archSpec, toolsetVersion string) (map[string]string, error) {
	result := utils.ExecuteCommand(h.helper, []string{scriptPath, archSpec, toolsetVersion}, "", nil, h.logger.IsVerbose())
	if !result.Succeeded() {
		return nil, fmt.Errorf("environment extraction exited with code %d: %s", result.ExitCode, strings.TrimSpace(string(result.Output)))
	}

	vars := ParseEnvOutput(string(result.Output))
	for _, required := range []string{"INCLUDE", "LIB"} {
		if vars[required] == "" {
			return nil, fmt.Errorf("environment extraction did not report %s", required)
		}
	}
	return vars, nil
}

// ParseEnvOutput parses NAME=value lines, keeping the last occurrence of
// each name and upper-casing names for Windows-style lookup.
func ParseEnvOutput(output string) map[string]string {
	vars := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		name := strings.ToUpper(strings.TrimSpace(line[:eq]))
		vars[name] = line[eq+1:]
	}
	return vars
}
