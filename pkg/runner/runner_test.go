package runner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/sarif"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/synth"
	"github.com/smith-xyz/cmake-msvc-analyze/pkg/utils"
)

// fakeExecutor substitutes the compiler process with a callback.
type fakeExecutor struct {
	run func(invocation synth.Invocation) *utils.CommandResult
}

func (f *fakeExecutor) Run(invocation synth.Invocation) *utils.CommandResult {
	return f.run(invocation)
}

func invocation(source, log string) synth.Invocation {
	return synth.Invocation{
		SourcePath:   source,
		CompilerPath: "cl.exe",
		Args:         []string{source},
		SarifLog:     log,
	}
}

func TestRunAllContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	invocations := []synth.Invocation{
		invocation("a.cpp", filepath.Join(dir, "a.sarif")),
		invocation("b.cpp", filepath.Join(dir, "b.sarif")),
		invocation("c.cpp", filepath.Join(dir, "c.sarif")),
	}

	var attempted []string
	executor := &fakeExecutor{run: func(inv synth.Invocation) *utils.CommandResult {
		attempted = append(attempted, inv.SourcePath)
		if inv.SourcePath == "b.cpp" {
			return &utils.CommandResult{ExitCode: 2, Error: os.ErrInvalid}
		}
		return &utils.CommandResult{ExitCode: 0}
	}}

	produced, failed := RunAll(invocations, executor, utils.NewVerboseLogger(false))

	if len(attempted) != 3 {
		t.Errorf("attempted %d invocations, want all 3 despite the failure", len(attempted))
	}
	if len(produced) != 2 {
		t.Fatalf("produced %d logs, want 2", len(produced))
	}
	if filepath.Base(produced[0]) != "a.sarif" || filepath.Base(produced[1]) != "c.sarif" {
		t.Errorf("produced logs = %v, want a.sarif and c.sarif in dispatch order", produced)
	}
	if len(failed) != 1 || failed[0] != "b.cpp" {
		t.Errorf("failed = %v, want only b.cpp", failed)
	}

	err := FailureError(failed)
	if err == nil {
		t.Fatal("expected a failure error")
	}
	if !strings.Contains(err.Error(), "b.cpp") || strings.Contains(err.Error(), "a.cpp") {
		t.Errorf("error %q should name exactly the failed file", err)
	}
}

func TestFailureErrorNilOnSuccess(t *testing.T) {
	if err := FailureError(nil); err != nil {
		t.Errorf("no failures should yield no error, got %v", err)
	}
}

func TestParseEnvOutput(t *testing.T) {
	output := "Setting environment\r\nINCLUDE=C:\\vc\\include;C:\\sdk\\include\r\nlib=C:\\vc\\lib\r\nPATH=C:\\vc\\bin\r\nnot a var line\r\n"

	vars := ParseEnvOutput(output)

	if vars["INCLUDE"] != `C:\vc\include;C:\sdk\include` {
		t.Errorf("INCLUDE = %q", vars["INCLUDE"])
	}
	if vars["LIB"] != `C:\vc\lib` {
		t.Errorf("LIB = %q, want lower-case names folded to upper", vars["LIB"])
	}
	if _, ok := vars["NOT A VAR LINE"]; ok {
		t.Error("non-assignment lines should be skipped")
	}
}

func TestEnvHelperExtract(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fixture helper is a shell script")
	}

	dir := t.TempDir()
	helper := filepath.Join(dir, "fake-env-helper")
	script := "#!/bin/sh\necho \"INCLUDE=/vc/include\"\necho \"LIB=/vc/lib\"\n"
	if err := os.WriteFile(helper, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MSVC_ENV_HELPER", helper)

	envHelper, err := NewEnvHelper(utils.NewVerboseLogger(false))
	if err != nil {
		t.Fatalf("NewEnvHelper failed: %v", err)
	}

	vars, err := envHelper.Extract("/vs/vcvarsall.bat", "x64", "14.29")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if vars["INCLUDE"] != "/vc/include" || vars["LIB"] != "/vc/lib" {
		t.Errorf("vars = %v", vars)
	}
}

func TestEnvHelperRequiresIncludeAndLib(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fixture helper is a shell script")
	}

	dir := t.TempDir()
	helper := filepath.Join(dir, "fake-env-helper")
	if err := os.WriteFile(helper, []byte("#!/bin/sh\necho \"INCLUDE=/vc/include\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MSVC_ENV_HELPER", helper)

	envHelper, err := NewEnvHelper(utils.NewVerboseLogger(false))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := envHelper.Extract("/vs/vcvarsall.bat", "x64", "14.29"); err == nil {
		t.Error("missing LIB should be an error")
	}
}

func TestNewCMakeMissingBinary(t *testing.T) {
	t.Setenv("CMAKE_BIN", "definitely-not-a-real-cmake-binary")
	if _, err := NewCMake(utils.NewVerboseLogger(false)); err == nil {
		t.Error("expected an error when the cmake executable cannot be located")
	}
}

// sarifLog renders a minimal SARIF log with the given findings.
func sarifLog(t *testing.T, path string, results ...sarif.Result) {
	t.Helper()
	report := sarif.Report{
		Version: sarif.Version,
		Runs:    []sarif.Run{{Tool: json.RawMessage(`{"driver":{"name":"EspX"}}`), Results: results}},
	}
	data, err := json.Marshal(report)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func finding(rule, uri string, line int) sarif.Result {
	return sarif.Result{
		RuleID:  rule,
		Message: sarif.Message{Text: "finding " + rule},
		Locations: []sarif.Location{{
			PhysicalLocation: sarif.PhysicalLocation{
				ArtifactLocation: sarif.ArtifactLocation{URI: uri},
				Region:           sarif.Region{StartLine: line, StartColumn: 1},
			},
		}},
	}
}

// Two sources under one toolchain, each analysis producing one distinct
// finding plus one finding shared by both: the merged report must contain
// exactly three unique findings.
func TestDispatchAndMergeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	invocations := []synth.Invocation{
		invocation("a.cpp", filepath.Join(dir, "a.sarif")),
		invocation("b.cpp", filepath.Join(dir, "b.sarif")),
	}

	shared := finding("C26400", "include/common.h", 12)
	executor := &fakeExecutor{run: func(inv synth.Invocation) *utils.CommandResult {
		switch inv.SourcePath {
		case "a.cpp":
			sarifLog(t, inv.SarifLog, finding("C6001", "a.cpp", 3), shared)
		case "b.cpp":
			sarifLog(t, inv.SarifLog, finding("C6011", "b.cpp", 9), shared)
		}
		return &utils.CommandResult{ExitCode: 0}
	}}

	produced, failed := RunAll(invocations, executor, utils.NewVerboseLogger(false))
	if len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed)
	}

	merged, err := sarif.Merge(produced)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(merged.Runs[0].Results) != 3 {
		t.Errorf("merged %d findings, want 3 unique", len(merged.Runs[0].Results))
	}
}
