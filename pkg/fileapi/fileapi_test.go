package fileapi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/utils"
)

// writeArchive materializes a txtar file tree under dir.
func writeArchive(t *testing.T, dir, archive string) {
	t.Helper()
	for _, f := range txtar.Parse([]byte(archive)).Files {
		path := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// fakeRegen satisfies Regenerator without touching the fixture tree.
type fakeRegen struct {
	calls int
	err   error
}

func (f *fakeRegen) Regenerate(buildDir string) error {
	f.calls++
	return f.err
}

const validReply = `
-- .cmake/api/v1/reply/index-2024-01-02T10-00-00-0001.json --
{
  "cmake": {"version": {"string": "3.26.4"}},
  "reply": {
    "client-cmake-msvc-analyze": {
      "query.json": {
        "responses": [
          {"kind": "codemodel", "jsonFile": "codemodel-v2-new.json"},
          {"kind": "toolchains", "jsonFile": "toolchains-v1-new.json"}
        ]
      }
    }
  }
}
-- .cmake/api/v1/reply/index-2024-01-01T09-00-00-0000.json --
{
  "cmake": {"version": {"string": "3.26.4"}},
  "reply": {
    "client-cmake-msvc-analyze": {
      "query.json": {
        "responses": [
          {"kind": "codemodel", "jsonFile": "codemodel-v2-old.json"},
          {"kind": "toolchains", "jsonFile": "toolchains-v1-old.json"}
        ]
      }
    }
  }
}
-- .cmake/api/v1/reply/codemodel-v2-new.json --
{"paths": {"source": "/proj", "build": "/proj/build"}, "configurations": [{"name": "Debug", "directories": [{"source": "."}], "targets": []}]}
-- .cmake/api/v1/reply/codemodel-v2-old.json --
{"paths": {"source": "/proj", "build": "/proj/build"}, "configurations": [{"name": "Debug", "directories": [{"source": "."}], "targets": []}]}
-- .cmake/api/v1/reply/toolchains-v1-new.json --
{"toolchains": []}
-- .cmake/api/v1/reply/toolchains-v1-old.json --
{"toolchains": []}
`

func TestEnsureQueryIdempotent(t *testing.T) {
	buildDir := t.TempDir()

	if err := EnsureQuery(buildDir); err != nil {
		t.Fatalf("EnsureQuery failed: %v", err)
	}

	queryPath := filepath.Join(QueryDir(buildDir), "query.json")
	data, err := os.ReadFile(queryPath)
	if err != nil {
		t.Fatalf("query file not written: %v", err)
	}
	for _, kind := range []string{KindCodemodel, KindToolchains} {
		if !strings.Contains(string(data), kind) {
			t.Errorf("query %s does not request %s", data, kind)
		}
	}

	// An existing query must be left alone.
	marker := []byte(`{"requests": []}`)
	if err := os.WriteFile(queryPath, marker, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureQuery(buildDir); err != nil {
		t.Fatalf("second EnsureQuery failed: %v", err)
	}
	data, _ = os.ReadFile(queryPath)
	if string(data) != string(marker) {
		t.Error("EnsureQuery overwrote an existing query file")
	}
}

func TestFindIndexFile(t *testing.T) {
	t.Run("lexicographic maximum wins", func(t *testing.T) {
		replyDir := t.TempDir()
		for _, name := range []string{"index-2024-01-01.json", "index-2024-03-01.json", "index-2024-02-01.json", "codemodel-v2.json"} {
			if err := os.WriteFile(filepath.Join(replyDir, name), []byte("{}"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		path, err := FindIndexFile(replyDir)
		if err != nil {
			t.Fatalf("FindIndexFile failed: %v", err)
		}
		if filepath.Base(path) != "index-2024-03-01.json" {
			t.Errorf("selected %s, want index-2024-03-01.json", filepath.Base(path))
		}
	})

	t.Run("no index document", func(t *testing.T) {
		if _, err := FindIndexFile(t.TempDir()); err == nil {
			t.Error("expected an error when no index document exists")
		}
	})
}

func TestLoadBuildMetadata(t *testing.T) {
	buildDir := t.TempDir()
	writeArchive(t, buildDir, validReply)

	regen := &fakeRegen{}
	index, err := LoadBuildMetadata(buildDir, regen, utils.NewVerboseLogger(false))
	if err != nil {
		t.Fatalf("LoadBuildMetadata failed: %v", err)
	}

	if regen.calls != 1 {
		t.Errorf("Regenerate called %d times, want 1", regen.calls)
	}
	if filepath.Base(index.CodemodelPath) != "codemodel-v2-new.json" {
		t.Errorf("codemodel = %s, want the newest index's document", index.CodemodelPath)
	}
	if filepath.Base(index.ToolchainsPath) != "toolchains-v1-new.json" {
		t.Errorf("toolchains = %s, want the newest index's document", index.ToolchainsPath)
	}
	if index.CMakeVersion != "3.26.4" {
		t.Errorf("CMakeVersion = %s, want 3.26.4", index.CMakeVersion)
	}

	if _, err := os.Stat(filepath.Join(QueryDir(buildDir), "query.json")); err != nil {
		t.Error("LoadBuildMetadata should plant the query file")
	}
}

func TestLoadBuildMetadataRegenerateFailure(t *testing.T) {
	buildDir := t.TempDir()
	writeArchive(t, buildDir, validReply)

	regen := &fakeRegen{err: os.ErrPermission}
	if _, err := LoadBuildMetadata(buildDir, regen, utils.NewVerboseLogger(false)); err == nil {
		t.Error("expected regeneration failure to surface")
	}
}

func TestLoadBuildMetadataErrors(t *testing.T) {
	tests := []struct {
		name    string
		archive string
		wantErr string
	}{
		{
			name: "version too old",
			archive: `
-- .cmake/api/v1/reply/index-1.json --
{"cmake": {"version": {"string": "3.19.0"}}, "reply": {"client-cmake-msvc-analyze": {"query.json": {"responses": []}}}}
`,
			wantErr: "too old",
		},
		{
			name: "unrecognized version",
			archive: `
-- .cmake/api/v1/reply/index-1.json --
{"cmake": {"version": {"string": "not-a-version"}}, "reply": {"client-cmake-msvc-analyze": {"query.json": {"responses": []}}}}
`,
			wantErr: "unrecognized CMake version",
		},
		{
			name: "missing client reply",
			archive: `
-- .cmake/api/v1/reply/index-1.json --
{"cmake": {"version": {"string": "3.26.4"}}, "reply": {}}
`,
			wantErr: "no reply",
		},
		{
			name: "reply error entry",
			archive: `
-- .cmake/api/v1/reply/index-1.json --
{"cmake": {"version": {"string": "3.26.4"}}, "reply": {"client-cmake-msvc-analyze": {"query.json": {"responses": [{"kind": "codemodel", "error": "unknown request kind"}]}}}}
`,
			wantErr: "unknown request kind",
		},
		{
			name: "missing toolchains document",
			archive: `
-- .cmake/api/v1/reply/index-1.json --
{"cmake": {"version": {"string": "3.26.4"}}, "reply": {"client-cmake-msvc-analyze": {"query.json": {"responses": [{"kind": "codemodel", "jsonFile": "codemodel-v2.json"}]}}}}
-- .cmake/api/v1/reply/codemodel-v2.json --
{}
`,
			wantErr: "missing a toolchains document",
		},
		{
			name: "referenced file missing",
			archive: `
-- .cmake/api/v1/reply/index-1.json --
{"cmake": {"version": {"string": "3.26.4"}}, "reply": {"client-cmake-msvc-analyze": {"query.json": {"responses": [{"kind": "codemodel", "jsonFile": "codemodel-v2.json"}, {"kind": "toolchains", "jsonFile": "toolchains-v1.json"}]}}}}
`,
			wantErr: "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildDir := t.TempDir()
			writeArchive(t, buildDir, tt.archive)

			_, err := LoadBuildMetadata(buildDir, &fakeRegen{}, utils.NewVerboseLogger(false))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCodemodel(t *testing.T) {
	buildDir := t.TempDir()
	writeArchive(t, buildDir, validReply)

	index, err := LoadBuildMetadata(buildDir, &fakeRegen{}, utils.NewVerboseLogger(false))
	if err != nil {
		t.Fatal(err)
	}

	model, err := LoadCodemodel(index)
	if err != nil {
		t.Fatalf("LoadCodemodel failed: %v", err)
	}
	if len(model.Configurations) != 1 || model.Configurations[0].Name != "Debug" {
		t.Errorf("configurations = %+v, want one Debug configuration", model.Configurations)
	}

	dir, err := model.SourceDir(&model.Configurations[0], TargetRef{Name: "app", DirectoryIndex: 0})
	if err != nil {
		t.Fatalf("SourceDir failed: %v", err)
	}
	if filepath.ToSlash(dir) != "/proj" {
		t.Errorf("SourceDir = %s, want /proj", dir)
	}

	if _, err := model.SourceDir(&model.Configurations[0], TargetRef{Name: "app", DirectoryIndex: 5}); err == nil {
		t.Error("expected an error for an out-of-range directory index")
	}
}
