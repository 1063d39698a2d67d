// Package fileapi reads CMake File API metadata from a configured build tree:
// it plants the query describing the documents this tool needs, selects the
// freshest reply index, and parses the codemodel, target, and toolchains
// documents the index references.
package fileapi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/mod/semver"

	"github.com/smith-xyz/cmake-msvc-analyze/pkg/utils"
)

const (
	// ClientName identifies this tool's query under .cmake/api/v1/query.
	ClientName = "client-cmake-msvc-analyze"

	apiRelDir   = ".cmake/api/v1"
	queryFile   = "query.json"
	indexPrefix = "index-"

	// MinimumCMakeVersion is the first release exposing the toolchains
	// File API object; older replies cannot drive toolchain resolution.
	MinimumCMakeVersion = "3.20.5"
)

// Document kinds requested by the query and expected in the reply.
const (
	KindCodemodel  = "codemodel"
	KindToolchains = "toolchains"
)

// ReplyIndex locates the documents a run needs, resolved from the most
// recently generated reply index.
type ReplyIndex struct {
	CodemodelPath  string
	ToolchainsPath string
	CMakeVersion   string
}

// Regenerator triggers the build system to refresh its File API replies.
// It is implemented by the runner package; tests substitute fakes.
type Regenerator interface {
	Regenerate(buildDir string) error
}

// QueryDir returns the query directory for this tool's client under the
// given build tree.
func QueryDir(buildDir string) string {
	return filepath.Join(buildDir, filepath.FromSlash(apiRelDir), "query", ClientName)
}

// ReplyDir returns the reply directory under the given build tree.
func ReplyDir(buildDir string) string {
	return filepath.Join(buildDir, filepath.FromSlash(apiRelDir), "reply")
}

// EnsureQuery writes the File API query requesting codemodel and toolchains
// documents. The write is idempotent: an existing query file is left alone.
func EnsureQuery(buildDir string) error {
	dir := QueryDir(buildDir)
	path := filepath.Join(dir, queryFile)

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create query directory %s: %w", dir, err)
	}

	query := map[string]interface{}{
		"requests": []map[string]interface{}{
			{"kind": KindCodemodel, "version": 2},
			{"kind": KindToolchains, "version": 1},
		},
	}

	data, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to encode File API query: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write File API query %s: %w", path, err)
	}

	return nil
}

// FindIndexFile selects the most recent reply index in the reply directory.
// Index filenames embed a sortable timestamp, so the lexicographically
// greatest name is the newest; this keeps selection deterministic and
// independent of filesystem timestamps.
func FindIndexFile(replyDir string) (string, error) {
	entries, err := os.ReadDir(replyDir)
	if err != nil {
		return "", fmt.Errorf("failed to read File API reply directory %s: %w", replyDir, err)
	}

	var indexes []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && len(name) > len(indexPrefix) && name[:len(indexPrefix)] == indexPrefix && filepath.Ext(name) == ".json" {
			indexes = append(indexes, name)
		}
	}

	if len(indexes) == 0 {
		return "", fmt.Errorf("no File API index document found in %s; is the build tree configured?", replyDir)
	}

	sort.Strings(indexes)
	return filepath.Join(replyDir, indexes[len(indexes)-1]), nil
}

// indexDocument mirrors the slice of the index schema this tool depends on.
type indexDocument struct {
	CMake struct {
		Version struct {
			String string `json:"string"`
		} `json:"version"`
	} `json:"cmake"`
	Reply map[string]map[string]struct {
		Responses []struct {
			Kind     string `json:"kind"`
			JSONFile string `json:"jsonFile"`
			Error    string `json:"error"`
		} `json:"responses"`
	} `json:"reply"`
}

// LoadBuildMetadata ensures the query exists, regenerates the File API
// replies, and resolves the documents this run needs from the freshest index.
func LoadBuildMetadata(buildDir string, regen Regenerator, logger *utils.VerboseLogger) (*ReplyIndex, error) {
	if err := EnsureQuery(buildDir); err != nil {
		return nil, err
	}

	if err := regen.Regenerate(buildDir); err != nil {
		return nil, fmt.Errorf("failed to regenerate build metadata: %w", err)
	}

	indexPath, err := FindIndexFile(ReplyDir(buildDir))
	if err != nil {
		return nil, err
	}
	logger.Logf("Using File API index: %s\n", indexPath)

	return parseIndex(indexPath)
}

func parseIndex(indexPath string) (*ReplyIndex, error) {
	var doc indexDocument
	if err := readJSON(indexPath, &doc); err != nil {
		return nil, err
	}

	if err := checkCMakeVersion(doc.CMake.Version.String); err != nil {
		return nil, err
	}

	client, ok := doc.Reply[ClientName]
	if !ok {
		return nil, fmt.Errorf("File API index %s has no reply for %s", indexPath, ClientName)
	}
	query, ok := client[queryFile]
	if !ok {
		return nil, fmt.Errorf("File API index %s has no reply for query %s", indexPath, queryFile)
	}

	replyDir := filepath.Dir(indexPath)
	index := &ReplyIndex{CMakeVersion: doc.CMake.Version.String}

	for _, response := range query.Responses {
		if response.Error != "" {
			return nil, fmt.Errorf("File API reply reported an error for kind %q: %s", response.Kind, response.Error)
		}
		path := filepath.Join(replyDir, response.JSONFile)
		switch response.Kind {
		case KindCodemodel:
			index.CodemodelPath = path
		case KindToolchains:
			index.ToolchainsPath = path
		}
	}

	if index.CodemodelPath == "" {
		return nil, fmt.Errorf("File API reply is missing a %s document", KindCodemodel)
	}
	if index.ToolchainsPath == "" {
		return nil, fmt.Errorf("File API reply is missing a %s document", KindToolchains)
	}

	for _, path := range []string{index.CodemodelPath, index.ToolchainsPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("File API response file %s is missing: %w", path, err)
		}
	}

	return index, nil
}

func checkCMakeVersion(version string) error {
	if version == "" {
		return fmt.Errorf("File API index does not report a CMake version")
	}
	if !semver.IsValid("v" + version) {
		return fmt.Errorf("unrecognized CMake version %q", version)
	}
	if semver.Compare("v"+version, "v"+MinimumCMakeVersion) < 0 {
		return fmt.Errorf("CMake %s is too old: version %s or newer is required for toolchains replies", version, MinimumCMakeVersion)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
