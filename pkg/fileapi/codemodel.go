package fileapi

import (
	"fmt"
	"path/filepath"
)

// Codemodel mirrors the slice of the codemodel v2 schema this tool consumes.
type Codemodel struct {
	Paths          CodemodelPaths  `json:"paths"`
	Configurations []Configuration `json:"configurations"`

	// replyDir anchors the jsonFile references of target entries.
	replyDir string
}

// CodemodelPaths carries the top-level source and build directories.
type CodemodelPaths struct {
	Source string `json:"source"`
	Build  string `json:"build"`
}

// Configuration is one build configuration of the generator (single-config
// generators report exactly one).
type Configuration struct {
	Name        string      `json:"name"`
	Directories []Directory `json:"directories"`
	Targets     []TargetRef `json:"targets"`
}

// Directory is one source directory participating in the configuration.
type Directory struct {
	Source string `json:"source"`
}

// TargetRef references a per-target document within the reply directory.
type TargetRef struct {
	Name           string `json:"name"`
	DirectoryIndex int    `json:"directoryIndex"`
	JSONFile       string `json:"jsonFile"`
}

// Target mirrors the slice of the per-target document schema this tool
// consumes: compile groups and the source list they index into.
type Target struct {
	Name          string         `json:"name"`
	CompileGroups []CompileGroup `json:"compileGroups"`
	Sources       []SourceEntry  `json:"sources"`
}

// CompileGroup is a set of sources within a target sharing language, flags,
// includes, and defines.
type CompileGroup struct {
	Language                string            `json:"language"`
	LanguageStandard        *LanguageStandard `json:"languageStandard"`
	CompileCommandFragments []CommandFragment `json:"compileCommandFragments"`
	Includes                []IncludeEntry    `json:"includes"`
	Defines                 []DefineEntry     `json:"defines"`
	SourceIndexes           []int             `json:"sourceIndexes"`
}

// LanguageStandard reports the language standard the group compiles under.
type LanguageStandard struct {
	Standard string `json:"standard"`
}

// CommandFragment is one raw piece of the compile command line.
type CommandFragment struct {
	Fragment string `json:"fragment"`
}

// IncludeEntry is one include directory of a compile group.
type IncludeEntry struct {
	Path     string `json:"path"`
	IsSystem bool   `json:"isSystem"`
}

// DefineEntry is one preprocessor define of a compile group.
type DefineEntry struct {
	Define string `json:"define"`
}

// SourceEntry is one source file of a target, relative to the top-level
// source directory unless absolute.
type SourceEntry struct {
	Path string `json:"path"`
}

// LoadCodemodel parses the codemodel document referenced by the reply index.
func LoadCodemodel(index *ReplyIndex) (*Codemodel, error) {
	var model Codemodel
	if err := readJSON(index.CodemodelPath, &model); err != nil {
		return nil, err
	}
	if len(model.Configurations) == 0 {
		return nil, fmt.Errorf("codemodel %s lists no configurations", index.CodemodelPath)
	}
	model.replyDir = filepath.Dir(index.CodemodelPath)
	return &model, nil
}

// LoadTarget parses the per-target document referenced by a target entry of
// the codemodel.
func (m *Codemodel) LoadTarget(ref TargetRef) (*Target, error) {
	var target Target
	if err := readJSON(filepath.Join(m.replyDir, ref.JSONFile), &target); err != nil {
		return nil, fmt.Errorf("failed to load target %s: %w", ref.Name, err)
	}
	return &target, nil
}

// SourceDir resolves the source directory of a target reference against the
// codemodel's top-level source directory.
func (m *Codemodel) SourceDir(cfg *Configuration, ref TargetRef) (string, error) {
	if ref.DirectoryIndex < 0 || ref.DirectoryIndex >= len(cfg.Directories) {
		return "", fmt.Errorf("target %s references directory %d, but configuration %q has %d directories",
			ref.Name, ref.DirectoryIndex, cfg.Name, len(cfg.Directories))
	}
	dir := cfg.Directories[ref.DirectoryIndex].Source
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.Paths.Source, dir)
	}
	return dir, nil
}
