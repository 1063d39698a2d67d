package synth

import (
	"fmt"
	"os"
)

// LogSet owns the per-invocation SARIF log files of one run. Every allocated
// path is tracked so the run can guarantee removal on every exit path.
type LogSet struct {
	paths []string
}

// NewLogSet returns an empty log set.
func NewLogSet() *LogSet {
	return &LogSet{}
}

// Allocate creates a fresh, unique SARIF log file and tracks it. On failure
// every previously allocated log of this set is removed before the error
// surfaces, so a partially synthesized run leaves no orphaned temp files.
func (s *LogSet) Allocate() (string, error) {
	file, err := os.CreateTemp("", "cmake-msvc-analyze-*.sarif")
	if err != nil {
		s.RemoveAll()
		return "", fmt.Errorf("failed to allocate diagnostic log: %w", err)
	}
	path := file.Name()
	if closeErr := file.Close(); closeErr != nil {
		s.paths = append(s.paths, path)
		s.RemoveAll()
		return "", fmt.Errorf("failed to allocate diagnostic log %s: %w", path, closeErr)
	}

	s.paths = append(s.paths, path)
	return path, nil
}

// Paths returns the allocated log paths in allocation order.
func (s *LogSet) Paths() []string {
	return s.paths
}

// RemoveAll deletes every tracked log file. Safe to call repeatedly; callers
// defer it so cleanup runs on success, partial failure, and fatal abort
// alike.
func (s *LogSet) RemoveAll() {
	for _, path := range s.paths {
		os.Remove(path)
	}
	s.paths = nil
}
