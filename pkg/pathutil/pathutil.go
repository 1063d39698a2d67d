// Package pathutil provides path resolution and containment helpers shared by
// the metadata, synthesis, and toolchain packages.
package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

// Normalize converts a path to an absolute, cleaned form with forward-slash
// separators. Relative paths are resolved against base; an empty base leaves
// resolution to the process working directory.
func Normalize(p, base string) string {
	if !filepath.IsAbs(p) && base != "" {
		p = filepath.Join(base, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = filepath.Clean(p)
	}
	return filepath.ToSlash(abs)
}

// canonical lower-cases and slash-cleans a path for comparison. Backslashes
// are folded explicitly so Windows-style paths compare correctly on any
// host; comparison is case-insensitive to match Windows filesystem
// semantics.
func canonical(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.ToLower(path.Clean(p))
}

// IsWithin reports whether p is dir itself or a descendant of dir. Mixed
// separators and trailing slashes do not affect the result.
func IsWithin(p, dir string) bool {
	cp := canonical(p)
	cd := canonical(dir)
	if cp == cd {
		return true
	}
	return strings.HasPrefix(cp, cd+"/")
}

// IsWithinAny reports whether p is contained in any of the given directories.
func IsWithinAny(p string, dirs []string) bool {
	for _, dir := range dirs {
		if IsWithin(p, dir) {
			return true
		}
	}
	return false
}
