package fs

import (
	"path/filepath"
	"strings"
)

// PathFilter decides which paths are kept out of the catalog and the
// digest pipeline. It combines built-in junk patterns with the excluded
// prefixes from configuration.
type PathFilter struct {
	excludedPrefixes []string
}

// NewPathFilter creates a filter with the given excluded path prefixes
func NewPathFilter(excludedPrefixes []string) *PathFilter {
	return &PathFilter{excludedPrefixes: excludedPrefixes}
}

// IsExcluded checks a relative path against the excluded prefixes and
// every path component against the junk patterns
func (f *PathFilter) IsExcluded(path string) bool {
	slashed := filepath.ToSlash(path)

	for _, prefix := range f.excludedPrefixes {
		if strings.HasPrefix(slashed, prefix) {
			return true
		}
	}

	for _, part := range strings.Split(slashed, "/") {
		if part == "" || part == "." {
			continue
		}
		if isJunkName(part) {
			return true
		}
	}
	return false
}

// isJunkName matches hidden files, editor backups, and OS droppings
func isJunkName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if strings.HasPrefix(name, "~") || strings.HasSuffix(name, "~") {
		return true
	}
	if strings.HasPrefix(name, "._") || strings.HasPrefix(name, "~$") {
		return true
	}

	lower := strings.ToLower(name)
	if junkNames[lower] {
		return true
	}
	for _, suffix := range junkSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

var junkNames = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"thumbs.db":    true,
	"ehthumbs.db":  true,
	"desktop.ini":  true,
	"lost+found":   true,
}

var junkSuffixes = []string{
	".bak",
	".swp",
	".swo",
	".tmp",
	".temp",
	".orig",
	".part",
	".crdownload",
	".lnk",
}
