package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mirror-go/internal/mirror"
)

// IgnoreFileName is the per-tree ignore file read from the data directory root.
const IgnoreFileName = ".mirrorignore"

// rule is one parsed ignore line.
type rule struct {
	glob     string
	anchored bool // glob contains '/', so it matches the whole relative path
	dirOnly  bool // written with a trailing '/'
}

// IgnoreMatcher leaves entries out of a mirror.
//
// A pattern without '/' is matched against the entry's base name at any
// depth. A pattern with '/' is matched against the path relative to the copy
// root. A trailing '/' limits the pattern to directories, which are then
// skipped as a whole.
type IgnoreMatcher struct {
	rules []rule
}

var _ mirror.Ignorer = (*IgnoreMatcher)(nil)

// NewIgnoreMatcher parses raw patterns. Blank lines and '#' comments are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var rules []rule
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		r := rule{}
		if strings.HasSuffix(raw, "/") {
			r.dirOnly = true
			raw = strings.TrimRight(raw, "/")
		}
		r.glob = strings.TrimPrefix(raw, "/")
		r.anchored = strings.Contains(raw, "/")
		rules = append(rules, r)
	}
	return &IgnoreMatcher{rules: rules}
}

// LoadIgnoreMatcher combines extra patterns with those in root/.mirrorignore.
func LoadIgnoreMatcher(root string, extra []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return NewIgnoreMatcher(append(append([]string{}, extra...), fromFile...)), nil
}

// Match reports whether relativePath should be ignored. Directory-only rules
// never match files. The mirror does not descend into an ignored directory.
func (m *IgnoreMatcher) Match(relativePath string, isDir bool) bool {
	if len(m.rules) == 0 || relativePath == "" {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	base := filepath.Base(relativePath)

	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		target := base
		if r.anchored {
			target = normalized
		}
		matched, err := filepath.Match(r.glob, target)
		if err != nil {
			// Bad pattern, skip it.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// Len returns the number of active rules.
func (m *IgnoreMatcher) Len() int {
	return len(m.rules)
}

// ParseIgnoreFile reads an ignore file and returns its raw lines.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
