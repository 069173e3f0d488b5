// Package lockfile parses and validates the requirements.txt dependency lock
// format produced by the export task: one "name==version" pin per line.
package lockfile

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// linePattern is the accepted pin grammar. Versions must start with a digit;
// names and versions allow the characters the packaging ecosystem allows.
var linePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+==[0-9][A-Za-z0-9_.\-]*$`)

// Entry is one pinned dependency.
type Entry struct {
	Name    string
	Version string
}

func (e Entry) String() string { return e.Name + "==" + e.Version }

// Parse reads lock content into entries, preserving line order.
//
// A single trailing newline is tolerated. Blank or malformed interior lines
// are rejected with their line number.
func Parse(b []byte) ([]Entry, error) {
	text := string(b)
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil, nil
	}

	lines := strings.Split(text, "\n")
	entries := make([]Entry, 0, len(lines))
	for i, line := range lines {
		if !linePattern.MatchString(line) {
			return nil, fmt.Errorf("line %d: invalid lock entry %q", i+1, line)
		}
		sep := strings.Index(line, "==")
		entries = append(entries, Entry{
			Name:    line[:sep],
			Version: line[sep+2:],
		})
	}
	return entries, nil
}

// ParseFile reads and parses the lock file at path.
func ParseFile(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	entries, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Equal reports whether two parsed locks pin the same set in the same order.
//
// Given an unchanged dependency resolution, two exports must compare Equal
// (the export is idempotent).
func Equal(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
