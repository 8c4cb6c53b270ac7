// Package gitignore implements gitignore-style pattern matching: `/`
// anchoring, `!` negation, `**` multi-segment globs, dir-only trailing
// slashes, and last-match-wins ordering. A second, tool-specific ignore
// file can be layered on top and re-include what gitignore excluded.
package gitignore

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// rule is one compiled pattern line.
type rule struct {
	segments []string // pattern split on '/', "**" is a wildcard segment
	negated  bool
	dirOnly  bool
	anchored bool // leading '/' or an interior '/': match from the root
}

// Matcher evaluates an ordered rule list against repo-relative paths.
type Matcher struct {
	rules []rule
}

// ParseFile reads one ignore file. A missing file yields an empty matcher.
func ParseFile(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Matcher{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads ignore rules, one pattern per line. Blank lines and `#`
// comments are skipped.
func Parse(r io.Reader) (*Matcher, error) {
	m := &Matcher{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if rl, ok := compileLine(scanner.Text()); ok {
			m.rules = append(m.rules, rl)
		}
	}
	return m, scanner.Err()
}

// Append layers more rules after the existing ones. Because evaluation is
// last-match-wins, appended rules (e.g. a tool-specific override file) can
// re-include paths earlier rules ignored.
func (m *Matcher) Append(other *Matcher) {
	if other != nil {
		m.rules = append(m.rules, other.rules...)
	}
}

// Len reports the number of compiled rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Ignored reports whether relPath (using '/' separators, no leading '/')
// is excluded. isDir must be true for directories so dir-only patterns
// apply.
func (m *Matcher) Ignored(relPath string, isDir bool) bool {
	ignored := false
	for _, rl := range m.rules {
		if rl.dirOnly && !isDir && !rl.matchesParent(relPath) {
			continue
		}
		if rl.matches(relPath) {
			ignored = !rl.negated
		}
	}
	return ignored
}

func compileLine(line string) (rule, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	var rl rule
	if strings.HasPrefix(line, "!") {
		rl.negated = true
		line = line[1:]
	}
	if strings.HasPrefix(line, "\\#") || strings.HasPrefix(line, "\\!") {
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		rl.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		rl.anchored = true
		line = line[1:]
	} else if strings.Contains(line, "/") {
		rl.anchored = true
	}
	if line == "" {
		return rule{}, false
	}
	rl.segments = strings.Split(line, "/")
	return rl, true
}

// matches reports whether the rule matches relPath itself or, for
// unanchored rules, any suffix of its segment chain.
func (r rule) matches(relPath string) bool {
	parts := strings.Split(relPath, "/")
	if r.anchored {
		return matchSegments(r.segments, parts) || matchPrefixDir(r.segments, parts)
	}
	// unanchored: the pattern may start at any path depth
	for i := range parts {
		if matchSegments(r.segments, parts[i:]) || matchPrefixDir(r.segments, parts[i:]) {
			return true
		}
	}
	return false
}

// matchesParent reports whether any ancestor directory of relPath matches
// the (dir-only) rule, which ignores everything beneath it.
func (r rule) matchesParent(relPath string) bool {
	parts := strings.Split(relPath, "/")
	for end := 1; end < len(parts); end++ {
		prefix := strings.Join(parts[:end], "/")
		if r.matches(prefix) {
			return true
		}
	}
	return false
}

// matchPrefixDir treats a full-pattern match of a leading directory as a
// match for everything under it (git semantics: "build" ignores build/x/y).
func matchPrefixDir(pattern, parts []string) bool {
	for end := 1; end < len(parts); end++ {
		if matchSegments(pattern, parts[:end]) {
			return true
		}
	}
	return false
}

// matchSegments matches the whole pattern against the whole path, with
// "**" spanning zero or more segments.
func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		// ** absorbs zero..all leading segments
		for skip := 0; skip <= len(parts); skip++ {
			if matchSegments(pattern[1:], parts[skip:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	if !matchSegment(pattern[0], parts[0]) {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}

// matchSegment matches one glob segment ('*' and '?', no '/') against one
// path segment.
func matchSegment(pattern, s string) bool {
	pi, si := 0, 0
	starP, starS := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			starP, starS = pi, si
			pi++
		case starP >= 0:
			starS++
			pi = starP + 1
			si = starS
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
