package graph

import (
	"path"
	"strings"
)

// candidateExtensions are tried, in order, when a relative import omits the
// file extension, as ES-module and Python-style imports usually do.
var candidateExtensions = []string{
	"", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".py", ".sol", ".go", ".rs",
	".java", ".c", ".h", ".cpp", ".hpp",
}

// indexBasenames are tried when a relative import names a directory.
var indexBasenames = []string{"index.ts", "index.tsx", "index.js", "index.jsx"}

// ResolveRelative maps a relative import target to the repo-relative path of
// the file it names, or "" when no walked file matches. known reports
// whether a repo-relative path exists in the current walk.
func ResolveRelative(sourceFile, target string, known func(string) bool) string {
	if !strings.HasPrefix(target, "./") && !strings.HasPrefix(target, "../") {
		return ""
	}
	base := path.Join(path.Dir(sourceFile), target)
	for _, ext := range candidateExtensions {
		if cand := base + ext; known(cand) {
			return cand
		}
	}
	for _, idx := range indexBasenames {
		if cand := path.Join(base, idx); known(cand) {
			return cand
		}
	}
	return ""
}
