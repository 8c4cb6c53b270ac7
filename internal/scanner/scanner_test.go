package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func scanPaths(t *testing.T, opts *ScanOptions) []string {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	results, err := s.Scan(context.Background(), opts)
	require.NoError(t, err)

	var paths []string
	for r := range results {
		if r.Error != nil {
			continue
		}
		paths = append(paths, r.File.Path)
	}
	return paths
}

func TestScanDeterministicOrder(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b.txt":     "b",
		"a.txt":     "a",
		"sub/c.txt": "c",
		"sub/a.txt": "a",
	})

	first := scanPaths(t, &ScanOptions{RootDir: root})
	second := scanPaths(t, &ScanOptions{RootDir: root})
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a.txt", "b.txt", "sub/a.txt", "sub/c.txt"}, first)
}

func TestScanBuiltinExcludes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":                  "package main",
		".git/config":              "x",
		"node_modules/pkg/a.js":    "x",
		"dist/bundle.js":           "x",
		"app.min.js":               "x",
		"package-lock.json":        "{}",
		"secrets.pem":              "x",
		".env":                     "KEY=1",
		"src/util.go":              "package src",
	})

	paths := scanPaths(t, &ScanOptions{RootDir: root})
	assert.ElementsMatch(t, []string{"main.go", "src/util.go"}, paths)
}

func TestScanUserExcludes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"keep.go":          "package a",
		"drop/skipped.go":  "package b",
		"notes/readme.md":  "# hi",
	})

	paths := scanPaths(t, &ScanOptions{
		RootDir:         root,
		ExcludePatterns: []string{"drop/**", "*.md"},
	})
	assert.ElementsMatch(t, []string{"keep.go"}, paths)
}

func TestScanGitignoreAndOverride(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":       "generated/\n*.tmp\n",
		OverrideIgnoreFile: "!generated/\n",
		"generated/g.go":   "package g",
		"scratch.tmp":      "x",
		"main.go":          "package main",
	})

	paths := scanPaths(t, &ScanOptions{RootDir: root, RespectGitignore: true})
	// the override file re-includes what .gitignore excluded
	assert.Contains(t, paths, "generated/g.go")
	assert.NotContains(t, paths, "scratch.tmp")
	assert.Contains(t, paths, "main.go")
}

func TestScanNestedGitignoreScoped(t *testing.T) {
	root := writeTree(t, map[string]string{
		"sub/.gitignore": "*.log\n",
		"sub/a.log":      "x",
		"root.log":       "x",
		"sub/keep.txt":   "x",
	})

	paths := scanPaths(t, &ScanOptions{RootDir: root, RespectGitignore: true})
	assert.NotContains(t, paths, "sub/a.log", "nested ignore applies inside its directory")
	assert.Contains(t, paths, "root.log", "nested ignore must not leak upward")
	assert.Contains(t, paths, "sub/keep.txt")
}

func TestScanDotfilesSkippedUnlessIncluded(t *testing.T) {
	root := writeTree(t, map[string]string{
		".hidden.txt":      "x",
		".config/deep.txt": "x",
		"shown.txt":        "x",
	})

	paths := scanPaths(t, &ScanOptions{RootDir: root})
	assert.Equal(t, []string{"shown.txt"}, paths)

	withHidden := scanPaths(t, &ScanOptions{RootDir: root, IncludeHidden: true})
	assert.Contains(t, withHidden, ".hidden.txt")
	assert.Contains(t, withHidden, ".config/deep.txt")
}

func TestScanSizeCap(t *testing.T) {
	root := writeTree(t, map[string]string{
		"small.txt": "tiny",
		"big.txt":   strings.Repeat("x", 2048),
	})

	paths := scanPaths(t, &ScanOptions{RootDir: root, MaxFileSize: 1024})
	assert.Equal(t, []string{"small.txt"}, paths)
}

func TestScanBinaryExtensionsDropped(t *testing.T) {
	root := writeTree(t, map[string]string{
		"tool.exe":  "MZ",
		"photo.png": "PNG",
		"code.go":   "package main",
	})

	paths := scanPaths(t, &ScanOptions{RootDir: root})
	assert.Equal(t, []string{"code.go"}, paths)
}

func TestScanSymlinksNeverFollowed(t *testing.T) {
	root := writeTree(t, map[string]string{"real/file.txt": "x"})
	outside := writeTree(t, map[string]string{"escape.txt": "x"})
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	paths := scanPaths(t, &ScanOptions{RootDir: root})
	assert.Equal(t, []string{"real/file.txt"}, paths)
}

func TestScanMissingRootFails(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	_, err = s.Scan(context.Background(), &ScanOptions{RootDir: "/no/such/dir"})
	assert.Error(t, err)
}

func TestDetectLanguageAndContentType(t *testing.T) {
	assert.Equal(t, "go", DetectLanguage("a/b/main.go"))
	assert.Equal(t, "solidity", DetectLanguage("Token.sol"))
	assert.Equal(t, "dockerfile", DetectLanguage("Dockerfile"))
	assert.Equal(t, "", DetectLanguage("mystery.xyz"))

	assert.Equal(t, ContentTypeCode, DetectContentType("go"))
	assert.Equal(t, ContentTypeMarkdown, DetectContentType("markdown"))
	assert.Equal(t, ContentTypeConfig, DetectContentType("yaml"))
	assert.Equal(t, ContentTypeText, DetectContentType(""))
}
