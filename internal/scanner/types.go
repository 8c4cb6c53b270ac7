// Package scanner enumerates the indexable files under a root: layered
// ignore rules, size and binary filters, and a deterministic traversal
// order so progress reads the same on every run.
package scanner

import (
	"path/filepath"
	"strings"
	"time"
)

// ContentType classifies a file for chunker selection.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
	ContentTypeConfig   ContentType = "config"
)

// FileInfo describes one walked file.
type FileInfo struct {
	Path        string // relative to the root, '/'-separated
	AbsPath     string
	Size        int64
	ModTime     time.Time
	ContentType ContentType
	Language    string
}

// ScanOptions configures one walk.
type ScanOptions struct {
	// RootDir is the tree to enumerate.
	RootDir string

	// ExcludePatterns are user-supplied gitignore-style patterns.
	ExcludePatterns []string

	// SecretPatterns are applied after ExcludePatterns; they exist so
	// sensitive-file rules can be configured separately.
	SecretPatterns []string

	// RespectGitignore honors per-root .gitignore plus the tool-specific
	// override file (which is applied after, so it can re-include).
	RespectGitignore bool

	// IncludeHidden walks dotfiles and dot-directories.
	IncludeHidden bool

	// MaxFileSize drops files above this many bytes. Zero means 10MB.
	MaxFileSize int64
}

// ScanResult is one walker emission: a file, or a recorded warning for a
// skipped unreadable entry.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize caps walked files at 10MB.
const DefaultMaxFileSize = 10 * 1024 * 1024

// OverrideIgnoreFile is the tool-specific ignore file, layered after
// .gitignore so its rules win.
const OverrideIgnoreFile = ".codeintelignore"

// languageByExtension drives language detection; extensions absent here
// still walk as plain text unless the binary filter drops them.
var languageByExtension = map[string]string{
	".go": "go",

	".ts": "typescript", ".tsx": "tsx",
	".js": "javascript", ".jsx": "jsx", ".mjs": "javascript",

	".py": "python", ".pyi": "python",
	".rs": "rust",
	".c":  "c", ".h": "c",
	".cc": "cpp", ".cpp": "cpp", ".cxx": "cpp", ".hpp": "cpp", ".hh": "cpp",
	".java": "java",
	".sol":  "solidity",

	".rb": "ruby", ".php": "php", ".cs": "csharp", ".kt": "kotlin",
	".swift": "swift", ".scala": "scala", ".lua": "lua",
	".sh": "shell", ".bash": "shell", ".zsh": "shell",
	".sql": "sql", ".proto": "protobuf", ".graphql": "graphql",
	".html": "html", ".css": "css", ".scss": "scss", ".vue": "vue", ".svelte": "svelte",

	".md": "markdown", ".mdx": "markdown", ".markdown": "markdown", ".rst": "rst",
	".txt": "text", ".log": "text",

	".json": "json", ".yaml": "yaml", ".yml": "yaml", ".toml": "toml",
	".xml": "xml", ".ini": "ini", ".conf": "config",
}

// codeLanguages marks which detected languages chunk through the AST path.
var codeLanguages = map[string]bool{
	"go": true, "typescript": true, "tsx": true, "javascript": true,
	"jsx": true, "python": true, "rust": true, "c": true, "cpp": true,
	"java": true, "solidity": true, "ruby": true, "php": true,
	"csharp": true, "kotlin": true, "swift": true, "scala": true,
	"lua": true, "shell": true, "sql": true, "protobuf": true,
	"graphql": true, "html": true, "css": true, "scss": true,
	"vue": true, "svelte": true,
}

var configLanguages = map[string]bool{
	"json": true, "yaml": true, "toml": true, "xml": true,
	"ini": true, "config": true,
}

// DetectLanguage maps a path to a language name, or "" when unknown.
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	switch base {
	case "Dockerfile":
		return "dockerfile"
	case "Makefile", "makefile":
		return "makefile"
	}
	return languageByExtension[strings.ToLower(filepath.Ext(base))]
}

// DetectContentType classifies a detected language.
func DetectContentType(language string) ContentType {
	switch {
	case language == "markdown" || language == "rst":
		return ContentTypeMarkdown
	case codeLanguages[language] || language == "dockerfile" || language == "makefile":
		return ContentTypeCode
	case configLanguages[language]:
		return ContentTypeConfig
	default:
		return ContentTypeText
	}
}
