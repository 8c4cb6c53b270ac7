package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codeintel/codeintel/internal/gitignore"
)

// builtinExcludedDirs are pruned before any configurable rule runs:
// version control, dependency trees, build output, caches.
var builtinExcludedDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true,
	"node_modules": true, "vendor": true, "bower_components": true,
	"dist": true, "build": true, "out": true, "target": true,
	"__pycache__": true, ".venv": true, "venv": true,
	".next": true, ".nuxt": true, "coverage": true,
	".idea": true, ".vscode": true, ".codeintel": true,
}

// builtinExcludedFiles drop lockfiles, minified bundles, and files that
// commonly hold credentials.
var builtinExcludedFiles = []string{
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum",
	"Cargo.lock", "poetry.lock", "Gemfile.lock", "composer.lock",
	"*.min.js", "*.min.css", "*.map", "*.bundle.js",
	".env", ".env.*", "*.pem", "*.key", "*.p12", "*.pfx",
	"id_rsa", "id_rsa.*", "id_ed25519", "id_ed25519.*", "*.keystore",
}

// binaryExtensions drop files that are never text.
var binaryExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true,
	".o": true, ".bin": true, ".wasm": true, ".class": true, ".jar": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".ico": true, ".bmp": true, ".tiff": true, ".svgz": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
	".7z": true, ".rar": true, ".pdf": true, ".doc": true, ".docx": true,
	".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".db": true, ".sqlite": true, ".hnsw": true,
}

// scopedMatcher is one ignore file's matcher, rooted at the directory
// (relative to the walk root) that holds the file.
type scopedMatcher struct {
	prefix  string // "" for the root
	matcher *gitignore.Matcher
}

// Scanner walks roots. It is stateless; one Scanner serves many walks.
type Scanner struct{}

// New returns a Scanner.
func New() (*Scanner, error) {
	return &Scanner{}, nil
}

// Scan enumerates regular files under opts.RootDir in a stable order:
// depth-first, directory entries sorted lexicographically. Results stream
// over the returned channel; unreadable directories and unstatable files
// surface as warning results and the walk continues. The walker never
// follows symbolic links.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if fi, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	excludes, err := compilePatterns(opts.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	secrets, err := compilePatterns(opts.SecretPatterns)
	if err != nil {
		return nil, fmt.Errorf("secret patterns: %w", err)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	w := &walk{
		root:     absRoot,
		opts:     opts,
		excludes: excludes,
		secrets:  secrets,
		maxSize:  maxSize,
		results:  make(chan ScanResult, 64),
	}

	go func() {
		defer close(w.results)
		var ignores []scopedMatcher
		if opts.RespectGitignore {
			ignores = w.loadIgnores("", ignores)
		}
		w.dir(ctx, absRoot, "", ignores)
	}()

	return w.results, nil
}

type walk struct {
	root     string
	opts     *ScanOptions
	excludes *gitignore.Matcher
	secrets  *gitignore.Matcher
	maxSize  int64
	results  chan ScanResult
}

// dir walks one directory level. Entries come back from ReadDir sorted,
// which is what gives the whole traversal its deterministic order.
func (w *walk) dir(ctx context.Context, abs, rel string, ignores []scopedMatcher) {
	entries, err := os.ReadDir(abs)
	if err != nil {
		w.emit(ScanResult{Error: fmt.Errorf("read %s: %w", rel, err)})
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}

		name := entry.Name()
		entryRel := name
		if rel != "" {
			entryRel = rel + "/" + name
		}
		entryAbs := filepath.Join(abs, name)
		isDir := entry.IsDir()

		if entry.Type()&os.ModeSymlink != 0 {
			continue // never followed, in or out of the root
		}
		if w.skip(name, entryRel, isDir, ignores) {
			continue
		}

		if isDir {
			child := ignores
			if w.opts.RespectGitignore {
				child = w.loadIgnores(entryRel, ignores)
			}
			w.dir(ctx, entryAbs, entryRel, child)
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			w.emit(ScanResult{Error: fmt.Errorf("stat %s: %w", entryRel, err)})
			continue
		}
		if info.Size() > w.maxSize {
			continue
		}
		if binaryExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}

		language := DetectLanguage(name)
		w.emit(ScanResult{File: &FileInfo{
			Path:        entryRel,
			AbsPath:     entryAbs,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			ContentType: DetectContentType(language),
			Language:    language,
		}})
	}
}

// skip applies the exclusion rules in their documented order: built-ins,
// user excludes, secret patterns, ignore files, then the dotfile rule.
func (w *walk) skip(name, rel string, isDir bool, ignores []scopedMatcher) bool {
	if isDir && builtinExcludedDirs[name] {
		return true
	}
	if !isDir && matchesAny(builtinExcludedFiles, name) {
		return true
	}
	if w.excludes.Ignored(rel, isDir) {
		return true
	}
	if w.secrets.Ignored(rel, isDir) {
		return true
	}
	for _, sm := range ignores {
		scoped := rel
		if sm.prefix != "" {
			if !strings.HasPrefix(rel, sm.prefix+"/") {
				continue
			}
			scoped = rel[len(sm.prefix)+1:]
		}
		if sm.matcher.Ignored(scoped, isDir) {
			return true
		}
	}
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return false
}

// loadIgnores reads dirRel's .gitignore and the tool override file and
// appends them to the inherited stack. The override is appended to the
// same matcher after .gitignore so its rules win, including re-includes.
func (w *walk) loadIgnores(dirRel string, inherited []scopedMatcher) []scopedMatcher {
	absDir := filepath.Join(w.root, filepath.FromSlash(dirRel))

	combined, err := gitignore.ParseFile(filepath.Join(absDir, ".gitignore"))
	if err != nil {
		combined = &gitignore.Matcher{}
	}
	if override, err := gitignore.ParseFile(filepath.Join(absDir, OverrideIgnoreFile)); err == nil {
		combined.Append(override)
	}
	if combined.Len() == 0 {
		return inherited
	}

	out := make([]scopedMatcher, len(inherited), len(inherited)+1)
	copy(out, inherited)
	return append(out, scopedMatcher{prefix: dirRel, matcher: combined})
}

func (w *walk) emit(r ScanResult) {
	w.results <- r
}

// compilePatterns builds a matcher from gitignore-style option patterns.
func compilePatterns(patterns []string) (*gitignore.Matcher, error) {
	return gitignore.Parse(strings.NewReader(strings.Join(patterns, "\n")))
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
