package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeintel/codeintel/internal/chunk"
	"github.com/codeintel/codeintel/internal/hash"
)

// Extractor parses a file once and emits the Symbol/Dependency/CallEdge
// streams the store and daemon consume. Each exported method walks the same
// parsed tree a different way rather than re-parsing.
type Extractor struct {
	parser *chunk.Parser
}

// NewExtractor creates an Extractor with its own tree-sitter parser.
func NewExtractor() *Extractor {
	return &Extractor{parser: chunk.NewParser()}
}

// Close releases the underlying parser.
func (e *Extractor) Close() {
	e.parser.Close()
}

// Extract parses source and emits the three streams for one file. On any
// parse error it returns an empty Extraction rather than propagating the
// error: a parse failure must never abort indexing.
func (e *Extractor) Extract(ctx context.Context, relPath, absPath string, source []byte, language string) *Extraction {
	// Solidity has no tree-sitter grammar available; it gets a lexical
	// front end that never touches the parser.
	if language == "solidity" {
		fe := &fileExtraction{
			lang:    language,
			relPath: relPath,
			absPath: absPath,
			source:  source,
			byName:  map[string]string{},
			ext:     &Extraction{},
		}
		fe.walkSolidity()
		return fe.ext
	}

	tree, err := e.parser.Parse(ctx, source, language)
	if err != nil || tree == nil || tree.Root == nil || tree.Root.HasError {
		return &Extraction{}
	}

	fe := &fileExtraction{
		lang:    language,
		relPath: relPath,
		absPath: absPath,
		source:  source,
		byName:  map[string]string{}, // qualified name -> symbol id, for parent/callee resolution
		ext:     &Extraction{},
	}

	switch language {
	case "go":
		fe.walkGo(tree.Root)
	case "typescript", "tsx", "javascript", "jsx":
		fe.walkJSFamily(tree.Root)
	case "python":
		fe.walkPython(tree.Root)
	default:
		fe.walkGeneric(tree.Root)
	}

	return fe.ext
}

// fileExtraction carries the mutable state threaded through one file's walk:
// the scope stack (a functional traversal carrying the stack as
// a parameter is equivalent to a mutable-stack walk; here the stack lives on
// the struct since each fileExtraction is single-file, single-goroutine) and
// a name->id map used to resolve parent ids and, lazily, callee ids.
type fileExtraction struct {
	lang    string
	relPath string
	absPath string
	source  []byte

	byName map[string]string
	ext    *Extraction

	scope []scopeFrame
}

type scopeFrame struct {
	symbolID string
	name     string // qualified name, e.g. "Class.method"
}

func (f *fileExtraction) content(n *chunk.Node) string {
	return n.GetContent(f.source)
}

func (f *fileExtraction) currentCallerID() string {
	if len(f.scope) == 0 {
		return "file:" + f.relPath
	}
	return f.scope[len(f.scope)-1].symbolID
}

func (f *fileExtraction) symbolID(qualifiedName string, kind Kind) string {
	return hash.String(f.relPath + "|" + qualifiedName + "|" + string(kind))
}

// callEdgeID derives a stable id for a call site from its position, since a
// call site has no natural qualified name the way a symbol does.
func callEdgeID(relPath string, line, col int, calleeName string) string {
	return hash.String(fmt.Sprintf("%s|%d|%d|%s", relPath, line, col, calleeName))
}

// dependencyID derives a stable id for an import/export edge.
func dependencyID(relPath string, line int, target string) string {
	return hash.String(fmt.Sprintf("%s|%d|%s", relPath, line, target))
}

func (f *fileExtraction) addSymbol(s *Symbol) {
	s.AbsolutePath = f.absPath
	s.RelativePath = f.relPath
	f.ext.Symbols = append(f.ext.Symbols, s)
}

func (f *fileExtraction) addDependency(d *Dependency) {
	d.SourceFile = f.relPath
	f.ext.Dependencies = append(f.ext.Dependencies, d)
}

func (f *fileExtraction) addCall(c *CallEdge) {
	c.CallerFile = f.relPath
	f.ext.Calls = append(f.ext.Calls, c)
}

// docComment looks at the line immediately preceding n for a line comment.
// Mirrors internal/chunk's extractor: nearest preceding comment only, no
// multi-line doc-block aggregation.
func docComment(n *chunk.Node, source []byte, lineCommentPrefixes ...string) string {
	if n.StartPoint.Row == 0 {
		return ""
	}
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}
	prevEnd := lineStart - 1
	prevStart := prevEnd
	for prevStart > 0 && source[prevStart-1] != '\n' {
		prevStart--
	}
	prev := strings.TrimSpace(string(source[prevStart:prevEnd]))
	for _, p := range lineCommentPrefixes {
		if strings.HasPrefix(prev, p) {
			return strings.TrimSpace(strings.TrimPrefix(prev, p))
		}
	}
	return ""
}

func firstLine(content string) string {
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		return strings.TrimSpace(content[:idx])
	}
	return strings.TrimSpace(content)
}

func sigUpTo(content string, sep byte) string {
	line := firstLine(content)
	if idx := strings.IndexByte(line, sep); idx >= 0 {
		return strings.TrimSpace(line[:idx])
	}
	return line
}
