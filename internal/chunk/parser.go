package chunk

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Point is a zero-based (row, column) source position.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is an owned copy of one parse-tree node. Copying out of the
// tree-sitter arena lets callers hold nodes after the parser is reused
// for the next file.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	HasError   bool
	Children   []*Node
}

// Tree is one file's parse result.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Parser turns source bytes into a Tree for any registered language. The
// underlying tree-sitter parser handles one file at a time, so Parse is
// serialized; the returned Tree is an owned copy and safe to use from any
// goroutine.
type Parser struct {
	mu       sync.Mutex
	inner    *sitter.Parser
	registry *LanguageRegistry
}

// NewParser returns a parser over the default language registry.
func NewParser() *Parser {
	return &Parser{inner: sitter.NewParser(), registry: DefaultRegistry()}
}

// Parse parses source as the named language.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	lang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("no grammar registered for %q", language)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inner.SetLanguage(lang)

	parsed, err := p.inner.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", language, err)
	}
	if parsed == nil {
		return nil, fmt.Errorf("parse %s: empty tree", language)
	}

	return &Tree{
		Root:     copyNode(parsed.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.inner != nil {
		p.inner.Close()
	}
}

// copyNode lifts a tree-sitter node (and its subtree) into owned Nodes.
func copyNode(src *sitter.Node) *Node {
	if src == nil {
		return nil
	}
	n := &Node{
		Type:       src.Type(),
		StartByte:  src.StartByte(),
		EndByte:    src.EndByte(),
		StartPoint: Point{Row: src.StartPoint().Row, Column: src.StartPoint().Column},
		EndPoint:   Point{Row: src.EndPoint().Row, Column: src.EndPoint().Column},
		HasError:   src.HasError(),
	}
	count := int(src.ChildCount())
	if count > 0 {
		n.Children = make([]*Node, 0, count)
		for i := 0; i < count; i++ {
			if c := copyNode(src.Child(i)); c != nil {
				n.Children = append(n.Children, c)
			}
		}
	}
	return n
}

// GetContent slices the node's span out of source.
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child of the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, c := range n.Children {
		if c.Type == nodeType {
			return c
		}
	}
	return nil
}

// FindChildrenByType returns every direct child of the given type.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == nodeType {
			out = append(out, c)
		}
	}
	return out
}

// FindAllByType returns every node of the given type in the subtree,
// including n itself.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var out []*Node
	n.Walk(func(m *Node) bool {
		if m.Type == nodeType {
			out = append(out, m)
		}
		return true
	})
	return out
}

// Walk visits the subtree depth-first. Returning false from fn prunes the
// node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Line returns the node's 1-indexed start line.
func (n *Node) Line() int {
	return int(n.StartPoint.Row) + 1
}

// EndLine returns the node's 1-indexed end line.
func (n *Node) EndLine() int {
	return int(n.EndPoint.Row) + 1
}
