package chunk

import (
	"context"
	"strings"
	"time"
)

// CodeChunkerOptions bounds the packing pass.
type CodeChunkerOptions struct {
	MaxChunkTokens int
	OverlapTokens  int
}

// CodeChunker is the AST-aware strategy: parse the file, collect top-level
// declaration boundaries, and pack them greedily into chunks up to the
// token bound. A boundary that alone exceeds the bound is split by the
// plain-text rule; a file that fails to parse falls back to plain-text
// chunking entirely, with every produced chunk marked as fallback.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
	options  CodeChunkerOptions
	fallback *TextChunker
}

// NewCodeChunker creates a code chunker with default bounds.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a code chunker with explicit bounds.
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxChunkTokens <= 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens <= 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &CodeChunker{
		parser:   NewParser(),
		registry: DefaultRegistry(),
		options:  opts,
		fallback: NewTextChunkerWithOptions(TextChunkerOptions{
			MaxChunkTokens: opts.MaxChunkTokens,
			OverlapTokens:  opts.OverlapTokens,
		}),
	}
}

// Close releases the parser.
func (c *CodeChunker) Close() {
	c.parser.Close()
}

// SupportedExtensions lists the extensions with a registered grammar.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// boundary is one packable top-level span: a declaration, an import group,
// or an unclassified run of source between declarations.
type boundary struct {
	startLine int
	endLine   int
	text      string
	symbol    *Symbol // nil for unclassified spans
}

// Chunk splits one code file.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	cfg, ok := c.registry.GetByName(file.Language)
	if !ok {
		// no grammar: plain-text strategy, not a parse failure
		return c.fallback.Chunk(ctx, file)
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil || tree.Root == nil || tree.Root.HasError {
		return c.markFallback(c.fallback.Chunk(ctx, file))
	}

	boundaries := c.collectBoundaries(tree, cfg)
	if len(boundaries) == 0 {
		return c.fallback.Chunk(ctx, file)
	}

	fileContext := c.fileContext(tree)
	now := time.Now()

	var chunks []*Chunk
	var open []boundary
	openTokens := 0

	flush := func() {
		if len(open) == 0 {
			return
		}
		chunks = append(chunks, c.packChunk(file, open, fileContext, now))
		open = nil
		openTokens = 0
	}

	for _, b := range boundaries {
		t := estimateTokens(b.text)
		if t > c.options.MaxChunkTokens {
			flush()
			chunks = append(chunks, c.splitOversized(ctx, file, b, fileContext, now)...)
			continue
		}
		if openTokens+t > c.options.MaxChunkTokens {
			flush()
		}
		open = append(open, b)
		openTokens += t
	}
	flush()

	return chunks, nil
}

// markFallback stamps every chunk of a parse-failure fallback run.
func (c *CodeChunker) markFallback(chunks []*Chunk, err error) ([]*Chunk, error) {
	if err != nil {
		return nil, err
	}
	for _, ch := range chunks {
		if ch.Metadata == nil {
			ch.Metadata = map[string]string{}
		}
		ch.Metadata[MetaFallback] = "true"
		ch.ContentType = ContentTypeCode
	}
	return chunks, nil
}

// collectBoundaries walks the root's direct children, coalescing import
// and package clauses into one group and classifying declarations.
func (c *CodeChunker) collectBoundaries(tree *Tree, cfg *LanguageConfig) []boundary {
	var out []boundary
	var importGroup *boundary

	closeImports := func() {
		if importGroup != nil {
			out = append(out, *importGroup)
			importGroup = nil
		}
	}

	for _, n := range tree.Root.Children {
		text := n.GetContent(tree.Source)
		if strings.TrimSpace(text) == "" {
			continue
		}

		if isImportish(n.Type) {
			if importGroup == nil {
				importGroup = &boundary{
					startLine: n.Line(),
					endLine:   n.EndLine(),
					text:      text,
					symbol:    &Symbol{Name: "imports", Type: SymbolTypeImports, StartLine: n.Line(), EndLine: n.EndLine()},
				}
			} else {
				importGroup.endLine = n.EndLine()
				importGroup.text += "\n" + text
				importGroup.symbol.EndLine = n.EndLine()
			}
			continue
		}
		closeImports()

		b := boundary{startLine: n.Line(), endLine: n.EndLine(), text: text}
		if symType, ok := classify(n.Type, cfg); ok {
			b.symbol = &Symbol{
				Name:       declName(n, tree.Source),
				Type:       symType,
				StartLine:  n.Line(),
				EndLine:    n.EndLine(),
				Signature:  firstSourceLine(text),
				DocComment: precedingComment(tree, n),
			}
		}
		out = append(out, b)
	}
	closeImports()
	return out
}

// packChunk renders one chunk from a run of boundaries.
func (c *CodeChunker) packChunk(file *FileInput, run []boundary, fileContext string, now time.Time) *Chunk {
	var parts []string
	var symbols []*Symbol
	for _, b := range run {
		parts = append(parts, b.text)
		if b.symbol != nil {
			symbols = append(symbols, b.symbol)
		}
	}
	raw := strings.Join(parts, "\n\n")

	ch := &Chunk{
		ID:          generateChunkID(file.Path, run[0].startLine, raw),
		FilePath:    file.Path,
		RawContent:  raw,
		Content:     withContext(fileContext, raw),
		Context:     fileContext,
		ContentType: ContentTypeCode,
		Language:    file.Language,
		StartLine:   run[0].startLine,
		EndLine:     run[len(run)-1].endLine,
		Symbols:     symbols,
		Metadata:    map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(symbols) > 0 {
		ch.Metadata["symbol"] = symbols[0].Name
		ch.Metadata["symbolType"] = string(symbols[0].Type)
		if symbols[0].Parent != "" {
			ch.Metadata["symbolParent"] = symbols[0].Parent
		}
	}
	return ch
}

// splitOversized applies the plain-text rule inside a single boundary that
// exceeds the chunk bound, keeping the boundary's symbol label on every
// produced piece.
func (c *CodeChunker) splitOversized(ctx context.Context, file *FileInput, b boundary, fileContext string, now time.Time) []*Chunk {
	pieces, err := c.fallback.Chunk(ctx, &FileInput{
		Path:     file.Path,
		Content:  []byte(b.text),
		Language: file.Language,
	})
	if err != nil || len(pieces) == 0 {
		single := c.packChunk(file, []boundary{b}, fileContext, now)
		return []*Chunk{single}
	}

	out := make([]*Chunk, 0, len(pieces))
	for _, p := range pieces {
		ch := &Chunk{
			ID:          generateChunkID(file.Path, b.startLine+p.StartLine-1, p.RawContent),
			FilePath:    file.Path,
			RawContent:  p.RawContent,
			Content:     withContext(fileContext, p.RawContent),
			Context:     fileContext,
			ContentType: ContentTypeCode,
			Language:    file.Language,
			StartLine:   b.startLine + p.StartLine - 1,
			EndLine:     b.startLine + p.EndLine - 1,
			Metadata:    map[string]string{},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if b.symbol != nil {
			ch.Symbols = []*Symbol{b.symbol}
			ch.Metadata["symbol"] = b.symbol.Name
			ch.Metadata["symbolType"] = string(b.symbol.Type)
		}
		out = append(out, ch)
	}
	return out
}

// fileContext extracts the package clause and import block so every chunk
// can carry the file's reference frame.
func (c *CodeChunker) fileContext(tree *Tree) string {
	var parts []string
	for _, n := range tree.Root.Children {
		if (isImportish(n.Type) && n.Type != "export_statement") || n.Type == "package_clause" {
			parts = append(parts, n.GetContent(tree.Source))
		}
	}
	return strings.Join(parts, "\n")
}

func withContext(fileContext, raw string) string {
	if fileContext == "" || strings.Contains(raw, fileContext) {
		return raw
	}
	return fileContext + "\n\n" + raw
}

// isImportish reports node types that belong to a file's import/package
// preamble across the registered grammars.
func isImportish(nodeType string) bool {
	switch nodeType {
	case "package_clause", "import_declaration", "import_statement",
		"import_from_statement", "export_statement", "use_declaration",
		"preproc_include", "package_declaration":
		return true
	}
	return false
}

// classify maps a node type to the symbol type it declares under cfg.
func classify(nodeType string, cfg *LanguageConfig) (SymbolType, bool) {
	for _, t := range cfg.FunctionTypes {
		if t == nodeType {
			return SymbolTypeFunction, true
		}
	}
	for _, t := range cfg.MethodTypes {
		if t == nodeType {
			return SymbolTypeMethod, true
		}
	}
	for _, t := range cfg.ClassTypes {
		if t == nodeType {
			return SymbolTypeClass, true
		}
	}
	for _, t := range cfg.InterfaceTypes {
		if t == nodeType {
			return SymbolTypeInterface, true
		}
	}
	for _, t := range cfg.TypeDefTypes {
		if t == nodeType {
			return SymbolTypeType, true
		}
	}
	for _, t := range cfg.ConstantTypes {
		if t == nodeType {
			return SymbolTypeConstant, true
		}
	}
	for _, t := range cfg.VariableTypes {
		if t == nodeType {
			return SymbolTypeVariable, true
		}
	}
	return "", false
}

// declName digs an identifier out of a declaration node. Grammars differ
// in where the name lives, so this tries direct identifier children first,
// then declarator wrappers, then the first identifier in the subtree.
func declName(n *Node, source []byte) string {
	for _, c := range n.Children {
		switch c.Type {
		case "identifier", "type_identifier", "field_identifier", "property_identifier", "name":
			return c.GetContent(source)
		}
	}
	for _, c := range n.Children {
		switch c.Type {
		case "variable_declarator", "init_declarator", "function_declarator",
			"type_spec", "const_spec", "var_spec":
			if name := declName(c, source); name != "" {
				return name
			}
		}
	}
	var found string
	n.Walk(func(m *Node) bool {
		if found != "" {
			return false
		}
		if m != n && (m.Type == "identifier" || m.Type == "type_identifier") {
			found = m.GetContent(source)
			return false
		}
		return true
	})
	if found == "" {
		return "(anonymous)"
	}
	return found
}

// firstSourceLine is a declaration's signature as written: its first line,
// trimmed, with a trailing opening brace removed.
func firstSourceLine(text string) string {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	return strings.TrimSpace(strings.TrimSuffix(line, "{"))
}

// precedingComment returns the comment node that ends on the line directly
// above n, if the tree carries one at top level.
func precedingComment(tree *Tree, n *Node) string {
	var prev *Node
	for _, c := range tree.Root.Children {
		if c == n {
			break
		}
		prev = c
	}
	if prev == nil || !strings.Contains(prev.Type, "comment") {
		return ""
	}
	if int(prev.EndPoint.Row)+1 != int(n.StartPoint.Row) {
		return ""
	}
	return cleanComment(prev.GetContent(tree.Source))
}

func cleanComment(raw string) string {
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "///")
		l = strings.TrimPrefix(l, "//")
		l = strings.TrimPrefix(l, "/*")
		l = strings.TrimSuffix(l, "*/")
		l = strings.TrimPrefix(strings.TrimSpace(l), "* ")
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}
