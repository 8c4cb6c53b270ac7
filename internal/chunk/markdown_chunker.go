package chunk

import (
	"context"
	"strings"
	"time"
)

// MarkdownChunkerOptions bounds the sectioning pass.
type MarkdownChunkerOptions struct {
	MaxChunkTokens int
	OverlapTokens  int
}

// MarkdownChunker splits Markdown at ATX headers, treats fenced code
// blocks as atomic, and attaches frontmatter to the first produced chunk.
// Each chunk carries the hierarchy of enclosing headers. Sections larger
// than the token bound are cut at line boundaries into token-bounded
// pieces, never inside a code fence; these cuts do not look for sentence
// ends and the pieces do not overlap.
type MarkdownChunker struct {
	options  MarkdownChunkerOptions
	fallback *TextChunker
}

// NewMarkdownChunker creates a Markdown chunker with default bounds.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a Markdown chunker with explicit bounds.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MaxChunkTokens <= 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens <= 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &MarkdownChunker{
		options: opts,
		fallback: NewTextChunkerWithOptions(TextChunkerOptions{
			MaxChunkTokens: opts.MaxChunkTokens,
			OverlapTokens:  opts.OverlapTokens,
		}),
	}
}

// SupportedExtensions lists the extensions this chunker claims.
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".mdx", ".markdown"}
}

// mdSection is one header-delimited span with its enclosing hierarchy.
type mdSection struct {
	headers   []string // enclosing header titles, outermost first
	startLine int      // 1-indexed
	lines     []string
}

// Chunk splits one Markdown file.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	frontmatter, bodyStart := extractFrontmatter(lines)
	sections := splitSections(lines, bodyStart)

	now := time.Now()
	var chunks []*Chunk
	for _, sec := range sections {
		text := strings.Join(sec.lines, "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		if estimateTokens(text) <= c.options.MaxChunkTokens {
			chunks = append(chunks, c.mdChunk(file, sec, text, sec.startLine, sec.startLine+len(sec.lines)-1, now))
			continue
		}
		for _, piece := range splitSectionBounded(sec.lines, c.options.MaxChunkTokens) {
			pieceText := strings.Join(piece.lines, "\n")
			if strings.TrimSpace(pieceText) == "" {
				continue
			}
			start := sec.startLine + piece.offset
			chunks = append(chunks, c.mdChunk(file, sec, pieceText, start, start+len(piece.lines)-1, now))
		}
	}

	if frontmatter != "" && len(chunks) > 0 {
		first := chunks[0]
		first.Content = frontmatter + "\n\n" + first.Content
		first.Metadata["frontmatter"] = "true"
		first.ID = generateChunkID(file.Path, first.StartLine, first.Content)
	}

	return chunks, nil
}

func (c *MarkdownChunker) mdChunk(file *FileInput, sec mdSection, text string, startLine, endLine int, now time.Time) *Chunk {
	meta := map[string]string{}
	if len(sec.headers) > 0 {
		meta["headers"] = strings.Join(sec.headers, " > ")
	}
	return &Chunk{
		ID:          generateChunkID(file.Path, startLine, text),
		FilePath:    file.Path,
		Content:     text,
		RawContent:  text,
		ContentType: ContentTypeMarkdown,
		Language:    "markdown",
		StartLine:   startLine,
		EndLine:     endLine,
		Metadata:    meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// extractFrontmatter detects a leading ----delimited block and returns it
// plus the index of the first body line.
func extractFrontmatter(lines []string) (string, int) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", 0
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[:i+1], "\n"), i + 1
		}
	}
	return "", 0
}

// splitSections walks the body once, splitting at ATX headers outside
// fenced code blocks and maintaining the enclosing header hierarchy.
func splitSections(lines []string, start int) []mdSection {
	var sections []mdSection
	// hierarchy[level-1] holds the active header title for that level
	hierarchy := make([]string, 6)
	activeLevels := 0

	cur := mdSection{startLine: start + 1}
	inFence := false
	fenceMarker := ""

	push := func() {
		if len(cur.lines) > 0 {
			sections = append(sections, cur)
		}
	}

	for i := start; i < len(lines); i++ {
		line := lines[i]

		if marker, ok := fenceDelimiter(line); ok {
			if !inFence {
				inFence = true
				fenceMarker = marker
			} else if strings.HasPrefix(strings.TrimSpace(line), fenceMarker) {
				inFence = false
			}
			cur.lines = append(cur.lines, line)
			continue
		}

		if level, title, ok := atxHeader(line); ok && !inFence {
			push()
			for j := activeLevels; j < level-1; j++ {
				hierarchy[j] = ""
			}
			hierarchy[level-1] = title
			activeLevels = level
			cur = mdSection{
				headers:   append([]string(nil), hierarchy[:activeLevels]...),
				startLine: i + 1,
				lines:     []string{line},
			}
			continue
		}

		cur.lines = append(cur.lines, line)
	}
	push()

	// drop empty hierarchy slots left by level jumps (e.g. # then ###)
	for s := range sections {
		var compact []string
		for _, h := range sections[s].headers {
			if h != "" {
				compact = append(compact, h)
			}
		}
		sections[s].headers = compact
	}
	return sections
}

// boundedPiece is one sub-span of an oversized section.
type boundedPiece struct {
	offset int // line offset within the section
	lines  []string
}

// splitSectionBounded cuts an oversized section into token-bounded pieces,
// never placing a cut inside a fenced code block: a fence that would
// overflow the current piece starts a new one, and a fence larger than the
// bound stays whole.
func splitSectionBounded(lines []string, maxTokens int) []boundedPiece {
	var pieces []boundedPiece
	var cur boundedPiece
	curTokens := 0

	flush := func(nextOffset int) {
		if len(cur.lines) > 0 {
			pieces = append(pieces, cur)
		}
		cur = boundedPiece{offset: nextOffset}
		curTokens = 0
	}

	i := 0
	for i < len(lines) {
		if marker, ok := fenceDelimiter(lines[i]); ok {
			// swallow the whole fence as one unit
			j := i + 1
			for j < len(lines) {
				if strings.HasPrefix(strings.TrimSpace(lines[j]), marker) {
					j++
					break
				}
				j++
			}
			block := lines[i:j]
			blockTokens := estimateTokens(strings.Join(block, "\n"))
			if curTokens+blockTokens > maxTokens {
				flush(i)
			}
			cur.lines = append(cur.lines, block...)
			curTokens += blockTokens
			i = j
			continue
		}

		t := estimateTokens(lines[i])
		if curTokens+t > maxTokens && len(cur.lines) > 0 {
			flush(i)
		}
		cur.lines = append(cur.lines, lines[i])
		curTokens += t
		i++
	}
	flush(len(lines))
	return pieces
}

// fenceDelimiter reports whether a line opens or closes a fenced block and
// returns the marker (``` or ~~~).
func fenceDelimiter(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if strings.HasPrefix(t, "```") {
		return "```", true
	}
	if strings.HasPrefix(t, "~~~") {
		return "~~~", true
	}
	return "", false
}

// atxHeader parses an ATX header line (# through ######).
func atxHeader(line string) (int, string, bool) {
	t := strings.TrimSpace(line)
	level := 0
	for level < len(t) && t[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(t) || t[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(t[level+1:]), true
}
