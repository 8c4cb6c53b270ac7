package chunk

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// sentenceBoundarySearch is how far (in characters) around the target split
// point the chunker looks for a sentence terminator before falling back to
// the nearest whitespace, then a hard split.
const sentenceBoundarySearch = 100

// TextChunkerOptions configures the plain-text chunker behavior.
type TextChunkerOptions struct {
	MaxChunkTokens int // soft upper bound on a chunk
	OverlapTokens  int // lower bound on trailing context reused by the next chunk
}

// TextChunker implements the default plain-text strategy: a greedy window
// of MaxChunkTokens with boundaries snapped to sentence terminators, then
// whitespace, then a hard split.
type TextChunker struct {
	options TextChunkerOptions
}

// NewTextChunker creates a new plain-text chunker with default options.
func NewTextChunker() *TextChunker {
	return NewTextChunkerWithOptions(TextChunkerOptions{})
}

// NewTextChunkerWithOptions creates a new plain-text chunker with custom options.
func NewTextChunkerWithOptions(opts TextChunkerOptions) *TextChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &TextChunker{options: opts}
}

// Close releases chunker resources. TextChunker is stateless.
func (c *TextChunker) Close() {}

// SupportedExtensions returns file extensions this chunker handles. The
// plain-text chunker is also the fallback for any extension not claimed
// by a more specific chunker.
func (c *TextChunker) SupportedExtensions() []string {
	return []string{".txt", ".log", ".csv", ".tsv"}
}

// Chunk splits plain text into a greedy window sequence.
func (c *TextChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	maxChars := c.options.MaxChunkTokens * CharsPerToken
	overlapChars := c.options.OverlapTokens * CharsPerToken
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	now := time.Now()
	var chunks []*Chunk

	start := 0
	for start < len(content) {
		end := start + maxChars
		if end >= len(content) {
			end = len(content)
		} else {
			end = snapToBoundary(content, start, end)
		}

		text := content[start:end]
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, c.createChunk(file, text, countLineOffset(content, start)+1, countLineOffset(content, end)+1, now))
		}

		if end >= len(content) {
			break
		}

		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, nil
}

func (c *TextChunker) createChunk(file *FileInput, content string, startLine, endLine int, now time.Time) *Chunk {
	return &Chunk{
		ID:          generateChunkID(file.Path, startLine, content),
		FilePath:    file.Path,
		Content:     content,
		RawContent:  content,
		ContentType: ContentTypeText,
		Language:    file.Language,
		StartLine:   startLine,
		EndLine:     endLine,
		Metadata:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// snapToBoundary finds the best split point near target (on either side of
// it), preferring a sentence terminator within ±sentenceBoundarySearch
// characters, else the nearest whitespace, else a hard split at target.
func snapToBoundary(content string, start, target int) int {
	lo := target - sentenceBoundarySearch
	if lo < start {
		lo = start
	}
	hi := target + sentenceBoundarySearch
	if hi > len(content) {
		hi = len(content)
	}

	// Prefer a sentence terminator closest to target, searching outward.
	if idx, ok := nearestSentenceEnd(content, lo, hi, target); ok {
		return idx
	}

	// Fall back to the nearest whitespace to target.
	if idx, ok := nearestWhitespace(content, lo, hi, target); ok {
		return idx
	}

	// Hard split.
	return target
}

func nearestSentenceEnd(content string, lo, hi, target int) (int, bool) {
	best := -1
	bestDist := -1
	for i := lo; i < hi; i++ {
		c := content[i]
		if c == '.' || c == '!' || c == '?' {
			// Split just after the terminator (and any following close-quote/paren).
			split := i + 1
			for split < len(content) && (content[split] == '"' || content[split] == '\'' || content[split] == ')') {
				split++
			}
			dist := split - target
			if dist < 0 {
				dist = -dist
			}
			if best == -1 || dist < bestDist {
				best = split
				bestDist = dist
			}
		}
	}
	return best, best != -1
}

func nearestWhitespace(content string, lo, hi, target int) (int, bool) {
	best := -1
	bestDist := -1
	for i := lo; i < hi; i++ {
		if unicode.IsSpace(rune(content[i])) {
			dist := i - target
			if dist < 0 {
				dist = -dist
			}
			if best == -1 || dist < bestDist {
				best = i + 1
				bestDist = dist
			}
		}
	}
	return best, best != -1
}

func countLineOffset(content string, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return strings.Count(content[:offset], "\n")
}
