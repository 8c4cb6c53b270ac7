package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 2, estimateTokens("abcde"))
	// whitespace is stripped before counting
	assert.Equal(t, 1, estimateTokens("a b c d"))
}

func TestTextChunkerSingleChunk(t *testing.T) {
	c := NewTextChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{
		Path:    "notes.txt",
		Content: []byte("Initial content for file one."),
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Initial content for file one.", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, ContentTypeText, chunks[0].ContentType)
}

func TestTextChunkerEmptyFile(t *testing.T) {
	c := NewTextChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "empty.txt", Content: nil})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestTextChunkerOverlap(t *testing.T) {
	c := NewTextChunkerWithOptions(TextChunkerOptions{MaxChunkTokens: 10, OverlapTokens: 3})

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("word ")
	}
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "big.txt", Content: []byte(b.String())})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Content
		tail := prev[len(prev)-4:]
		assert.Contains(t, chunks[i].Content, strings.TrimSpace(tail), "consecutive chunks share trailing context")
	}
}

func TestTextChunkerDeterministicIDs(t *testing.T) {
	c := NewTextChunker()
	input := &FileInput{Path: "a.txt", Content: []byte("same words, same ids.")}

	first, err := c.Chunk(context.Background(), input)
	require.NoError(t, err)
	second, err := c.Chunk(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestMarkdownChunkerHeadersAndHierarchy(t *testing.T) {
	src := `# Guide

Intro text.

## Install

Run the installer.

### Linux

Use the tarball.
`
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "guide.md", Content: []byte(src)})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)

	var linux *Chunk
	for _, ch := range chunks {
		if strings.Contains(ch.Content, "tarball") {
			linux = ch
		}
	}
	require.NotNil(t, linux)
	assert.Equal(t, "Guide > Install > Linux", linux.Metadata["headers"])
}

func TestMarkdownChunkerFrontmatterOnFirstChunk(t *testing.T) {
	src := `---
title: Guide
---

# Body

Content here.
`
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "fm.md", Content: []byte(src)})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].Content, "title: Guide")
	assert.Equal(t, "true", chunks[0].Metadata["frontmatter"])
	if len(chunks) > 1 {
		assert.NotContains(t, chunks[1].Content, "title: Guide")
	}
}

func TestMarkdownChunkerHeaderInsideFenceIgnored(t *testing.T) {
	src := "# Top\n\n```\n# not a header\ncode line\n```\n\ntail text\n"
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "fence.md", Content: []byte(src)})
	require.NoError(t, err)
	require.Len(t, chunks, 1, "the fenced pseudo-header must not split the section")
	assert.Contains(t, chunks[0].Content, "# not a header")
}

func TestMarkdownChunkerFenceStaysWholeWhenSplitting(t *testing.T) {
	var b strings.Builder
	b.WriteString("# Big\n\n")
	for i := 0; i < 60; i++ {
		b.WriteString("prose line with several words on it\n")
	}
	b.WriteString("```\ncode one\ncode two\ncode three\n```\n")
	for i := 0; i < 60; i++ {
		b.WriteString("more prose after the fence\n")
	}

	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MaxChunkTokens: 100, OverlapTokens: 10})
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "big.md", Content: []byte(b.String())})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		opens := strings.Count(ch.Content, "```")
		assert.Equal(t, 0, opens%2, "a chunk must never hold an unbalanced fence: %q", ch.Content)
	}
}

func TestCodeChunkerGoSymbols(t *testing.T) {
	src := `package demo

import "fmt"

// Greet prints a greeting.
func Greet(name string) {
	fmt.Println("hello", name)
}

type Greeter struct{}
`
	c := NewCodeChunker()
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "demo.go", Content: []byte(src), Language: "go"})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var names []string
	for _, ch := range chunks {
		assert.Equal(t, ContentTypeCode, ch.ContentType)
		for _, s := range ch.Symbols {
			names = append(names, s.Name)
		}
	}
	assert.Contains(t, names, "Greet")
	assert.Contains(t, names, "Greeter")

	var greet *Symbol
	for _, ch := range chunks {
		for _, s := range ch.Symbols {
			if s.Name == "Greet" {
				greet = s
			}
		}
	}
	require.NotNil(t, greet)
	assert.Equal(t, SymbolTypeFunction, greet.Type)
	assert.Contains(t, greet.Signature, "func Greet(name string)")
	assert.Contains(t, greet.DocComment, "prints a greeting")
}

func TestCodeChunkerOversizedFunctionSplit(t *testing.T) {
	var b strings.Builder
	b.WriteString("package demo\n\nfunc Huge() {\n")
	for i := 0; i < 400; i++ {
		b.WriteString("\tprintln(\"filler line to inflate the function body\")\n")
	}
	b.WriteString("}\n")

	c := NewCodeChunkerWithOptions(CodeChunkerOptions{MaxChunkTokens: 100, OverlapTokens: 10})
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "huge.go", Content: []byte(b.String()), Language: "go"})
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1, "a single oversized boundary must be split")
}

func TestCodeChunkerParseFailureFallsBack(t *testing.T) {
	c := NewCodeChunker()
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{
		Path:     "broken.go",
		Content:  []byte("func ??? not really go at all {{{"),
		Language: "go",
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, "true", ch.Metadata[MetaFallback])
	}
}

func TestCodeChunkerUnknownLanguageUsesPlainText(t *testing.T) {
	c := NewCodeChunker()
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{
		Path:     "query.sql",
		Content:  []byte("select * from chunks;"),
		Language: "sql",
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Metadata[MetaFallback], "no grammar is not a parse failure")
}

func TestParserRoundTrip(t *testing.T) {
	p := NewParser()
	defer p.Close()

	tree, err := p.Parse(context.Background(), []byte("package p\n\nfunc F() {}\n"), "go")
	require.NoError(t, err)
	require.NotNil(t, tree.Root)
	assert.False(t, tree.Root.HasError)

	fn := tree.Root.FindChildByType("function_declaration")
	require.NotNil(t, fn)
	assert.Equal(t, "F", declName(fn, tree.Source))
	assert.Equal(t, 3, fn.Line())
}
