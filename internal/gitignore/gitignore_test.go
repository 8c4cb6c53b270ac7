package gitignore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matcher(t *testing.T, rules string) *Matcher {
	t.Helper()
	m, err := Parse(strings.NewReader(rules))
	require.NoError(t, err)
	return m
}

func TestBasenamePatternMatchesAnyDepth(t *testing.T) {
	m := matcher(t, "*.log\n")
	assert.True(t, m.Ignored("debug.log", false))
	assert.True(t, m.Ignored("deep/nested/trace.log", false))
	assert.False(t, m.Ignored("debug.log.txt", false))
}

func TestAnchoredPattern(t *testing.T) {
	m := matcher(t, "/build\n")
	assert.True(t, m.Ignored("build", true))
	assert.True(t, m.Ignored("build/out.bin", false))
	assert.False(t, m.Ignored("src/build", true))
}

func TestInteriorSlashAnchors(t *testing.T) {
	m := matcher(t, "docs/internal\n")
	assert.True(t, m.Ignored("docs/internal", true))
	assert.True(t, m.Ignored("docs/internal/page.md", false))
	assert.False(t, m.Ignored("other/docs/internal", true))
}

func TestDirOnlyPattern(t *testing.T) {
	m := matcher(t, "cache/\n")
	assert.True(t, m.Ignored("cache", true))
	assert.False(t, m.Ignored("cache", false), "dir-only must not match a plain file")
	assert.True(t, m.Ignored("cache/entry.bin", false), "files under a matched dir are ignored")
}

func TestNegationReincludes(t *testing.T) {
	m := matcher(t, "*.log\n!keep.log\n")
	assert.True(t, m.Ignored("a.log", false))
	assert.False(t, m.Ignored("keep.log", false))
}

func TestLastMatchWins(t *testing.T) {
	m := matcher(t, "!keep.log\n*.log\n")
	// the later *.log rule overrides the earlier negation
	assert.True(t, m.Ignored("keep.log", false))
}

func TestDoubleStarSpansSegments(t *testing.T) {
	m := matcher(t, "vendor/**/generated\n")
	assert.True(t, m.Ignored("vendor/generated", true))
	assert.True(t, m.Ignored("vendor/a/b/generated", true))
	assert.False(t, m.Ignored("vendor/a/generated-extra", true))

	m2 := matcher(t, "**/node_modules\n")
	assert.True(t, m2.Ignored("node_modules", true))
	assert.True(t, m2.Ignored("web/app/node_modules", true))
	assert.True(t, m2.Ignored("web/app/node_modules/pkg/index.js", false))
}

func TestQuestionMarkAndStarInSegment(t *testing.T) {
	m := matcher(t, "temp?\nsrc/*.gen.go\n")
	assert.True(t, m.Ignored("temp1", false))
	assert.False(t, m.Ignored("temp12", false))
	assert.True(t, m.Ignored("src/api.gen.go", false))
	assert.False(t, m.Ignored("src/sub/api.gen.go", false))
}

func TestCommentsAndBlanksSkipped(t *testing.T) {
	m := matcher(t, "# a comment\n\n*.tmp\n")
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Ignored("x.tmp", false))
}

func TestAppendLayersOverrides(t *testing.T) {
	base := matcher(t, "docs/\n")
	override := matcher(t, "!docs/\n")
	base.Append(override)

	// the tool-specific layer re-includes what gitignore excluded
	assert.False(t, base.Ignored("docs", true))
}

func TestParseFileMissingIsEmpty(t *testing.T) {
	m, err := ParseFile("/definitely/not/here/.gitignore")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Ignored("anything", false))
}
