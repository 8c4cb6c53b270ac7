package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder()

	a, err := e.Embed(context.Background(), "retry with backoff")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "retry with backoff")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedderUnitLength(t *testing.T) {
	e := NewStaticEmbedder768()
	v, err := e.Embed(context.Background(), "some text to embed")
	require.NoError(t, err)
	require.Len(t, v, Static768Dimensions)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestStaticEmbedderSharedTokensAreCloser(t *testing.T) {
	e := NewStaticEmbedder768()
	ctx := context.Background()

	base, err := e.Embed(ctx, "open the database connection")
	require.NoError(t, err)
	near, err := e.Embed(ctx, "close the database connection")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "render markdown headers quickly")
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}
	assert.Greater(t, dot(base, near), dot(base, far))
}

func TestStaticEmbedderEmptyText(t *testing.T) {
	e := NewStaticEmbedder()
	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, v, StaticDimensions)
}

func TestParseProvider(t *testing.T) {
	assert.Equal(t, ProviderOllama, ParseProvider("ollama"))
	assert.Equal(t, ProviderStatic, ParseProvider("static"))
	assert.Equal(t, ProviderStatic, ParseProvider("offline"))
	assert.Equal(t, ProviderAuto, ParseProvider(""))
	assert.Equal(t, ProviderAuto, ParseProvider("something-else"))
}

func TestParseModelID(t *testing.T) {
	p, m := ParseModelID("ollama:embeddinggemma")
	assert.Equal(t, ProviderOllama, p)
	assert.Equal(t, "embeddinggemma", m)

	p, m = ParseModelID("bare-model")
	assert.Equal(t, ProviderAuto, p)
	assert.Equal(t, "bare-model", m)
}

func TestNewEmbedderStatic(t *testing.T) {
	e, err := NewEmbedder(context.Background(), ProviderStatic, "")
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, Static768Dimensions, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}
