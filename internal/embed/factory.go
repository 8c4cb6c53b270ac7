package embed

import (
	"context"
	"fmt"
	"strings"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama"
	ProviderStatic ProviderType = "static"
	ProviderAuto   ProviderType = "auto"
)

// ParseProvider normalizes a provider string; anything unrecognized is
// treated as auto.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ollama":
		return ProviderOllama
	case "static", "offline":
		return ProviderStatic
	default:
		return ProviderAuto
	}
}

// ParseModelID splits a "<provider>:<model>" identifier. A bare name is
// taken as a model for the auto provider.
func ParseModelID(id string) (ProviderType, string) {
	if idx := strings.IndexByte(id, ':'); idx >= 0 {
		return ParseProvider(id[:idx]), id[idx+1:]
	}
	return ProviderAuto, id
}

// NewEmbedder constructs an embedder for the provider. Auto tries Ollama
// and falls back to the static embedder when the endpoint is unreachable,
// so indexing still works offline (with weaker vectors).
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	switch provider {
	case ProviderStatic:
		return NewStaticEmbedder768(), nil

	case ProviderOllama:
		return NewOllamaEmbedder(ctx, OllamaConfig{Model: model})

	case ProviderAuto:
		e, err := NewOllamaEmbedder(ctx, OllamaConfig{Model: model})
		if err == nil {
			return e, nil
		}
		return NewStaticEmbedder768(), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// NewDefaultEmbedder is the auto provider with the default model.
func NewDefaultEmbedder(ctx context.Context) (Embedder, error) {
	return NewEmbedder(ctx, ProviderAuto, DefaultOllamaModel)
}
