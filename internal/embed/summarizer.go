package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SymbolInfo carries what the summarizer needs to describe one symbol.
type SymbolInfo struct {
	Name          string
	Kind          string
	Signature     string
	Documentation string
	Code          string
}

// SummarizerHealth is the result of a summarizer health check.
type SummarizerHealth struct {
	Healthy        bool   `json:"healthy"`
	ModelAvailable bool   `json:"model_available"`
	Model          string `json:"model"`
}

// Summarizer produces a one-line natural-language summary for a symbol.
// A nil Summarizer means summarization is skipped, not failed.
type Summarizer interface {
	SummarizeSymbol(ctx context.Context, info SymbolInfo) (string, error)
	HealthCheck(ctx context.Context) SummarizerHealth
	Model() string
}

// DefaultSummarizeTimeout bounds one summarization call.
const DefaultSummarizeTimeout = 30 * time.Second

// OllamaSummarizer generates symbol summaries through Ollama's /api/generate
// endpoint, reusing the same host convention as OllamaEmbedder.
type OllamaSummarizer struct {
	client *http.Client
	host   string
	model  string
}

var _ Summarizer = (*OllamaSummarizer)(nil)

// NewOllamaSummarizer creates a summarizer against host (DefaultOllamaHost
// when empty) using the given generation model.
func NewOllamaSummarizer(host, model string) *OllamaSummarizer {
	if host == "" {
		host = DefaultOllamaHost
	}
	return &OllamaSummarizer{
		client: &http.Client{},
		host:   host,
		model:  model,
	}
}

// NewSummarizer selects a summarizer by a "provider:model" identifier.
// An empty identifier returns (nil, nil): the caller records summarization
// as skipped rather than failing the run.
func NewSummarizer(spec string) (Summarizer, error) {
	if spec == "" {
		return nil, nil
	}
	provider, model := spec, ""
	if idx := strings.IndexByte(spec, ':'); idx >= 0 {
		provider, model = spec[:idx], spec[idx+1:]
	}
	switch provider {
	case "ollama":
		if model == "" {
			return nil, fmt.Errorf("summarizer model missing in %q", spec)
		}
		return NewOllamaSummarizer("", model), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", provider)
	}
}

// Model returns the generation model identifier.
func (s *OllamaSummarizer) Model() string {
	return s.model
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// SummarizeSymbol asks the model for a single-sentence description.
func (s *OllamaSummarizer) SummarizeSymbol(ctx context.Context, info SymbolInfo) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultSummarizeTimeout)
	defer cancel()

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this %s in one sentence. Reply with the sentence only.\n\n", info.Kind)
	fmt.Fprintf(&b, "Name: %s\n", info.Name)
	if info.Signature != "" {
		fmt.Fprintf(&b, "Signature: %s\n", info.Signature)
	}
	if info.Documentation != "" {
		fmt.Fprintf(&b, "Documentation: %s\n", info.Documentation)
	}
	if info.Code != "" {
		fmt.Fprintf(&b, "\n%s\n", info.Code)
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  s.model,
		Prompt: b.String(),
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", info.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("summarize %s: ollama returned %d: %s", info.Name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("summarize %s: decode response: %w", info.Name, err)
	}
	return strings.TrimSpace(out.Response), nil
}

// HealthCheck reports whether the endpoint answers and the model is pulled.
func (s *OllamaSummarizer) HealthCheck(ctx context.Context) SummarizerHealth {
	health := SummarizerHealth{Model: s.model}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.host+"/api/tags", nil)
	if err != nil {
		return health
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return health
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return health
	}
	health.Healthy = true

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return health
	}
	for _, m := range tags.Models {
		if m.Name == s.model || strings.HasPrefix(m.Name, s.model+":") {
			health.ModelAvailable = true
			break
		}
	}
	return health
}
