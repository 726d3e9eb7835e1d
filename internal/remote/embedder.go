package remote

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Embedder produces dense vectors for hybrid search. It is optional: with
// no embedder the service ranks by sparse term vectors only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Known output sizes of OpenAI models and of common models served by
// Ollama's OpenAI-compatible endpoint.
var modelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

const defaultDimensions = 1536

// OpenAIEmbedder embeds text through the OpenAI embeddings API (or any
// compatible endpoint).
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder for model. baseURL may be empty.
// dims overrides the known size of model when positive.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dims int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if dims <= 0 {
		if d, ok := modelDimensions[model]; ok {
			dims = d
		} else {
			dims = defaultDimensions
		}
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dims,
	}
}

// Embed returns the embedding vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding text: empty response")
	}
	vec := resp.Data[0].Embedding
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("embedding text: got %d dimensions, want %d", len(vec), e.dimensions)
	}
	return vec, nil
}

// Dimensions returns the embedding size the collection is created with.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}
