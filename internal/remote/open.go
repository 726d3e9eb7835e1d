package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/errorblob/internal/model"
)

// Config holds everything needed to reach the remote backend.
type Config struct {
	URL       string
	APIKey    string
	Namespace string
	Timeout   time.Duration

	// EmbeddingModel enables hybrid search when non-empty.
	EmbeddingModel string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	EmbeddingDim   int
}

// Open connects to Qdrant, bootstraps the namespace collection and returns
// a Store over it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Namespace) == "" {
		return nil, fmt.Errorf("%w: remote namespace is required", model.ErrInvalidArgument)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	var emb Embedder
	if cfg.EmbeddingModel != "" {
		emb = NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDim)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	svc, err := NewQdrantService(connectCtx, QdrantConfig{
		URL:       cfg.URL,
		APIKey:    cfg.APIKey,
		Namespace: cfg.Namespace,
		Embedder:  emb,
	})
	if err != nil {
		if errors.Is(err, model.ErrInvalidArgument) {
			return nil, err
		}
		return nil, wrapError("connect", err)
	}

	slog.Debug("remote store ready", "url", cfg.URL, "namespace", cfg.Namespace, "hybrid", emb != nil)
	return NewStore(svc, cfg.Namespace, cfg.Timeout), nil
}
