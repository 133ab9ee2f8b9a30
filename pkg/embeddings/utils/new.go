// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paperquant/recall/pkg/embeddings"
	"github.com/paperquant/recall/pkg/embeddings/ollama"
)

type NewServiceOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	Timeout      time.Duration
	Logger       *zap.Logger
}

// NewService builds a lazy embedding Service for the configured provider.
// The provider itself is not constructed until the first embed call.
func NewService(o *NewServiceOpts) (*embeddings.Service, error) {
	var factory embeddings.Factory

	switch o.ProviderType {
	case "ollama":
		cfg := ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		}
		factory = func() (embeddings.Embedder, error) {
			return ollama.NewEmbedder(cfg)
		}
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}

	model := o.Model
	if model == "" {
		model = ollama.DefaultEmbeddingModel
	}

	return embeddings.NewService(embeddings.ServiceConfig{
		Factory:      factory,
		ModelVersion: o.ProviderType + "/" + model,
		Timeout:      o.Timeout,
	}, o.Logger), nil
}
