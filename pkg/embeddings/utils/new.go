// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/quill/pkg/embeddings"
	"github.com/papercomputeco/quill/pkg/embeddings/ollama"
	"github.com/papercomputeco/quill/pkg/embeddings/voyage"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	case "voyage":
		return voyage.NewEmbedder(voyage.EmbedderConfig{
			BaseURL:   o.TargetURL,
			Model:     o.Model,
			APIKey:    o.APIKey,
			InputType: voyage.InputTypeDocument,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
