// Package voyage implements pkg/embeddings' Embedder client for the Voyage AI
// embeddings API.
package voyage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/papercomputeco/quill/pkg/embeddings"
)

const (
	// DefaultEmbeddingModel is the default model used for embeddings.
	DefaultEmbeddingModel = "voyage-large-2"

	// DefaultBaseURL is the default Voyage API URL.
	DefaultBaseURL = "https://api.voyageai.com"

	// InputTypeDocument marks inputs that are stored for retrieval.
	InputTypeDocument = "document"
)

// ErrMissingAPIKey is returned by NewEmbedder when no API key is configured.
var ErrMissingAPIKey = errors.New("voyage: api key is required")

// Embedder wraps the Voyage AI embeddings API.
type Embedder struct {
	baseURL    string
	model      string
	apiKey     string
	inputType  string
	httpClient *http.Client
}

// EmbedderConfig holds configuration for the Voyage embedder.
type EmbedderConfig struct {
	// BaseURL defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model defaults to DefaultEmbeddingModel if empty.
	Model string

	// APIKey is sent as a bearer token.
	APIKey string

	// InputType is forwarded as input_type. Empty leaves it unset.
	InputType string
}

type embedRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// NewEmbedder creates a new embedder using the Voyage embeddings API.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	return &Embedder{
		baseURL:   baseURL,
		model:     model,
		apiKey:    cfg.APIKey,
		inputType: cfg.InputType,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonBody, err := json.Marshal(embedRequest{
		Input:     []string{text},
		Model:     e.model,
		InputType: e.inputType,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", embeddings.ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", embeddings.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", embeddings.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Detail != "" {
			return nil, fmt.Errorf("%w: voyage returned status %d: %s", embeddings.ErrEmbedding, resp.StatusCode, apiErr.Detail)
		}
		return nil, fmt.Errorf("%w: voyage returned status %d: %s", embeddings.ErrEmbedding, resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", embeddings.ErrMalformedResponse, err)
	}

	if len(embedResp.Data) == 0 || len(embedResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", embeddings.ErrMalformedResponse)
	}

	return embedResp.Data[0].Embedding, nil
}

// Model returns the configured embedding model.
func (e *Embedder) Model() string {
	return e.model
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
