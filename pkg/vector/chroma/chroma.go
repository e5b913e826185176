// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/papercomputeco/quill/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for storing article embeddings.
	DefaultCollectionName = "quill"

	// DefaultMaxRetries is the number of connection attempts made while Chroma starts up.
	DefaultMaxRetries = 10

	// DefaultRetryDelay is the first delay between connection attempts.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay caps the delay between connection attempts.
	DefaultMaxRetryDelay = 5 * time.Second

	listPageSize = 1000
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	collectionID   string
	httpClient     *http.Client
	logger         *slog.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// MaxRetries, RetryDelay and MaxRetryDelay control how long NewDriver
	// waits for Chroma to become available. Zero values use the defaults.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver, retrying with exponential
// backoff until the collection can be fetched or created.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("chroma URL is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	delay := c.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	maxDelay := c.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxRetryDelay
	}

	d := &Driver{
		baseURL:        c.URL,
		collectionName: collectionName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		collectionID, err := d.getOrCreateCollection(context.Background())
		if err == nil {
			d.collectionID = collectionID
			logger.Info("connected to Chroma",
				"url", c.URL,
				"collection", collectionName,
				"collection_id", collectionID,
			)
			return d, nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		logger.Warn("chroma not ready, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		time.Sleep(delay)
		delay = min(delay*2, maxDelay)
	}

	return nil, fmt.Errorf("%w: collection %q after %d attempts: %w",
		vector.ErrConnection, collectionName, maxRetries, lastErr)
}

func (d *Driver) collectionsURL() string {
	return d.baseURL + "/api/v2/tenants/default_tenant/databases/default_database/collections"
}

func (d *Driver) recordsURL(op string) string {
	return fmt.Sprintf("%s/%s/%s", d.collectionsURL(), d.collectionID, op)
}

// getOrCreateCollection gets an existing collection or creates one using
// the cosine space.
func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	var collection chromaCollection

	err := d.do(ctx, http.MethodGet, d.collectionsURL()+"/"+d.collectionName, nil, &collection)
	if err == nil {
		return collection.ID, nil
	}

	err = d.do(ctx, http.MethodPost, d.collectionsURL(), chromaCreateRequest{
		Name:        d.collectionName,
		Metadata:    map[string]any{"hnsw:space": "cosine"},
		GetOrCreate: true,
	}, &collection)
	if err != nil {
		return "", fmt.Errorf("creating collection: %w", err)
	}

	return collection.ID, nil
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil. Any status other than 200 or 201 is an error.
func (d *Driver) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Add upserts documents with their embeddings and metadata.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	req := chromaUpsertRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
	}
	for i, doc := range docs {
		req.IDs[i] = doc.ID
		req.Embeddings[i] = doc.Embedding
		req.Metadatas[i] = doc.Metadata.Map()
	}

	if err := d.do(ctx, http.MethodPost, d.recordsURL("upsert"), req, nil); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}

	d.logger.Debug("added documents to chroma", "count", len(docs))

	return nil
}

// Query finds the topK documents nearest to the given embedding. Chroma
// reports cosine distances for collections created in the cosine space.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	var queryResp chromaQueryResponse
	err := d.do(ctx, http.MethodPost, d.recordsURL("query"), chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"metadatas", "distances"},
	}, &queryResp)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	// Only one query embedding is sent, so only the first group is read.
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return nil, nil
	}

	ids := queryResp.IDs[0]
	var distances []float32
	if len(queryResp.Distances) > 0 {
		distances = queryResp.Distances[0]
	}
	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}

	results := make([]vector.QueryResult, 0, len(ids))
	for i, id := range ids {
		result := vector.QueryResult{
			Document: vector.Document{ID: id},
		}
		if i < len(metadatas) && metadatas[i] != nil {
			result.Metadata = vector.MetadataFromMap(metadatas[i])
		}
		if i < len(distances) {
			result.Distance = distances[i]
		}
		results = append(results, result)
	}

	d.logger.Debug("queried chroma", "results", len(results))

	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var getResp chromaGetResponse
	err := d.do(ctx, http.MethodPost, d.recordsURL("get"), chromaGetRequest{
		IDs:     ids,
		Include: []string{"metadatas", "embeddings"},
	}, &getResp)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}

	docs := make([]vector.Document, len(getResp.IDs))
	for i, id := range getResp.IDs {
		docs[i].ID = id
		if i < len(getResp.Metadatas) && getResp.Metadatas[i] != nil {
			docs[i].Metadata = vector.MetadataFromMap(getResp.Metadatas[i])
		}
		if i < len(getResp.Embeddings) {
			docs[i].Embedding = getResp.Embeddings[i]
		}
	}

	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if err := d.do(ctx, http.MethodPost, d.recordsURL("delete"), chromaDeleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	d.logger.Debug("deleted documents from chroma", "count", len(ids))

	return nil
}

// ListIDs pages through the collection and returns every record id.
func (d *Driver) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for offset := 0; ; offset += listPageSize {
		var page chromaGetResponse
		err := d.do(ctx, http.MethodPost, d.recordsURL("get"), chromaGetRequest{
			Include: []string{},
			Limit:   listPageSize,
			Offset:  offset,
		}, &page)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}

		ids = append(ids, page.IDs...)
		if len(page.IDs) < listPageSize {
			return ids, nil
		}
	}
}

// Count returns the number of records in the collection.
func (d *Driver) Count(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.recordsURL("count"), nil)
	if err != nil {
		return 0, fmt.Errorf("creating count request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending count request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading count response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to count documents: status %d: %s", resp.StatusCode, string(body))
	}

	n, err := strconv.Atoi(string(bytes.TrimSpace(body)))
	if err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}
	return n, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

var _ vector.Driver = (*Driver)(nil)
