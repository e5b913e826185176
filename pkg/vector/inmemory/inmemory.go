// Package inmemory provides a map-backed vector driver with brute-force
// cosine search. It is used in tests and for ephemeral indexes.
package inmemory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/papercomputeco/quill/pkg/vector"
)

// Driver implements vector.Driver using an in-memory map.
type Driver struct {
	// mu guards docs
	mu sync.RWMutex

	// docs maps record id to the stored document
	docs map[string]vector.Document
}

// NewDriver creates a new in-memory vector driver.
func NewDriver() *Driver {
	return &Driver{
		docs: make(map[string]vector.Document),
	}
}

// Add stores documents, replacing any with the same ID.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		doc.Embedding = slices.Clone(doc.Embedding)
		d.docs[doc.ID] = doc
	}
	return nil
}

// Query scores every stored document against embedding. Documents whose
// dimension does not match the query are skipped.
func (d *Driver) Query(_ context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	results := make([]vector.QueryResult, 0, len(d.docs))
	for _, doc := range d.docs {
		dist, err := vector.CosineDistance(embedding, doc.Embedding)
		if err != nil {
			continue
		}
		results = append(results, vector.QueryResult{Document: doc, Distance: float32(dist)})
	}
	d.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Get retrieves documents by their IDs, in the order requested.
func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var docs []vector.Document
	for _, id := range ids {
		if doc, ok := d.docs[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs, id)
	}
	return nil
}

// ListIDs returns every stored ID in sorted order.
func (d *Driver) ListIDs(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.docs))
	for id := range d.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of stored documents.
func (d *Driver) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs), nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

var _ vector.Driver = (*Driver)(nil)
