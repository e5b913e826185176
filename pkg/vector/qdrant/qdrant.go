// Package qdrant provides a Qdrant vector database driver over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/quill/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for storing article embeddings.
	DefaultCollectionName = "quill"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	// docIDKey is the payload key holding the record id. Qdrant point ids
	// must be integers or UUIDs, so record ids are mapped to UUIDs and kept
	// in the payload.
	docIDKey = "doc_id"

	scrollPageSize = 256
)

// pointNamespace seeds the name-based UUIDs used as point ids.
var pointNamespace = uuid.MustParse("6f1c8a52-4a8e-4f0b-9a39-1f5f0c2b7d11")

// Driver implements vector.Driver using the Qdrant gRPC client.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Host is the Qdrant host name.
	Host string

	// Port is the gRPC port. Defaults to DefaultPort if zero.
	Port int

	// APIKey is optional.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool

	// CollectionName defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the vector size used when the collection is created.
	Dimensions uint
}

// NewDriver connects to Qdrant and creates the collection with the cosine
// distance if it does not exist.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Host == "" {
		return nil, errors.New("qdrant host is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("qdrant embedding dimensions cannot be 0, must be configured")
	}

	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %w", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection %q: %w", vector.ErrConnection, collection, err)
	}

	if !exists {
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %q: %w", collection, err)
		}
	}

	logger.Info("connected to Qdrant",
		"host", c.Host,
		"port", port,
		"collection", collection,
		"created", !exists,
	)

	return &Driver{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

// pointID maps a record id to its deterministic point UUID.
func pointID(docID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(pointNamespace, []byte(docID)).String())
}

func pointIDs(ids []string) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = pointID(id)
	}
	return out
}

// payload flattens a document's metadata and id into a Qdrant payload.
func payload(doc vector.Document) map[string]*qdrant.Value {
	m := doc.Metadata.Map()
	m[docIDKey] = doc.ID
	return qdrant.NewValueMap(m)
}

// fromPayload recovers the record id and metadata from a payload.
func fromPayload(p map[string]*qdrant.Value) (string, vector.Metadata) {
	m := make(map[string]any, len(p))
	for k, v := range p {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			m[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			m[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			m[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			m[k] = kind.BoolValue
		}
	}
	id, _ := m[docIDKey].(string)
	return id, vector.MetadataFromMap(m)
}

// Add upserts documents and waits for the write to be applied.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload(doc),
		}
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))

	return nil
}

// Query finds the topK nearest points. Qdrant scores cosine collections by
// similarity, so distance is reported as 1 - score.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		id, meta := fromPayload(p.GetPayload())
		results = append(results, vector.QueryResult{
			Document: vector.Document{ID: id, Metadata: meta},
			Distance: 1 - p.GetScore(),
		})
	}

	d.logger.Debug("queried qdrant", "results", len(results))

	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs(ids),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		id, meta := fromPayload(p.GetPayload())
		doc := vector.Document{ID: id, Metadata: meta}
		if v := p.GetVectors().GetVector(); v != nil {
			if dense := v.GetDense(); dense != nil {
				doc.Embedding = dense.GetData()
			} else {
				doc.Embedding = v.GetData()
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs(ids)...),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant", "count", len(ids))

	return nil
}

// ListIDs scrolls through the collection and returns every record id.
func (d *Driver) ListIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		offset *qdrant.PointId
	)
	for {
		resp, err := d.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: d.collection,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude(docIDKey),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling points: %w", err)
		}

		for _, p := range resp.GetResult() {
			if id, _ := fromPayload(p.GetPayload()); id != "" {
				ids = append(ids, id)
			}
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			return ids, nil
		}
	}
}

// Count returns the exact number of points in the collection.
func (d *Driver) Count(ctx context.Context) (int, error) {
	n, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: d.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

var _ vector.Driver = (*Driver)(nil)
