package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/quill/pkg/vector"
	"github.com/papercomputeco/quill/pkg/vector/inmemory"
)

// MockVectorDriver is a test vector driver backed by the in-memory driver
// with injectable failures.
type MockVectorDriver struct {
	*inmemory.Driver

	mu sync.Mutex

	// AddErr, QueryErr, DeleteErr and ListErr are returned by the matching
	// operation when set.
	AddErr    error
	QueryErr  error
	DeleteErr error
	ListErr   error

	queries int
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		Driver: inmemory.NewDriver(),
	}
}

func (m *MockVectorDriver) Add(ctx context.Context, docs []vector.Document) error {
	m.mu.Lock()
	err := m.AddErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.Driver.Add(ctx, docs)
}

func (m *MockVectorDriver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	m.queries++
	err := m.QueryErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.Driver.Query(ctx, embedding, topK)
}

func (m *MockVectorDriver) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	err := m.DeleteErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.Driver.Delete(ctx, ids)
}

func (m *MockVectorDriver) ListIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	err := m.ListErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.Driver.ListIDs(ctx)
}

// Queries returns how many times Query was called.
func (m *MockVectorDriver) Queries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

var _ vector.Driver = (*MockVectorDriver)(nil)
