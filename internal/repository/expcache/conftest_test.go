package expcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/db"
	"github.com/kailas-cloud/retrievex/internal/domain"
)

type mockExpander struct {
	result domain.QueryExpansion
	err    error
	calls  int
}

func (m *mockExpander) Expand(_ context.Context, _, _, _ string) (domain.QueryExpansion, error) {
	m.calls++
	return m.result, m.err
}

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func newTestCachedExpander(t *testing.T, inner *mockExpander) (*CachedExpander, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	ce := New(inner, ms, time.Hour, nil, zap.NewNop())
	return ce, ms
}

func testExpansion() domain.QueryExpansion {
	return domain.QueryExpansion{
		Variants: []domain.QueryVariant{
			{Text: "Klimaschutz", Weight: 1.0},
			{Text: "klimawandel", Weight: 0.75},
		},
		Embedding: []float32{0.1, 0.2, 0.3},
	}
}
