package expcache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/retrievex/internal/domain"
)

func TestExpand_CacheMiss(t *testing.T) {
	inner := &mockExpander{result: testExpansion()}
	ce, ms := newTestCachedExpander(t, inner)

	var storedKey string
	var storedValue []byte
	var storedTTL time.Duration
	ms.setFn = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		storedKey, storedValue, storedTTL = key, value, ttl
		return nil
	}

	exp, err := ce.Expand(context.Background(), "Klimaschutz", "tenant-1", "")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if len(exp.Embedding) != 3 {
		t.Errorf("unexpected expansion: %+v", exp)
	}

	if storedKey == "" {
		t.Fatal("expansion was not written to cache")
	}
	if storedTTL != time.Hour {
		t.Errorf("ttl = %v, want 1h", storedTTL)
	}
	var decoded domain.QueryExpansion
	if err := json.Unmarshal(storedValue, &decoded); err != nil {
		t.Fatalf("cached value is not valid JSON: %v", err)
	}
	if len(decoded.Variants) != 2 {
		t.Errorf("cached variants = %d, want 2", len(decoded.Variants))
	}
}

func TestExpand_CacheHit(t *testing.T) {
	inner := &mockExpander{result: testExpansion()}
	ce, ms := newTestCachedExpander(t, inner)

	cached, _ := json.Marshal(testExpansion())
	ms.getFn = func(ctx context.Context, key string) ([]byte, error) {
		return cached, nil
	}

	exp, err := ce.Expand(context.Background(), "Klimaschutz", "tenant-1", "")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("inner must not be called on a hit, got %d calls", inner.calls)
	}
	if len(exp.Variants) != 2 || exp.Embedding[0] != 0.1 {
		t.Errorf("unexpected cached expansion: %+v", exp)
	}
}

func TestExpand_CorruptCacheFallsThrough(t *testing.T) {
	inner := &mockExpander{result: testExpansion()}
	ce, ms := newTestCachedExpander(t, inner)

	ms.getFn = func(ctx context.Context, key string) ([]byte, error) {
		return []byte("not json"), nil
	}

	exp, err := ce.Expand(context.Background(), "Klimaschutz", "tenant-1", "")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if len(exp.Embedding) != 3 {
		t.Errorf("unexpected expansion: %+v", exp)
	}
}

func TestExpand_StoreErrorsAreNonFatal(t *testing.T) {
	inner := &mockExpander{result: testExpansion()}
	ce, ms := newTestCachedExpander(t, inner)

	ms.getFn = func(ctx context.Context, key string) ([]byte, error) {
		return nil, errors.New("connection reset")
	}
	ms.setFn = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		return errors.New("connection reset")
	}

	exp, err := ce.Expand(context.Background(), "Klimaschutz", "tenant-1", "")
	if err != nil {
		t.Fatalf("cache failures must not fail the expansion: %v", err)
	}
	if len(exp.Embedding) != 3 {
		t.Errorf("unexpected expansion: %+v", exp)
	}
}

func TestExpand_InnerError(t *testing.T) {
	wantErr := errors.New("provider down")
	inner := &mockExpander{err: wantErr}
	ce, ms := newTestCachedExpander(t, inner)

	ms.setFn = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		t.Error("nothing should be cached on inner failure")
		return nil
	}

	_, err := ce.Expand(context.Background(), "Klimaschutz", "tenant-1", "")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped inner error, got %v", err)
	}
}

func TestCacheKey(t *testing.T) {
	base := cacheKey("Klimaschutz", "tenant-1", "")

	if cacheKey("Klimaschutz", "tenant-1", "") != base {
		t.Error("cache key must be stable for identical input")
	}
	if cacheKey("Klimaschutz", "tenant-2", "") == base {
		t.Error("different scopes must produce different keys")
	}
	if cacheKey("Klimawandel", "tenant-1", "") == base {
		t.Error("different queries must produce different keys")
	}
	if cacheKey("Klimaschutz", "tenant-1", "pdf") == base {
		t.Error("different content types must produce different keys")
	}
}
