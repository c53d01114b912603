// Package expcache caches query expansion results in a key-value store.
// Expansion is the most expensive part of a search request (one embedding
// call per variant), and identical queries repeat often, so hits skip the
// embedding provider entirely.
package expcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/db"
	"github.com/kailas-cloud/retrievex/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "exp_cache:"

// store is the consumer interface for the expansion cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedExpander decorates a QueryExpander with a TTL-bounded cache. Values
// are derived purely from the key, so concurrent last-writer-wins writes
// are harmless.
type CachedExpander struct {
	inner      domain.QueryExpander
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.QueryExpander,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedExpander {
	return &CachedExpander{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Expand returns a cached expansion or calls the inner expander.
func (c *CachedExpander) Expand(ctx context.Context, query, scope, contentType string) (domain.QueryExpansion, error) {
	key := cacheKey(query, scope, contentType)

	if exp, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return exp, nil
	}

	c.incCache("miss")

	exp, err := c.inner.Expand(ctx, query, scope, contentType)
	if err != nil {
		return domain.QueryExpansion{}, fmt.Errorf("expand query: %w", err)
	}

	c.putToCache(ctx, key, exp)
	return exp, nil
}

func (c *CachedExpander) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(query, scope, contentType string) string {
	h := sha256.Sum256([]byte(query + "|" + scope + "|" + contentType))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedExpander) getFromCache(ctx context.Context, key string) (domain.QueryExpansion, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached expansion", zap.String("key", key), zap.Error(err))
		}
		return domain.QueryExpansion{}, false
	}
	if len(data) == 0 {
		return domain.QueryExpansion{}, false
	}

	var exp domain.QueryExpansion
	if err := json.Unmarshal(data, &exp); err != nil {
		c.logger.Warn("Failed to parse cached expansion", zap.String("key", key), zap.Error(err))
		return domain.QueryExpansion{}, false
	}
	if len(exp.Embedding) == 0 {
		return domain.QueryExpansion{}, false
	}

	return exp, true
}

func (c *CachedExpander) putToCache(ctx context.Context, key string, exp domain.QueryExpansion) {
	data, err := json.Marshal(exp)
	if err != nil {
		c.logger.Warn("Failed to encode expansion", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache expansion", zap.String("key", key), zap.Error(err))
	}
}
