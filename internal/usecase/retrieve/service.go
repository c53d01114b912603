// Package retrieve fans a query out to the vector and keyword stores
// concurrently and joins the raw chunk hits. Each path degrades
// independently; the caller decides what a one-sided failure means.
package retrieve

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
	"github.com/kailas-cloud/retrievex/internal/metrics"
)

// Input carries one fan-out request. A nil Vector skips the dense path; an
// empty Query skips the sparse path.
type Input struct {
	Vector       []float32
	Query        string
	Scope        string
	DocumentIDs  []string
	VectorLimit  int
	KeywordLimit int
	Threshold    float64
}

// Candidates holds the raw hits of both paths plus their per-path errors. A
// path that was skipped has no hits and no error.
type Candidates struct {
	Vector     []chunk.Chunk
	Keyword    []chunk.Chunk
	VectorErr  error
	KeywordErr error
}

// AllFailed reports whether no path produced a usable outcome.
func (c *Candidates) AllFailed() bool {
	return c.VectorErr != nil && c.KeywordErr != nil
}

// Service is the candidate retriever.
type Service struct {
	vector      VectorSearcher
	keyword     KeywordSearcher
	callTimeout time.Duration
	maxRetries  int
	logger      *zap.Logger
}

// New creates a candidate retriever. callTimeout bounds each store call;
// maxRetries is the extra attempts per call (reads are idempotent).
func New(
	vector VectorSearcher,
	keyword KeywordSearcher,
	callTimeout time.Duration,
	maxRetries int,
	logger *zap.Logger,
) *Service {
	return &Service{
		vector:      vector,
		keyword:     keyword,
		callTimeout: callTimeout,
		maxRetries:  maxRetries,
		logger:      logger,
	}
}

// Retrieve runs both retrieval paths concurrently and joins them. The
// caller's deadline propagates to both; on deadline the partial outcome
// obtained so far is returned rather than an error.
func (s *Service) Retrieve(ctx context.Context, in Input) Candidates {
	var out Candidates

	g, gctx := errgroup.WithContext(ctx)

	if len(in.Vector) > 0 {
		g.Go(func() error {
			err := s.withRetry(gctx, func(callCtx context.Context) error {
				hits, searchErr := s.vector.Search(
					callCtx, in.Vector, in.Scope, in.DocumentIDs, in.VectorLimit, in.Threshold,
				)
				if searchErr != nil {
					return searchErr
				}
				out.Vector = hits
				return nil
			})
			if err != nil {
				metrics.RetrievalErrorsTotal.WithLabelValues("vector").Inc()
				s.logger.Warn("Vector retrieval path failed", zap.Error(err))
				out.VectorErr = fmt.Errorf("%w: %w", domain.ErrVectorStoreUnavailable, err)
			}
			return nil // one-sided failure must not cancel the other path
		})
	}

	if in.Query != "" {
		g.Go(func() error {
			err := s.withRetry(gctx, func(callCtx context.Context) error {
				hits, searchErr := s.keyword.Search(
					callCtx, in.Query, in.Scope, in.DocumentIDs, in.KeywordLimit,
				)
				if searchErr != nil {
					return searchErr
				}
				out.Keyword = hits
				return nil
			})
			if err != nil {
				metrics.RetrievalErrorsTotal.WithLabelValues("keyword").Inc()
				s.logger.Warn("Keyword retrieval path failed", zap.Error(err))
				out.KeywordErr = fmt.Errorf("%w: %w", domain.ErrKeywordStoreUnavailable, err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return out
}

// withRetry runs op with a per-call timeout and exponential backoff. Only
// read operations go through here, so retrying is safe.
func (s *Service) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := 100 * time.Millisecond

	var err error
	for attempt := 0; ; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if s.callTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
		}
		err = op(callCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil || attempt >= s.maxRetries || ctx.Err() != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
