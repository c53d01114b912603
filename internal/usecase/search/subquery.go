package search

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// SubQuerySearcher adapts the engine to the multi-query aggregator's
// per-sub-query contract. Each sub-query runs as a capped hybrid search.
type SubQuerySearcher struct {
	engine *Engine
}

// NewSubQuerySearcher wraps an engine for multi-query fan-out.
func NewSubQuerySearcher(engine *Engine) *SubQuerySearcher {
	return &SubQuerySearcher{engine: engine}
}

// Search runs one sub-query. An unsuccessful engine response surfaces as an
// error so the aggregator can count the sub-query as failed.
func (s *SubQuerySearcher) Search(ctx context.Context, query, scope string, limit int) ([]result.Result, error) {
	req, err := request.New(query, scope, mode.Hybrid, limit, nil)
	if err != nil {
		return nil, fmt.Errorf("build sub-query request: %w", err)
	}

	resp := s.engine.Search(ctx, req)
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", domain.ErrAllPathsFailed, resp.Message)
	}
	return resp.Results, nil
}
