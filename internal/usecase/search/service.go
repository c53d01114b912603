// Package search is the engine facade. It orchestrates query expansion,
// candidate retrieval, aggregation and the multi-stage funnel into the
// caller-visible search operations, degrading gracefully when individual
// retrieval paths fail.
package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/metrics"
	"github.com/kailas-cloud/retrievex/internal/usecase/expand"
	"github.com/kailas-cloud/retrievex/internal/usecase/funnel"
	"github.com/kailas-cloud/retrievex/internal/usecase/retrieve"
)

// Config tunes candidate pool sizes. The vector pool is oversized relative
// to the final limit so the aggregator has grouping and reranking headroom;
// the keyword pool stays small because it is a secondary signal.
type Config struct {
	CandidateMultiplier int
	KeywordLimit        int
	// BaseThreshold seeds the derived similarity cutoff; zero means the
	// expand package default.
	BaseThreshold float64
}

// DefaultConfig returns the default engine tuning.
func DefaultConfig() Config {
	return Config{CandidateMultiplier: 3, KeywordLimit: 10}
}

// Stats carries per-request observability values.
type Stats struct {
	Threshold         float64 `json:"threshold"`
	VectorCandidates  int     `json:"vector_candidates"`
	KeywordCandidates int     `json:"keyword_candidates"`
	QueryVariants     int     `json:"query_variants,omitempty"`
}

// Response is the caller-visible outcome of a search. SearchType names the
// strategy that actually produced the results, which may differ from the
// requested mode after degradation.
type Response struct {
	Success     bool                `json:"success"`
	Results     []result.Result     `json:"results"`
	SearchType  mode.Type           `json:"search_type"`
	Message     string              `json:"message,omitempty"`
	Stats       Stats               `json:"stats"`
	Performance *funnel.Performance `json:"performance,omitempty"`
}

// Engine orchestrates the retrieval pipeline.
type Engine struct {
	expander   Expander
	retriever  Retriever
	aggregator Aggregator
	funnel     FunnelRunner
	cfg        Config
	logger     *zap.Logger
}

// New creates the search engine.
func New(
	expander Expander,
	retriever Retriever,
	aggregator Aggregator,
	funnelRunner FunnelRunner,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		expander:   expander,
		retriever:  retriever,
		aggregator: aggregator,
		funnel:     funnelRunner,
		cfg:        cfg,
		logger:     logger,
	}
}

// Search runs a single-pass search in the requested mode. A failed vector
// path degrades to keyword-only; only the failure of every path surfaces as
// an unsuccessful response. An empty query is a legitimate empty result.
func (e *Engine) Search(ctx context.Context, req request.Request) Response {
	start := time.Now()

	if strings.TrimSpace(req.Query()) == "" {
		return e.observe(start, Response{
			Success:    true,
			Results:    []result.Result{},
			SearchType: requestedType(req.Mode()),
			Message:    "empty query",
		})
	}

	threshold := e.threshold(req)

	var resp Response
	switch req.Mode() {
	case mode.Keyword:
		resp = e.keywordOnly(ctx, req, "")
	case mode.Vector:
		resp = e.searchVector(ctx, req, threshold)
	default:
		resp = e.searchHybrid(ctx, req, threshold)
	}
	resp.Stats.Threshold = threshold

	return e.observe(start, resp)
}

// MultiStage runs the four-stage funnel. An unavailable embedding degrades
// to keyword-only search rather than failing the request.
func (e *Engine) MultiStage(ctx context.Context, req request.Request, stages funnel.Stages) Response {
	start := time.Now()

	if strings.TrimSpace(req.Query()) == "" {
		return e.observe(start, Response{
			Success:    true,
			Results:    []result.Result{},
			SearchType: mode.TypeMultiStage,
			Message:    "empty query",
		})
	}

	threshold := e.threshold(req)

	expansion, err := e.expander.Expand(ctx, req.Query(), req.Scope(), "")
	if err != nil {
		e.logger.Warn("Failed to expand query, degrading to keyword-only search",
			zap.String("query", req.Query()), zap.Error(err))
		metrics.RetrievalErrorsTotal.WithLabelValues("embedding").Inc()
		resp := e.keywordOnly(ctx, req, "embedding unavailable, served keyword results")
		resp.Stats.Threshold = threshold
		return e.observe(start, resp)
	}

	out := e.funnel.Run(ctx, funnel.Request{
		Query:       req.Query(),
		Vector:      expansion.Embedding,
		Scope:       req.Scope(),
		DocumentIDs: req.DocumentIDs(),
		Limit:       req.Limit(),
		Threshold:   threshold,
		Stages:      stages,
	})

	resp := Response{
		Success:     true,
		Results:     out.Results,
		SearchType:  mode.TypeMultiStage,
		Stats:       Stats{Threshold: threshold, QueryVariants: len(expansion.Variants)},
		Performance: &out.Performance,
	}
	if out.Fallback {
		resp.Message = "broad recall empty, served plain vector search"
	}
	return e.observe(start, resp)
}

// searchVector runs the dense path alone, then walks the fallback chain:
// an errored vector path degrades to keyword-only, an empty (but healthy)
// vector outcome is retried as hybrid before giving up.
func (e *Engine) searchVector(ctx context.Context, req request.Request, threshold float64) Response {
	expansion, err := e.expander.Expand(ctx, req.Query(), req.Scope(), "")
	if err != nil {
		e.logger.Warn("Failed to expand query, degrading to keyword-only search",
			zap.String("query", req.Query()), zap.Error(err))
		metrics.RetrievalErrorsTotal.WithLabelValues("embedding").Inc()
		return e.keywordOnly(ctx, req, "embedding unavailable, served keyword results")
	}

	candidates := e.retriever.Retrieve(ctx, retrieve.Input{
		Vector:      expansion.Embedding,
		Scope:       req.Scope(),
		DocumentIDs: req.DocumentIDs(),
		VectorLimit: req.Limit() * e.cfg.CandidateMultiplier,
		Threshold:   threshold,
	})
	if candidates.VectorErr != nil {
		return e.keywordOnly(ctx, req, "vector store unavailable, served keyword results")
	}

	results := e.aggregator.Aggregate(candidates.Vector, nil)
	if len(results) == 0 {
		hybrid := e.searchHybrid(ctx, req, threshold)
		if len(hybrid.Results) > 0 || !hybrid.Success {
			return hybrid
		}
		// Every step of the chain came up empty.
	}

	return Response{
		Success:    true,
		Results:    truncate(results, req.Limit()),
		SearchType: mode.TypeVector,
		Stats: Stats{
			VectorCandidates: len(candidates.Vector),
			QueryVariants:    len(expansion.Variants),
		},
	}
}

// searchHybrid fans out to both stores and fuses the outcomes. One failed
// path degrades the search type; both failing is the only unsuccessful case.
func (e *Engine) searchHybrid(ctx context.Context, req request.Request, threshold float64) Response {
	expansion, err := e.expander.Expand(ctx, req.Query(), req.Scope(), "")
	if err != nil {
		e.logger.Warn("Failed to expand query, degrading to keyword-only search",
			zap.String("query", req.Query()), zap.Error(err))
		metrics.RetrievalErrorsTotal.WithLabelValues("embedding").Inc()
		return e.keywordOnly(ctx, req, "embedding unavailable, served keyword results")
	}

	candidates := e.retriever.Retrieve(ctx, retrieve.Input{
		Vector:       expansion.Embedding,
		Query:        req.Query(),
		Scope:        req.Scope(),
		DocumentIDs:  req.DocumentIDs(),
		VectorLimit:  req.Limit() * e.cfg.CandidateMultiplier,
		KeywordLimit: e.cfg.KeywordLimit,
		Threshold:    threshold,
	})

	stats := Stats{
		VectorCandidates:  len(candidates.Vector),
		KeywordCandidates: len(candidates.Keyword),
		QueryVariants:     len(expansion.Variants),
	}

	switch {
	case candidates.AllFailed():
		return Response{
			Success:    false,
			Results:    []result.Result{},
			SearchType: mode.TypeErrorFallback,
			Message:    "all retrieval paths failed",
			Stats:      stats,
		}
	case candidates.VectorErr != nil:
		return Response{
			Success:    true,
			Results:    truncate(e.aggregator.Aggregate(nil, candidates.Keyword), req.Limit()),
			SearchType: mode.TypeKeywordFallback,
			Message:    "vector store unavailable, served keyword results",
			Stats:      stats,
		}
	case candidates.KeywordErr != nil:
		return Response{
			Success:    true,
			Results:    truncate(e.aggregator.Aggregate(candidates.Vector, nil), req.Limit()),
			SearchType: mode.TypeVector,
			Message:    "keyword store unavailable, served vector results",
			Stats:      stats,
		}
	}

	return Response{
		Success:    true,
		Results:    truncate(e.aggregator.Aggregate(candidates.Vector, candidates.Keyword), req.Limit()),
		SearchType: mode.TypeHybrid,
		Stats:      stats,
	}
}

// keywordOnly is the last retrieval path before an empty error fallback.
func (e *Engine) keywordOnly(ctx context.Context, req request.Request, message string) Response {
	limit := req.Limit()
	if limit < e.cfg.KeywordLimit {
		limit = e.cfg.KeywordLimit
	}
	candidates := e.retriever.Retrieve(ctx, retrieve.Input{
		Query:        req.Query(),
		Scope:        req.Scope(),
		DocumentIDs:  req.DocumentIDs(),
		KeywordLimit: limit,
	})
	if candidates.KeywordErr != nil {
		return Response{
			Success:    false,
			Results:    []result.Result{},
			SearchType: mode.TypeErrorFallback,
			Message:    "all retrieval paths failed",
			Stats:      Stats{},
		}
	}

	return Response{
		Success:    true,
		Results:    truncate(e.aggregator.Aggregate(nil, candidates.Keyword), req.Limit()),
		SearchType: mode.TypeKeywordFallback,
		Message:    message,
		Stats:      Stats{KeywordCandidates: len(candidates.Keyword)},
	}
}

// threshold resolves the explicit request threshold or derives one from
// the query text.
func (e *Engine) threshold(req request.Request) float64 {
	if t, ok := req.Threshold(); ok {
		return t
	}
	if e.cfg.BaseThreshold > 0 {
		return expand.ThresholdFrom(req.Query(), e.cfg.BaseThreshold)
	}
	return expand.Threshold(req.Query())
}

// observe records the per-request metrics once the search type is final.
func (e *Engine) observe(start time.Time, resp Response) Response {
	t := string(resp.SearchType)
	metrics.SearchRequestsTotal.WithLabelValues(t).Inc()
	metrics.SearchDuration.WithLabelValues(t).Observe(time.Since(start).Seconds())
	metrics.SearchResultsReturned.WithLabelValues(t).Observe(float64(len(resp.Results)))
	return resp
}

// requestedType maps a requested mode to the type label used when no
// retrieval ran at all.
func requestedType(m mode.Mode) mode.Type {
	switch m {
	case mode.Vector:
		return mode.TypeVector
	case mode.Keyword:
		return mode.TypeKeywordFallback
	default:
		return mode.TypeHybrid
	}
}

func truncate(results []result.Result, limit int) []result.Result {
	if results == nil {
		results = []result.Result{}
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
