// Package funnel implements the four-stage refinement pipeline: broad
// recall, semantic intent filter, contextual rerank, diversity injection.
// Every stage past recall is optional and fails open: a stage that cannot
// run passes its input through unchanged.
package funnel

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/metrics"
	"github.com/kailas-cloud/retrievex/internal/usecase/retrieve"
)

// Stage names, in pipeline order.
const (
	StageApproximateSearch  = "approximate_search"
	StageSemanticFilter     = "semantic_filter"
	StageContextualRerank   = "contextual_rerank"
	StageDiversityInjection = "diversity_injection"
)

// Rerank boost knobs. The term-frequency boost is capped per term so
// keyword stuffing cannot dominate the contextual score.
const (
	termMatchBoost    = 0.1
	termBoostCap      = 0.3
	positionBoostRate = 0.1
	diversityCarry    = 0.5
)

// Config holds the funnel tuning knobs.
type Config struct {
	RecallThreshold  float64
	RecallMultiplier int
	PlainMultiplier  int
	KeywordLimit     int
	RetentionFloor   float64
	OverlapMax       float64
}

// DefaultConfig returns the tuned starting point.
func DefaultConfig() Config {
	return Config{
		RecallThreshold:  0.15,
		RecallMultiplier: 20,
		PlainMultiplier:  3,
		KeywordLimit:     10,
		RetentionFloor:   0.3,
		OverlapMax:       0.7,
	}
}

// Stages toggles the pipeline stages independently.
type Stages struct {
	ApproximateSearch  bool
	SemanticFilter     bool
	ContextualRerank   bool
	DiversityInjection bool
}

// AllStages enables the full pipeline.
func AllStages() Stages {
	return Stages{
		ApproximateSearch:  true,
		SemanticFilter:     true,
		ContextualRerank:   true,
		DiversityInjection: true,
	}
}

// Request is one funnel invocation.
type Request struct {
	Query       string
	Vector      []float32
	Scope       string
	DocumentIDs []string
	Limit       int
	// Threshold is the plain-path similarity cutoff, used when broad
	// recall is disabled or falls back.
	Threshold float64
	Stages    Stages
}

// StageCount records the candidate count a stage produced.
type StageCount struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// Performance is the observability payload of a funnel run.
type Performance struct {
	StageCounts []StageCount `json:"per_stage_counts"`
	TotalTimeMs int64        `json:"total_time_ms"`
}

// Output is the funnel result.
type Output struct {
	Results     []result.Result
	Performance Performance
	// Fallback reports that broad recall came up empty and a plain
	// single-pass vector search produced the results instead.
	Fallback bool
}

// Service runs the multi-stage funnel.
type Service struct {
	retriever  Retriever
	aggregator Aggregator
	cfg        Config
	logger     *zap.Logger
}

// New creates a funnel service.
func New(retriever Retriever, aggregator Aggregator, cfg Config, logger *zap.Logger) *Service {
	return &Service{retriever: retriever, aggregator: aggregator, cfg: cfg, logger: logger}
}

// Run executes the enabled stages in order and returns at most Limit
// results with per-stage counts for observability.
func (s *Service) Run(ctx context.Context, req Request) Output {
	start := time.Now()
	var perf Performance

	record := func(stage string, results []result.Result) {
		perf.StageCounts = append(perf.StageCounts, StageCount{Stage: stage, Count: len(results)})
		metrics.FunnelStageCandidates.WithLabelValues(stage).Observe(float64(len(results)))
	}

	// Stage 1: broad recall.
	results, terminal := s.recall(ctx, req)
	record(StageApproximateSearch, results)

	if terminal || len(results) == 0 {
		if len(results) > req.Limit {
			results = results[:req.Limit]
		}
		perf.TotalTimeMs = time.Since(start).Milliseconds()
		return Output{Results: results, Performance: perf, Fallback: terminal}
	}

	// Stage 2: semantic intent filter.
	if req.Stages.SemanticFilter {
		results = s.semanticFilter(req.Query, results)
	} else {
		metrics.FunnelStageSkippedTotal.WithLabelValues(StageSemanticFilter, "disabled").Inc()
	}
	record(StageSemanticFilter, results)

	// Stage 3: contextual rerank.
	if req.Stages.ContextualRerank {
		results = rerank(req.Query, results)
	} else {
		metrics.FunnelStageSkippedTotal.WithLabelValues(StageContextualRerank, "disabled").Inc()
	}
	record(StageContextualRerank, results)

	// Stage 4: diversity injection.
	if req.Stages.DiversityInjection {
		results = diversify(results, req.Limit, s.cfg.OverlapMax)
	} else {
		metrics.FunnelStageSkippedTotal.WithLabelValues(StageDiversityInjection, "disabled").Inc()
		if len(results) > req.Limit {
			results = results[:req.Limit]
		}
	}
	record(StageDiversityInjection, results)

	perf.TotalTimeMs = time.Since(start).Milliseconds()
	return Output{Results: results, Performance: perf}
}

// recall produces the initial candidate pool. With the stage enabled it
// casts a deliberately wide net (low threshold, large multiplier). An empty
// wide net is terminal for the funnel: a plain single-pass vector search
// with the caller's threshold replaces the whole pipeline. A disabled stage
// runs the plain search too, but the rest of the pipeline continues.
func (s *Service) recall(ctx context.Context, req Request) (results []result.Result, terminal bool) {
	if req.Stages.ApproximateSearch {
		candidates := s.retriever.Retrieve(ctx, retrieve.Input{
			Vector:       req.Vector,
			Query:        req.Query,
			Scope:        req.Scope,
			DocumentIDs:  req.DocumentIDs,
			VectorLimit:  req.Limit * s.cfg.RecallMultiplier,
			KeywordLimit: s.cfg.KeywordLimit,
			Threshold:    s.cfg.RecallThreshold,
		})
		results = s.aggregator.Aggregate(candidates.Vector, candidates.Keyword)
		if len(results) > 0 {
			return results, false
		}
		metrics.FunnelStageSkippedTotal.WithLabelValues(StageApproximateSearch, "failed").Inc()
		s.logger.Warn("Broad recall returned nothing, falling back to plain vector search",
			zap.String("query", req.Query))
	} else {
		metrics.FunnelStageSkippedTotal.WithLabelValues(StageApproximateSearch, "disabled").Inc()
	}

	candidates := s.retriever.Retrieve(ctx, retrieve.Input{
		Vector:      req.Vector,
		Scope:       req.Scope,
		DocumentIDs: req.DocumentIDs,
		VectorLimit: req.Limit * s.cfg.PlainMultiplier,
		Threshold:   req.Threshold,
	})
	return s.aggregator.Aggregate(candidates.Vector, nil), req.Stages.ApproximateSearch
}

// semanticFilter keeps candidates matching the query's detected intent
// category. Over-aggressive filtering (below the retention floor) is
// treated as a misclassification and skipped.
func (s *Service) semanticFilter(query string, input []result.Result) []result.Result {
	category, ok := detectIntent(query)
	if !ok {
		metrics.FunnelStageSkippedTotal.WithLabelValues(StageSemanticFilter, "no_intent").Inc()
		return input
	}

	kept := make([]result.Result, 0, len(input))
	for _, r := range input {
		if matchesCategory(r.Excerpt(), category) || matchesCategory(r.Title(), category) {
			kept = append(kept, r)
		}
	}

	if float64(len(kept)) < s.cfg.RetentionFloor*float64(len(input)) {
		metrics.FunnelStageSkippedTotal.WithLabelValues(StageSemanticFilter, "safety_valve").Inc()
		s.logger.Debug("Semantic filter retained too little, passing input through",
			zap.String("category", category),
			zap.Int("input", len(input)), zap.Int("kept", len(kept)))
		return input
	}
	return kept
}

// rerank recomputes each candidate's score with term-frequency, position,
// and diversity boosts, then sorts descending.
func rerank(query string, input []result.Result) []result.Result {
	terms := strings.Fields(strings.ToLower(query))

	out := make([]result.Result, len(input))
	for i, r := range input {
		excerpt := strings.ToLower(r.Excerpt())

		var tfBoost float64
		for _, term := range terms {
			boost := float64(strings.Count(excerpt, term)) * termMatchBoost
			tfBoost += math.Min(boost, termBoostCap)
		}

		contextual := r.Combined() +
			tfBoost +
			positionBoostRate*r.Scores().PositionScore +
			diversityCarry*r.Scores().DiversityBonus
		out[i] = r.WithCombined(math.Min(1.0, contextual))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Combined() > out[j].Combined()
	})
	return out
}
