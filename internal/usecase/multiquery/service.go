// Package multiquery fans several independently-worded sub-queries out
// against the same corpus and merges the hit lists into one ranked set.
// It compensates for single-query recall gaps when an upstream agent
// phrases the same information need in multiple ways.
package multiquery

import (
	"context"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// perCallLimit caps each individual sub-query search. The merge step
// ranks across sub-queries, so deep per-call result lists add latency
// without improving the final selection.
const perCallLimit = 5

// defaultPoolSize bounds concurrent sub-query searches so a wide
// multi-query request cannot overwhelm the embedding provider.
const defaultPoolSize = 4

// Output is the merged multi-query result with dedup observability.
type Output struct {
	Results             []result.Result `json:"results"`
	ContributingQueries []string        `json:"contributing_queries"`
	BeforeDedupCount    int             `json:"before_dedup_count"`
	AfterDedupCount     int             `json:"after_dedup_count"`
}

// Service merges concurrent sub-query searches.
type Service struct {
	searcher Searcher
	pool     *ants.Pool
	perCall  int
	logger   *zap.Logger
}

// New creates a multi-query service with a bounded worker pool.
// poolSize values below 1 fall back to the default.
func New(searcher Searcher, poolSize int, logger *zap.Logger) (*Service, error) {
	if poolSize < 1 {
		poolSize = defaultPoolSize
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	return &Service{searcher: searcher, pool: pool, perCall: perCallLimit, logger: logger}, nil
}

// WithPerCallLimit lowers the per-sub-query result cap. Values outside
// [1, perCallLimit] keep the default.
func (s *Service) WithPerCallLimit(n int) *Service {
	if n >= 1 && n <= perCallLimit {
		s.perCall = n
	}
	return s
}

// Close releases the worker pool.
func (s *Service) Close() {
	s.pool.Release()
}

// Run executes every sub-query concurrently, concatenates the hit lists,
// deduplicates by document id keeping the highest score, sorts descending
// and truncates to targetLimit. Sub-query failures are logged and treated
// as empty hit lists.
func (s *Service) Run(ctx context.Context, subQueries []string, scope string, targetLimit int) Output {
	if len(subQueries) == 0 {
		return Output{Results: []result.Result{}, ContributingQueries: []string{}}
	}

	hits := make([][]result.Result, len(subQueries))
	var wg sync.WaitGroup
	for i, query := range subQueries {
		wg.Add(1)
		i, query := i, query
		task := func() {
			defer wg.Done()
			results, err := s.searcher.Search(ctx, query, scope, s.perCall)
			if err != nil {
				s.logger.Warn("Failed to run sub-query search",
					zap.String("query", query), zap.Error(err))
				return
			}
			hits[i] = results
		}
		if err := s.pool.Submit(task); err != nil {
			// Pool closed or saturated beyond its blocking capacity:
			// run the sub-query on the caller's goroutine instead.
			task()
		}
	}
	wg.Wait()

	return merge(subQueries, hits, targetLimit)
}

// merge concatenates per-query hit lists and deduplicates by document id,
// keeping the entry with the highest combined score. ContributingQueries
// lists, in sub-query order, the queries whose best-scoring entry survived
// into the truncated selection.
func merge(subQueries []string, hits [][]result.Result, targetLimit int) Output {
	before := 0
	best := make(map[string]result.Result)
	bestQuery := make(map[string]int)
	for i, list := range hits {
		before += len(list)
		for _, r := range list {
			current, seen := best[r.DocumentID()]
			if !seen || r.Combined() > current.Combined() {
				best[r.DocumentID()] = r
				bestQuery[r.DocumentID()] = i
			}
		}
	}

	merged := make([]result.Result, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Combined() != merged[j].Combined() {
			return merged[i].Combined() > merged[j].Combined()
		}
		return merged[i].DocumentID() < merged[j].DocumentID()
	})

	after := len(merged)
	if targetLimit > 0 && len(merged) > targetLimit {
		merged = merged[:targetLimit]
	}

	contributed := make(map[int]struct{}, len(subQueries))
	for _, r := range merged {
		contributed[bestQuery[r.DocumentID()]] = struct{}{}
	}
	queries := make([]string, 0, len(contributed))
	for i, q := range subQueries {
		if _, ok := contributed[i]; ok {
			queries = append(queries, q)
		}
	}

	return Output{
		Results:             merged,
		ContributingQueries: queries,
		BeforeDedupCount:    before,
		AfterDedupCount:     after,
	}
}
