package multiquery

import (
	"context"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// Searcher runs a single scoped search for one sub-query.
type Searcher interface {
	Search(ctx context.Context, query, scope string, limit int) ([]result.Result, error)
}
