package search

import (
	"context"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/usecase/funnel"
	"github.com/kailas-cloud/retrievex/internal/usecase/retrieve"
)

// Expander turns a query into weighted variants and a composite embedding.
type Expander interface {
	Expand(ctx context.Context, query, scope, contentType string) (domain.QueryExpansion, error)
}

// Retriever fans a request out to the vector and keyword stores.
type Retriever interface {
	Retrieve(ctx context.Context, in retrieve.Input) retrieve.Candidates
}

// Aggregator groups raw chunk hits into per-document results.
type Aggregator interface {
	Aggregate(vectorChunks, keywordChunks []chunk.Chunk) []result.Result
}

// FunnelRunner executes the multi-stage retrieval funnel.
type FunnelRunner interface {
	Run(ctx context.Context, req funnel.Request) funnel.Output
}
