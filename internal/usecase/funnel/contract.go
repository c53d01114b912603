package funnel

import (
	"context"

	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/usecase/retrieve"
)

// Retriever is the candidate retriever feeding the recall stage.
type Retriever interface {
	Retrieve(ctx context.Context, in retrieve.Input) retrieve.Candidates
}

// Aggregator turns raw chunk hits into per-document results.
type Aggregator interface {
	Aggregate(vectorChunks, keywordChunks []chunk.Chunk) []result.Result
}
