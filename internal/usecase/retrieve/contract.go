package retrieve

import (
	"context"

	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
)

// VectorSearcher is the dense retrieval path (ANN over chunk embeddings).
type VectorSearcher interface {
	Search(
		ctx context.Context, vector []float32,
		scope string, documentIDs []string,
		topK int, threshold float64,
	) ([]chunk.Chunk, error)
}

// KeywordSearcher is the sparse retrieval path (BM25 over chunk text).
type KeywordSearcher interface {
	Search(
		ctx context.Context, query string,
		scope string, documentIDs []string, topK int,
	) ([]chunk.Chunk, error)
}
