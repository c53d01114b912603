package ingest

import (
	"context"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
)

// Embedder vectorizes chunk texts in batches.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// VectorWriter persists scoped chunks with their embeddings.
type VectorWriter interface {
	Store(ctx context.Context, scope string, chunks []chunk.Chunk, vectors [][]float32) error
	DeleteDocument(ctx context.Context, documentID string) (int, error)
}

// KeywordIndexer maintains the full-text index for scoped chunks.
type KeywordIndexer interface {
	Index(ctx context.Context, scope string, chunks []chunk.Chunk) error
	DeleteDocument(ctx context.Context, documentID string) (int, error)
}
