package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrEmbeddingUnavailable signals that the primary query embedding could not be produced.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrInvalidEmbedding signals a dimension mismatch or non-finite vector component.
	ErrInvalidEmbedding = errors.New("invalid embedding")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrVectorStoreUnavailable signals a failed or unreachable vector store.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
	// ErrKeywordStoreUnavailable signals a failed or unreachable keyword store.
	ErrKeywordStoreUnavailable = errors.New("keyword store unavailable")
	// ErrAllPathsFailed signals that every retrieval path failed for a request.
	ErrAllPathsFailed = errors.New("all retrieval paths failed")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)

// ErrEmbeddingQuotaExceeded signals that the embedding token budget is spent.
// It wraps ErrRateLimited so transport surfaces it as 429.
var ErrEmbeddingQuotaExceeded = fmt.Errorf("embedding token budget exceeded: %w", ErrRateLimited)
