package health

import "context"

// VectorStorePinger checks vector store availability.
type VectorStorePinger interface {
	Ping(ctx context.Context) error
}

// KeywordIndexChecker checks keyword index availability.
type KeywordIndexChecker interface {
	DocCount() (uint64, error)
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
