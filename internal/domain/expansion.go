package domain

import "context"

// QueryVariant is one phrasing of a query with its confidence weight. The
// original query always carries weight 1.0; generated variants carry less.
type QueryVariant struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// QueryExpansion is the outcome of query expansion: the variants that
// produced usable embeddings and their weighted-average composite vector.
type QueryExpansion struct {
	Variants  []QueryVariant `json:"variants"`
	Embedding []float32      `json:"embedding"`
}

// QueryExpander turns one query into weighted variants and a single
// composite embedding. Implementations must fail only when the original
// query's embedding cannot be produced.
type QueryExpander interface {
	Expand(ctx context.Context, query, scope, contentType string) (QueryExpansion, error)
}
