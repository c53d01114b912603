// Package vector stores embedded chunks in Redis hashes and retrieves them
// via FT.SEARCH KNN queries.
package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/retrievex/internal/db"
	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
)

const (
	indexName = domain.KeyPrefix + "chunks:idx"
	keyPrefix = domain.KeyPrefix + "chunk:"
)

// store is the consumer interface for chunk storage and KNN search (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo implements the vector retrieval path over a Redis FT index.
type Repo struct {
	store store
}

// New creates a vector repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureIndex creates the chunk index if it does not exist yet. Safe to call
// on every startup.
func (r *Repo) EnsureIndex(ctx context.Context, dimensions, hnswM, hnswEFConstruct int) error {
	exists, err := r.store.IndexExists(ctx, indexName)
	if err != nil {
		return fmt.Errorf("check chunk index: %w", err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(indexName).
		Prefix(keyPrefix).
		Tag("scope").
		Tag("doc_id").
		Numeric("position").
		VectorHNSW("vector", dimensions, db.DistanceCosine, hnswM, hnswEFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build chunk index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create chunk index: %w", err)
	}
	return nil
}

// Search runs a KNN query and returns chunks at or above the similarity
// threshold, most similar first. An empty scope matches all scopes.
func (r *Repo) Search(
	ctx context.Context, vector []float32,
	scope string, documentIDs []string,
	topK int, threshold float64,
) ([]chunk.Chunk, error) {
	q := &db.KNNQuery{
		IndexName: indexName,
		Filter:    buildFilter(scope, documentIDs),
		Vector:    vector,
		K:         topK,
		ReturnFields: []string{
			"doc_id", "title", "text", "position", "token_count", "__vector_score",
		},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("chunk knn search: %w", err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	chunks := make([]chunk.Chunk, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		if entry.Score < threshold {
			continue
		}
		chunks = append(chunks, parseEntry(entry))
	}
	return chunks, nil
}

// Store writes scoped chunks and their embeddings as hashes in a single
// pipelined batch. vectors must align with chunks by index.
func (r *Repo) Store(ctx context.Context, scope string, chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	items := make([]db.HashSetItem, 0, len(chunks))
	for i, c := range chunks {
		if c.ID == "" || c.DocumentID == "" {
			return fmt.Errorf("chunk record requires id and document id")
		}
		if len(vectors[i]) == 0 {
			return fmt.Errorf("chunk %s: %w", c.ID, domain.ErrInvalidEmbedding)
		}
		items = append(items, db.HashSetItem{
			Key: chunkKey(c.DocumentID, c.ID),
			Fields: map[string]string{
				"scope":       scope,
				"doc_id":      c.DocumentID,
				"title":       c.Title,
				"text":        c.Text,
				"position":    strconv.Itoa(c.Position),
				"token_count": strconv.Itoa(c.TokenCount),
				"vector":      db.VectorToBytes(vectors[i]),
			},
		})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store %d chunks: %w", len(items), err)
	}
	return nil
}

// DeleteDocument removes every chunk of a document and reports how many keys
// were deleted.
func (r *Repo) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+documentID+":*")
	if err != nil {
		return 0, fmt.Errorf("scan chunks of %s: %w", documentID, err)
	}

	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return 0, fmt.Errorf("delete chunk %s: %w", key, err)
		}
	}
	return len(keys), nil
}

func chunkKey(documentID, chunkID string) string {
	return keyPrefix + documentID + ":" + chunkID
}

// buildFilter renders the FT.SEARCH pre-filter for scope and document
// restrictions. Returns "" (match all) when neither is set.
func buildFilter(scope string, documentIDs []string) string {
	var parts []string
	if scope != "" {
		parts = append(parts, "@scope:{"+db.EscapeTag(scope)+"}")
	}
	if len(documentIDs) > 0 {
		escaped := make([]string, len(documentIDs))
		for i, id := range documentIDs {
			escaped[i] = db.EscapeTag(id)
		}
		parts = append(parts, "@doc_id:{"+strings.Join(escaped, "|")+"}")
	}
	return strings.Join(parts, " ")
}

func parseEntry(entry db.SearchEntry) chunk.Chunk {
	c := chunk.Chunk{
		DocumentID: entry.Fields["doc_id"],
		Title:      entry.Fields["title"],
		Text:       entry.Fields["text"],
		Similarity: entry.Score,
	}

	rest := strings.TrimPrefix(entry.Key, keyPrefix)
	if i := strings.LastIndexByte(rest, ':'); i >= 0 {
		c.ID = rest[i+1:]
	} else {
		c.ID = rest
	}

	if v, err := strconv.Atoi(entry.Fields["position"]); err == nil {
		c.Position = v
	}
	if v, err := strconv.Atoi(entry.Fields["token_count"]); err == nil {
		c.TokenCount = v
	}
	return c
}
