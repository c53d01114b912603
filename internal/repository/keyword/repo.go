// Package keyword provides the BM25 retrieval path over a Bleve index. It
// backs the keyword half of hybrid search and the fallback path when
// embeddings are unavailable.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
)

// Repo implements the keyword retrieval path.
type Repo struct {
	index bleve.Index
}

// bleveChunk is the indexed document shape.
type bleveChunk struct {
	Scope      string `json:"scope"`
	DocID      string `json:"doc_id"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	Position   int    `json:"position"`
	TokenCount int    `json:"token_count"`
}

// New opens the Bleve index at path, creating it when missing. An existing
// index is reused as-is; remove the directory to force a rebuild after a
// mapping change.
func New(path string) (*Repo, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open keyword index: %w", openErr)
		}
		return &Repo{index: index}, nil
	}

	index, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &Repo{index: index}, nil
}

// NewInMemory creates a non-persistent index. Used in tests.
func NewInMemory() (*Repo, error) {
	index, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create in-memory keyword index: %w", err)
	}
	return &Repo{index: index}, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) keeps exact
	// terms searchable.
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("text", textField)

	keywordField := bleve.NewKeywordFieldMapping()
	keywordField.IncludeInAll = false
	docMapping.AddFieldMappingsAt("scope", keywordField)
	docMapping.AddFieldMappingsAt("doc_id", keywordField)

	numericField := bleve.NewNumericFieldMapping()
	numericField.IncludeInAll = false
	docMapping.AddFieldMappingsAt("position", numericField)
	docMapping.AddFieldMappingsAt("token_count", numericField)

	im.DefaultMapping = docMapping
	return im
}

// Index adds or replaces chunks in a single batch.
func (r *Repo) Index(ctx context.Context, scope string, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := r.index.NewBatch()
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk requires an id")
		}
		doc := bleveChunk{
			Scope:      scope,
			DocID:      c.DocumentID,
			Title:      c.Title,
			Text:       c.Text,
			Position:   c.Position,
			TokenCount: c.TokenCount,
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}

	if err := r.index.Batch(batch); err != nil {
		return fmt.Errorf("keyword batch of %d chunks: %w", len(chunks), err)
	}
	return nil
}

// Search runs a BM25 match query over title and text. Scores are normalized
// to (0,1] by the top hit so they are comparable with vector similarities.
// An empty scope matches all scopes.
func (r *Repo) Search(
	ctx context.Context, query string,
	scope string, documentIDs []string, topK int,
) ([]chunk.Chunk, error) {
	if query == "" {
		return nil, nil
	}

	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("title")
	textQuery := bleve.NewMatchQuery(query)
	textQuery.SetField("text")

	conjuncts := []blevequery.Query{
		bleve.NewDisjunctionQuery(titleQuery, textQuery),
	}
	if scope != "" {
		tq := bleve.NewTermQuery(scope)
		tq.SetField("scope")
		conjuncts = append(conjuncts, tq)
	}
	if len(documentIDs) > 0 {
		docQueries := make([]blevequery.Query, len(documentIDs))
		for i, id := range documentIDs {
			dq := bleve.NewTermQuery(id)
			dq.SetField("doc_id")
			docQueries[i] = dq
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(docQueries...))
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(conjuncts...), topK, 0, false)
	req.Fields = []string{"*"}

	results, err := r.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	if len(results.Hits) == 0 {
		return nil, nil
	}

	maxScore := results.MaxScore
	if maxScore <= 0 {
		maxScore = 1
	}

	chunks := make([]chunk.Chunk, 0, len(results.Hits))
	for _, hit := range results.Hits {
		c := chunk.Chunk{
			ID:         hit.ID,
			DocumentID: fieldString(hit.Fields, "doc_id"),
			Title:      fieldString(hit.Fields, "title"),
			Text:       fieldString(hit.Fields, "text"),
			Position:   fieldInt(hit.Fields, "position"),
			TokenCount: fieldInt(hit.Fields, "token_count"),
			Similarity: hit.Score / maxScore,
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// DeleteDocument removes every chunk of a document and reports how many were
// deleted.
func (r *Repo) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	tq := bleve.NewTermQuery(documentID)
	tq.SetField("doc_id")

	const pageSize = 1000
	deleted := 0
	for {
		req := bleve.NewSearchRequestOptions(tq, pageSize, 0, false)
		results, err := r.index.SearchInContext(ctx, req)
		if err != nil {
			return deleted, fmt.Errorf("find chunks of %s: %w", documentID, err)
		}
		if len(results.Hits) == 0 {
			return deleted, nil
		}

		batch := r.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := r.index.Batch(batch); err != nil {
			return deleted, fmt.Errorf("delete chunks of %s: %w", documentID, err)
		}
		deleted += len(results.Hits)

		if len(results.Hits) < pageSize {
			return deleted, nil
		}
	}
}

// DocCount returns the number of indexed chunks.
func (r *Repo) DocCount() (uint64, error) {
	return r.index.DocCount()
}

// Close releases the underlying index.
func (r *Repo) Close() error {
	return r.index.Close()
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func fieldInt(fields map[string]interface{}, name string) int {
	if v, ok := fields[name].(float64); ok {
		return int(v)
	}
	return 0
}
