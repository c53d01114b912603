// Package ingest chunks, embeds and indexes documents into both retrieval
// stores. Re-ingesting a document replaces every previously stored chunk.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
)

// DefaultChunkWords is the default word budget per chunk.
const DefaultChunkWords = 200

// Document is an ingestion input. An empty ID gets a generated one.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Receipt reports what one ingestion stored.
type Receipt struct {
	DocumentID  string `json:"document_id"`
	Chunks      int    `json:"chunks"`
	TotalTokens int    `json:"total_tokens"`
}

// Service handles document ingestion and removal.
type Service struct {
	embed      Embedder
	vectors    VectorWriter
	keywords   KeywordIndexer
	chunkWords int
	logger     *zap.Logger
}

// New creates an ingestion service. chunkWords values below 1 fall back to
// the default budget.
func New(embed Embedder, vectors VectorWriter, keywords KeywordIndexer, chunkWords int, logger *zap.Logger) *Service {
	if chunkWords < 1 {
		chunkWords = DefaultChunkWords
	}
	return &Service{
		embed:      embed,
		vectors:    vectors,
		keywords:   keywords,
		chunkWords: chunkWords,
		logger:     logger,
	}
}

// Ingest chunks and embeds one document, then writes it to both stores.
// Any previously stored version of the document is removed first so stale
// chunks cannot linger after the text shrinks.
func (s *Service) Ingest(ctx context.Context, scope string, doc Document) (Receipt, error) {
	if strings.TrimSpace(scope) == "" {
		return Receipt{}, fmt.Errorf("scope is required")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	texts := splitChunks(doc.Text, s.chunkWords)
	if len(texts) == 0 {
		return Receipt{}, fmt.Errorf("document %s has no indexable text", doc.ID)
	}

	chunks := make([]chunk.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = chunk.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Title:      doc.Title,
			Text:       text,
			Position:   i,
			TokenCount: estimateTokens(text),
		}
	}

	batch, err := s.embed.BatchEmbed(ctx, texts)
	if err != nil {
		return Receipt{}, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	if len(batch.Embeddings) != len(chunks) {
		return Receipt{}, fmt.Errorf(
			"embed document %s: got %d vectors for %d chunks",
			doc.ID, len(batch.Embeddings), len(chunks),
		)
	}

	if _, err := s.vectors.DeleteDocument(ctx, doc.ID); err != nil {
		return Receipt{}, fmt.Errorf("replace document %s: %w", doc.ID, err)
	}
	if _, err := s.keywords.DeleteDocument(ctx, doc.ID); err != nil {
		return Receipt{}, fmt.Errorf("replace document %s: %w", doc.ID, err)
	}

	if err := s.vectors.Store(ctx, scope, chunks, batch.Embeddings); err != nil {
		return Receipt{}, fmt.Errorf("store document %s: %w", doc.ID, err)
	}
	if err := s.keywords.Index(ctx, scope, chunks); err != nil {
		return Receipt{}, fmt.Errorf("index document %s: %w", doc.ID, err)
	}

	s.logger.Info("Ingested document",
		zap.String("document_id", doc.ID),
		zap.String("scope", scope),
		zap.Int("chunks", len(chunks)),
		zap.Int("tokens", batch.TotalTokens))

	return Receipt{DocumentID: doc.ID, Chunks: len(chunks), TotalTokens: batch.TotalTokens}, nil
}

// Delete removes a document from both stores and reports how many vector
// chunks were dropped.
func (s *Service) Delete(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("document id is required")
	}

	removed, err := s.vectors.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if _, err := s.keywords.DeleteDocument(ctx, documentID); err != nil {
		return removed, fmt.Errorf("delete document %s from keyword index: %w", documentID, err)
	}

	s.logger.Info("Deleted document",
		zap.String("document_id", documentID), zap.Int("chunks", removed))
	return removed, nil
}
