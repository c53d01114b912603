package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// MaxBatchSize is the maximum number of documents per batch request.
const MaxBatchSize = 100

// Batch statuses.
const (
	BatchStatusOK    = "ok"
	BatchStatusError = "error"
)

// BatchItemResult reports the outcome for one document of a batch. Failed
// items carry the error message; successful ones carry the chunk count.
type BatchItemResult struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Chunks     int    `json:"chunks,omitempty"`
	Error      string `json:"error,omitempty"`
}

// IngestBatch ingests documents one by one with per-item error reporting.
// A failed document does not stop the rest of the batch. When the batch
// exceeds MaxBatchSize every item is rejected without side effects.
func (s *Service) IngestBatch(ctx context.Context, scope string, docs []Document) []BatchItemResult {
	results := make([]BatchItemResult, len(docs))

	if len(docs) > MaxBatchSize {
		msg := fmt.Sprintf("batch size %d exceeds %d", len(docs), MaxBatchSize)
		for i, doc := range docs {
			results[i] = BatchItemResult{DocumentID: doc.ID, Status: BatchStatusError, Error: msg}
		}
		return results
	}

	var failed int
	for i, doc := range docs {
		receipt, err := s.Ingest(ctx, scope, doc)
		if err != nil {
			failed++
			results[i] = BatchItemResult{
				DocumentID: doc.ID,
				Status:     BatchStatusError,
				Error:      err.Error(),
			}
			continue
		}
		results[i] = BatchItemResult{
			DocumentID: receipt.DocumentID,
			Status:     BatchStatusOK,
			Chunks:     receipt.Chunks,
		}
	}

	s.logger.Info("Batch ingested",
		zap.String("scope", scope),
		zap.Int("total", len(docs)),
		zap.Int("failed", failed),
	)

	return results
}
