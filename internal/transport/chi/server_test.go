package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
	"github.com/kailas-cloud/retrievex/internal/metrics"
	"github.com/kailas-cloud/retrievex/internal/usecase/aggregate"
	"github.com/kailas-cloud/retrievex/internal/usecase/funnel"
	healthuc "github.com/kailas-cloud/retrievex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/retrievex/internal/usecase/ingest"
	"github.com/kailas-cloud/retrievex/internal/usecase/multiquery"
	"github.com/kailas-cloud/retrievex/internal/usecase/retrieve"
	searchuc "github.com/kailas-cloud/retrievex/internal/usecase/search"
	usageuc "github.com/kailas-cloud/retrievex/internal/usecase/usage"
)

func TestMain(m *testing.M) {
	metrics.RegisterSearchMetrics()
	os.Exit(m.Run())
}

// --- Stubs ---

type stubExpander struct{ err error }

func (s *stubExpander) Expand(_ context.Context, query, _, _ string) (domain.QueryExpansion, error) {
	if s.err != nil {
		return domain.QueryExpansion{}, s.err
	}
	return domain.QueryExpansion{
		Variants:  []domain.QueryVariant{{Text: query, Weight: 1.0}},
		Embedding: []float32{0.1, 0.2},
	}, nil
}

type stubRetriever struct {
	candidates retrieve.Candidates
}

func (s *stubRetriever) Retrieve(_ context.Context, _ retrieve.Input) retrieve.Candidates {
	return s.candidates
}

type stubFunnel struct{ out funnel.Output }

func (s *stubFunnel) Run(_ context.Context, _ funnel.Request) funnel.Output { return s.out }

type stubEmbedder struct{}

func (stubEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2}
	}
	return domain.BatchEmbeddingResult{Embeddings: vectors, TotalTokens: 5}, nil
}

type stubVectorWriter struct{}

func (stubVectorWriter) Store(context.Context, string, []chunk.Chunk, [][]float32) error {
	return nil
}
func (stubVectorWriter) DeleteDocument(context.Context, string) (int, error) { return 2, nil }

type stubKeywordIndexer struct{}

func (stubKeywordIndexer) Index(context.Context, string, []chunk.Chunk) error  { return nil }
func (stubKeywordIndexer) DeleteDocument(context.Context, string) (int, error) { return 2, nil }

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubDocCounter struct{ err error }

func (s stubDocCounter) DocCount() (uint64, error) { return 1, s.err }

// --- Helpers ---

func newTestRouter(t *testing.T, candidates retrieve.Candidates) http.Handler {
	t.Helper()
	logger := zap.NewNop()

	engine := searchuc.New(
		&stubExpander{},
		&stubRetriever{candidates: candidates},
		aggregate.New(aggregate.DefaultWeights()),
		&stubFunnel{},
		searchuc.DefaultConfig(),
		logger,
	)
	multi, err := multiquery.New(searchuc.NewSubQuerySearcher(engine), 2, logger)
	if err != nil {
		t.Fatalf("multiquery.New: %v", err)
	}
	t.Cleanup(multi.Close)

	ingest := ingestuc.New(stubEmbedder{}, stubVectorWriter{}, stubKeywordIndexer{}, 0, logger)
	health := healthuc.New(stubPinger{}, stubDocCounter{}, nil)
	usage := usageuc.New(nil)

	server := NewServer(engine, multi, ingest, health, usage, logger)
	r := chi.NewRouter()
	server.Routes(r)
	return r
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleCandidates() retrieve.Candidates {
	return retrieve.Candidates{
		Vector: []chunk.Chunk{
			{ID: "c1", DocumentID: "doc-1", Title: "Bericht", Text: "Inhalt.", Similarity: 0.9},
		},
	}
}

// --- Tests ---

func TestHandleSearch(t *testing.T) {
	router := newTestRouter(t, sampleCandidates())

	rec := postJSON(t, router, "/v1/search", searchRequest{Query: "Klimaschutz", Scope: "tenant-1"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if len(resp.Results) != 1 || resp.Results[0].DocumentID != "doc-1" {
		t.Errorf("results = %+v", resp.Results)
	}
	if resp.Results[0].Score <= 0 {
		t.Error("score must be positive")
	}
}

func TestHandleSearch_MissingScope(t *testing.T) {
	router := newTestRouter(t, sampleCandidates())

	rec := postJSON(t, router, "/v1/search", searchRequest{Query: "Klimaschutz"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var errResp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if errResp.Code != codeValidation {
		t.Errorf("code = %s, want %s", errResp.Code, codeValidation)
	}
}

func TestHandleSearch_InvalidBody(t *testing.T) {
	router := newTestRouter(t, sampleCandidates())

	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSearch_EmptyQuery(t *testing.T) {
	router := newTestRouter(t, retrieve.Candidates{})

	rec := postJSON(t, router, "/v1/search", searchRequest{Query: "", Scope: "tenant-1"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || len(resp.Results) != 0 {
		t.Errorf("success=%v results=%d, want success with no results", resp.Success, len(resp.Results))
	}
}

func TestHandleMultiStage_DefaultsToAllStages(t *testing.T) {
	router := newTestRouter(t, sampleCandidates())

	rec := postJSON(t, router, "/v1/search/multi-stage", map[string]any{
		"query": "Klimaschutz", "scope": "tenant-1",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SearchType != "multi_stage" {
		t.Errorf("search type = %s", resp.SearchType)
	}
}

func TestStageToggles(t *testing.T) {
	off := false
	toggles := &stageToggles{SemanticFilter: &off}
	stages := toggles.toStages()

	if stages.SemanticFilter {
		t.Error("semantic filter must be disabled")
	}
	if !stages.ApproximateSearch || !stages.ContextualRerank || !stages.DiversityInjection {
		t.Error("untouched stages must stay enabled")
	}
}

func TestHandleMultiQuery(t *testing.T) {
	router := newTestRouter(t, sampleCandidates())

	rec := postJSON(t, router, "/v1/search/multi-query", multiQueryRequest{
		Queries: []string{"Wärmepumpe", "Heizung"}, Scope: "tenant-1", Limit: 5,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp multiQueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.BeforeDedupCount != 2 || resp.AfterDedupCount != 1 {
		t.Errorf("dedup counts = %d/%d, want 2/1", resp.BeforeDedupCount, resp.AfterDedupCount)
	}
	if len(resp.Results) != 1 {
		t.Errorf("results = %d, want 1 after dedup", len(resp.Results))
	}
}

func TestHandleMultiQuery_Validation(t *testing.T) {
	router := newTestRouter(t, sampleCandidates())

	tests := []struct {
		name string
		body multiQueryRequest
	}{
		{"missing scope", multiQueryRequest{Queries: []string{"q"}}},
		{"no queries", multiQueryRequest{Scope: "tenant-1"}},
		{"too many queries", multiQueryRequest{
			Scope:   "tenant-1",
			Queries: make([]string, maxSubQueries+1),
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, router, "/v1/search/multi-query", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleIngest(t *testing.T) {
	router := newTestRouter(t, retrieve.Candidates{})

	rec := postJSON(t, router, "/v1/documents", ingestRequest{
		Scope:    "tenant-1",
		Document: ingestuc.Document{ID: "doc-1", Title: "Bericht", Text: "Etwas Inhalt."},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var receipt ingestuc.Receipt
	if err := json.Unmarshal(rec.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if receipt.DocumentID != "doc-1" || receipt.Chunks != 1 {
		t.Errorf("receipt = %+v", receipt)
	}
}

func TestHandleDelete(t *testing.T) {
	router := newTestRouter(t, retrieve.Candidates{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp deleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.DocumentID != "doc-1" || resp.ChunksRemoved != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter(t, retrieve.Candidates{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report healthuc.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Status != healthuc.Healthy {
		t.Errorf("status = %s", report.Status)
	}
}

func TestHandleUsage(t *testing.T) {
	router := newTestRouter(t, retrieve.Candidates{})

	req := httptest.NewRequest(http.MethodGet, "/v1/usage?period=day", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report usageuc.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Period != usageuc.PeriodDay {
		t.Errorf("period = %s", report.Period)
	}
	if report.Remaining != -1 {
		t.Errorf("expected unlimited remaining, got %d", report.Remaining)
	}
}

func TestHandleIngestBatch(t *testing.T) {
	router := newTestRouter(t, retrieve.Candidates{})

	rec := postJSON(t, router, "/v1/documents/batch", map[string]any{
		"scope": "tenant-1",
		"documents": []map[string]string{
			{"id": "doc-1", "title": "Erster", "text": "Klimaschutz im Alltag."},
			{"id": "doc-2", "title": "Zweiter", "text": "Energie sparen."},
		},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp batchIngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.Status != ingestuc.BatchStatusOK {
			t.Errorf("result %d: status = %q, error %q", i, r.Status, r.Error)
		}
	}
}

func TestHandleIngestBatch_PartialFailureIsMultiStatus(t *testing.T) {
	router := newTestRouter(t, retrieve.Candidates{})

	rec := postJSON(t, router, "/v1/documents/batch", map[string]any{
		"scope": "tenant-1",
		"documents": []map[string]string{
			{"id": "doc-1", "text": "Klimaschutz im Alltag."},
			{"id": "doc-2", "text": ""},
		},
	})

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp batchIngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Results[0].Status != ingestuc.BatchStatusOK {
		t.Errorf("first result = %+v", resp.Results[0])
	}
	if resp.Results[1].Status != ingestuc.BatchStatusError {
		t.Errorf("second result = %+v", resp.Results[1])
	}
}

func TestHandleIngestBatch_Validation(t *testing.T) {
	router := newTestRouter(t, retrieve.Candidates{})

	rec := postJSON(t, router, "/v1/documents/batch", map[string]any{
		"scope":     "",
		"documents": []map[string]string{{"id": "doc-1", "text": "Text."}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing scope: status = %d", rec.Code)
	}

	rec = postJSON(t, router, "/v1/documents/batch", map[string]any{
		"scope": "tenant-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty documents: status = %d", rec.Code)
	}
}
