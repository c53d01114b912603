package search

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/metrics"
	"github.com/kailas-cloud/retrievex/internal/usecase/aggregate"
	"github.com/kailas-cloud/retrievex/internal/usecase/funnel"
	"github.com/kailas-cloud/retrievex/internal/usecase/retrieve"
)

func TestMain(m *testing.M) {
	metrics.RegisterSearchMetrics()
	os.Exit(m.Run())
}

type mockExpander struct {
	fn    func(query string) (domain.QueryExpansion, error)
	calls []string
}

func (m *mockExpander) Expand(_ context.Context, query, _, _ string) (domain.QueryExpansion, error) {
	m.calls = append(m.calls, query)
	if m.fn != nil {
		return m.fn(query)
	}
	return domain.QueryExpansion{
		Variants:  []domain.QueryVariant{{Text: query, Weight: 1.0}},
		Embedding: []float32{0.1, 0.2, 0.3},
	}, nil
}

type mockRetriever struct {
	fn    func(in retrieve.Input) retrieve.Candidates
	calls []retrieve.Input
}

func (m *mockRetriever) Retrieve(_ context.Context, in retrieve.Input) retrieve.Candidates {
	m.calls = append(m.calls, in)
	if m.fn != nil {
		return m.fn(in)
	}
	return retrieve.Candidates{}
}

type mockFunnel struct {
	fn    func(req funnel.Request) funnel.Output
	calls []funnel.Request
}

func (m *mockFunnel) Run(_ context.Context, req funnel.Request) funnel.Output {
	m.calls = append(m.calls, req)
	if m.fn != nil {
		return m.fn(req)
	}
	return funnel.Output{}
}

func newTestEngine(t *testing.T, me *mockExpander, mr *mockRetriever, mf *mockFunnel) *Engine {
	t.Helper()
	if me == nil {
		me = &mockExpander{}
	}
	if mf == nil {
		mf = &mockFunnel{}
	}
	return New(me, mr, aggregate.New(aggregate.DefaultWeights()), mf, DefaultConfig(), zap.NewNop())
}

func vectorChunk(id, docID string, sim float64) chunk.Chunk {
	return chunk.Chunk{
		ID: id, DocumentID: docID,
		Title:      "Bericht " + docID,
		Text:       "Maßnahmen und Ziele für " + docID + ".",
		Similarity: sim,
	}
}

func keywordChunk(docID string, sim float64) chunk.Chunk {
	return chunk.Chunk{
		ID: docID + "-kw", DocumentID: docID,
		Title:      "Bericht " + docID,
		Text:       "Volltexttreffer für " + docID + ".",
		Similarity: sim,
	}
}

func testRequest(t *testing.T, query string, m mode.Mode) request.Request {
	t.Helper()
	req, err := request.New(query, "tenant-1", m, 10, nil)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return req
}
