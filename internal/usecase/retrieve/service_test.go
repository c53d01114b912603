package retrieve

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
	"github.com/kailas-cloud/retrievex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterSearchMetrics()
	os.Exit(m.Run())
}

type mockVector struct {
	fn    func(ctx context.Context) ([]chunk.Chunk, error)
	calls int
}

func (m *mockVector) Search(
	ctx context.Context, vector []float32,
	scope string, documentIDs []string,
	topK int, threshold float64,
) ([]chunk.Chunk, error) {
	m.calls++
	if m.fn != nil {
		return m.fn(ctx)
	}
	return nil, nil
}

type mockKeyword struct {
	fn    func(ctx context.Context) ([]chunk.Chunk, error)
	calls int
}

func (m *mockKeyword) Search(
	ctx context.Context, query string,
	scope string, documentIDs []string, topK int,
) ([]chunk.Chunk, error) {
	m.calls++
	if m.fn != nil {
		return m.fn(ctx)
	}
	return nil, nil
}

func newTestService(mv *mockVector, mk *mockKeyword, maxRetries int) *Service {
	return New(mv, mk, time.Second, maxRetries, zap.NewNop())
}

func testInput() Input {
	return Input{
		Vector:       []float32{0.1, 0.2},
		Query:        "Klimaschutz",
		Scope:        "tenant-1",
		VectorLimit:  30,
		KeywordLimit: 10,
		Threshold:    0.3,
	}
}

func TestRetrieve_BothPaths(t *testing.T) {
	mv := &mockVector{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		return []chunk.Chunk{{ID: "v1", Similarity: 0.9}}, nil
	}}
	mk := &mockKeyword{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		return []chunk.Chunk{{ID: "k1", Similarity: 0.8}}, nil
	}}
	svc := newTestService(mv, mk, 0)

	out := svc.Retrieve(context.Background(), testInput())

	if out.VectorErr != nil || out.KeywordErr != nil {
		t.Fatalf("unexpected errors: %v / %v", out.VectorErr, out.KeywordErr)
	}
	if len(out.Vector) != 1 || len(out.Keyword) != 1 {
		t.Errorf("hits = %d vector, %d keyword; want 1 each", len(out.Vector), len(out.Keyword))
	}
}

func TestRetrieve_VectorFailureDegrades(t *testing.T) {
	mv := &mockVector{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		return nil, errors.New("connection refused")
	}}
	mk := &mockKeyword{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		return []chunk.Chunk{{ID: "k1"}, {ID: "k2"}}, nil
	}}
	svc := newTestService(mv, mk, 0)

	out := svc.Retrieve(context.Background(), testInput())

	if !errors.Is(out.VectorErr, domain.ErrVectorStoreUnavailable) {
		t.Fatalf("expected ErrVectorStoreUnavailable, got %v", out.VectorErr)
	}
	if len(out.Keyword) != 2 {
		t.Errorf("keyword path must survive vector failure, got %d hits", len(out.Keyword))
	}
	if out.AllFailed() {
		t.Error("AllFailed must be false while one path succeeds")
	}
}

func TestRetrieve_BothFail(t *testing.T) {
	mv := &mockVector{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		return nil, errors.New("vector down")
	}}
	mk := &mockKeyword{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		return nil, errors.New("keyword down")
	}}
	svc := newTestService(mv, mk, 0)

	out := svc.Retrieve(context.Background(), testInput())

	if !out.AllFailed() {
		t.Fatal("expected AllFailed")
	}
	if !errors.Is(out.KeywordErr, domain.ErrKeywordStoreUnavailable) {
		t.Errorf("expected ErrKeywordStoreUnavailable, got %v", out.KeywordErr)
	}
}

func TestRetrieve_SkipsVectorWithoutEmbedding(t *testing.T) {
	mv := &mockVector{}
	mk := &mockKeyword{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		return []chunk.Chunk{{ID: "k1"}}, nil
	}}
	svc := newTestService(mv, mk, 0)

	in := testInput()
	in.Vector = nil
	out := svc.Retrieve(context.Background(), in)

	if mv.calls != 0 {
		t.Errorf("vector searcher called %d times, want 0", mv.calls)
	}
	if out.VectorErr != nil {
		t.Errorf("skipped path must carry no error, got %v", out.VectorErr)
	}
	if len(out.Keyword) != 1 {
		t.Errorf("keyword hits = %d, want 1", len(out.Keyword))
	}
}

func TestRetrieve_SkipsKeywordWithoutQuery(t *testing.T) {
	mv := &mockVector{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		return []chunk.Chunk{{ID: "v1"}}, nil
	}}
	mk := &mockKeyword{}
	svc := newTestService(mv, mk, 0)

	in := testInput()
	in.Query = ""
	out := svc.Retrieve(context.Background(), in)

	if mk.calls != 0 {
		t.Errorf("keyword searcher called %d times, want 0", mk.calls)
	}
	if len(out.Vector) != 1 {
		t.Errorf("vector hits = %d, want 1", len(out.Vector))
	}
}

func TestRetrieve_RetriesTransientFailure(t *testing.T) {
	attempts := 0
	mv := &mockVector{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return []chunk.Chunk{{ID: "v1"}}, nil
	}}
	mk := &mockKeyword{}
	svc := newTestService(mv, mk, 2)

	in := testInput()
	in.Query = ""
	out := svc.Retrieve(context.Background(), in)

	if out.VectorErr != nil {
		t.Fatalf("retry should have recovered, got %v", out.VectorErr)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetrieve_DeadlineReturnsPartial(t *testing.T) {
	mv := &mockVector{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	mk := &mockKeyword{fn: func(ctx context.Context) ([]chunk.Chunk, error) {
		return []chunk.Chunk{{ID: "k1"}}, nil
	}}
	svc := New(mv, mk, 0, 0, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := svc.Retrieve(ctx, testInput())

	if out.VectorErr == nil {
		t.Fatal("expected vector path to time out")
	}
	if len(out.Keyword) != 1 {
		t.Errorf("keyword result must survive the vector timeout, got %d hits", len(out.Keyword))
	}
}
