package expand

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	calls   []string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls = append(m.calls, text)
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

func newTestService(embed Embedder, maxVariants int) *Service {
	return New(embed, maxVariants, 0.3, zap.NewNop())
}

func TestExpand_NoLexiconMatch(t *testing.T) {
	me := &mockEmbedder{}
	svc := newTestService(me, 4)

	exp, err := svc.Expand(context.Background(), "quartalsbericht", "tenant-1", "")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(exp.Variants) != 1 {
		t.Fatalf("expected only the original variant, got %d", len(exp.Variants))
	}
	if exp.Variants[0].Weight != 1.0 {
		t.Errorf("original weight = %f, want 1.0", exp.Variants[0].Weight)
	}
	if len(me.calls) != 1 {
		t.Errorf("expected 1 embed call, got %d", len(me.calls))
	}
	if len(exp.Embedding) != 2 {
		t.Errorf("composite embedding missing: %v", exp.Embedding)
	}
}

func TestExpand_GeneratesWeightedVariants(t *testing.T) {
	me := &mockEmbedder{}
	svc := newTestService(me, 4)

	exp, err := svc.Expand(context.Background(), "Klimaschutz", "tenant-1", "")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(exp.Variants) != 4 {
		t.Fatalf("expected 4 variants, got %d: %+v", len(exp.Variants), exp.Variants)
	}
	for i := 1; i < len(exp.Variants); i++ {
		v := exp.Variants[i]
		if v.Weight >= exp.Variants[i-1].Weight {
			t.Errorf("weights must decrease: %+v", exp.Variants)
		}
		if v.Weight < 0.3 {
			t.Errorf("variant weight %f below floor", v.Weight)
		}
	}
}

func TestExpand_CompositeIsWeightedMean(t *testing.T) {
	vectors := map[string][]float32{
		"Klimaschutz": {1, 0},
		"klimawandel": {0, 1},
	}
	me := &mockEmbedder{embedFn: func(ctx context.Context, text string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{Embedding: vectors[text]}, nil
	}}
	svc := newTestService(me, 2)

	exp, err := svc.Expand(context.Background(), "Klimaschutz", "tenant-1", "")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	// Weights 1.0 and 0.75, normalized to 4/7 and 3/7.
	want := []float32{4.0 / 7.0, 3.0 / 7.0}
	for d := range want {
		if math.Abs(float64(exp.Embedding[d]-want[d])) > 1e-6 {
			t.Errorf("composite[%d] = %f, want %f", d, exp.Embedding[d], want[d])
		}
	}
}

func TestExpand_VariantFailureSkipped(t *testing.T) {
	me := &mockEmbedder{embedFn: func(ctx context.Context, text string) (domain.EmbeddingResult, error) {
		if text != "Klimaschutz" {
			return domain.EmbeddingResult{}, errors.New("provider overloaded")
		}
		return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
	}}
	svc := newTestService(me, 4)

	exp, err := svc.Expand(context.Background(), "Klimaschutz", "tenant-1", "")
	if err != nil {
		t.Fatalf("Expand must not fail when only variants fail: %v", err)
	}
	if len(exp.Variants) != 1 {
		t.Fatalf("expected 1 surviving variant, got %d", len(exp.Variants))
	}
	if exp.Embedding[0] != 1 || exp.Embedding[1] != 0 {
		t.Errorf("composite must equal the original embedding, got %v", exp.Embedding)
	}
}

func TestExpand_OriginalFailure(t *testing.T) {
	me := &mockEmbedder{embedFn: func(ctx context.Context, text string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, errors.New("provider down")
	}}
	svc := newTestService(me, 4)

	_, err := svc.Expand(context.Background(), "Klimaschutz", "tenant-1", "")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestWeightedAverage_IdentityWeight(t *testing.T) {
	first := []float32{0.25, -0.5, 0.75}
	got, err := WeightedAverage([][]float32{first, {1, 1, 1}, {2, 2, 2}}, []float64{1, 0, 0})
	if err != nil {
		t.Fatalf("WeightedAverage failed: %v", err)
	}
	for d := range first {
		if got[d] != first[d] {
			t.Errorf("dim %d: got %f, want %f (no drift allowed)", d, got[d], first[d])
		}
	}
}

func TestWeightedAverage_Errors(t *testing.T) {
	if _, err := WeightedAverage(nil, nil); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := WeightedAverage([][]float32{{1}}, []float64{1, 2}); err == nil {
		t.Error("expected error for length mismatch")
	}
	if _, err := WeightedAverage([][]float32{{1}, {1, 2}}, []float64{1, 1}); err == nil {
		t.Error("expected error for mixed dimensions")
	}
	if _, err := WeightedAverage([][]float32{{1}}, []float64{0}); err == nil {
		t.Error("expected error for zero weight sum")
	}
}
