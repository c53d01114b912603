package result

import "testing"

func TestNew(t *testing.T) {
	scores := Scores{MaxSimilarity: 0.9, AvgSimilarity: 0.7, PositionScore: 0.6, DiversityBonus: 0.1}
	r := New("doc-1", "Klimabericht", "excerpt text", 0.82, scores, []Source{SourceVector}, 3)

	if r.DocumentID() != "doc-1" {
		t.Errorf("DocumentID() = %q", r.DocumentID())
	}
	if r.Title() != "Klimabericht" {
		t.Errorf("Title() = %q", r.Title())
	}
	if r.Combined() != 0.82 {
		t.Errorf("Combined() = %f", r.Combined())
	}
	if r.Scores().MaxSimilarity != 0.9 {
		t.Errorf("Scores().MaxSimilarity = %f", r.Scores().MaxSimilarity)
	}
	if r.ChunkCount() != 3 {
		t.Errorf("ChunkCount() = %d", r.ChunkCount())
	}
	if r.Diversity() != 1.0 {
		t.Errorf("Diversity() = %f, want 1.0", r.Diversity())
	}
}

func TestHasSource(t *testing.T) {
	r := New("doc-1", "t", "", 0.5, Scores{}, []Source{SourceVector, SourceKeyword}, 1)
	if !r.HasSource(SourceVector) || !r.HasSource(SourceKeyword) {
		t.Error("expected both sources present")
	}

	kw := New("doc-2", "t", "", 0.2, Scores{}, []Source{SourceKeyword}, 0)
	if kw.HasSource(SourceVector) {
		t.Error("unexpected vector source")
	}
}

func TestWithCopies(t *testing.T) {
	r := New("doc-1", "t", "", 0.5, Scores{}, nil, 1)

	up := r.WithCombined(0.9)
	if r.Combined() != 0.5 {
		t.Error("WithCombined mutated the receiver")
	}
	if up.Combined() != 0.9 {
		t.Errorf("Combined() = %f, want 0.9", up.Combined())
	}

	lo := r.WithDiversity(0.5)
	if lo.Diversity() != 0.5 {
		t.Errorf("Diversity() = %f, want 0.5", lo.Diversity())
	}
}
