package keyword

import (
	"context"
	"testing"

	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedChunks(t *testing.T, repo *Repo, scope string, chunks []chunk.Chunk) {
	t.Helper()
	if err := repo.Index(context.Background(), scope, chunks); err != nil {
		t.Fatalf("Index: %v", err)
	}
}

func TestSearch_MatchesTitleAndText(t *testing.T) {
	repo := newTestRepo(t)
	seedChunks(t, repo, "energy", []chunk.Chunk{
		{ID: "a", DocumentID: "doc-1", Title: "Heat pumps", Text: "Heat pumps move heat.", Position: 0, TokenCount: 6},
		{ID: "b", DocumentID: "doc-2", Title: "Wind power", Text: "Turbines convert wind into electricity.", Position: 1, TokenCount: 7},
	})

	chunks, err := repo.Search(context.Background(), "heat pumps", "energy", nil, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one hit")
	}
	if chunks[0].ID != "a" {
		t.Errorf("top hit = %q, want a", chunks[0].ID)
	}
	if chunks[0].DocumentID != "doc-1" || chunks[0].TokenCount != 6 {
		t.Errorf("stored fields not round-tripped: %+v", chunks[0])
	}
	if chunks[0].Similarity != 1.0 {
		t.Errorf("top hit score = %f, want normalized 1.0", chunks[0].Similarity)
	}
}

func TestSearch_ScopeFilter(t *testing.T) {
	repo := newTestRepo(t)
	seedChunks(t, repo, "energy", []chunk.Chunk{
		{ID: "a", DocumentID: "doc-1", Title: "Solar", Text: "Solar panels produce power."},
	})
	seedChunks(t, repo, "transport", []chunk.Chunk{
		{ID: "b", DocumentID: "doc-2", Title: "Solar cars", Text: "Solar powered vehicles."},
	})

	chunks, err := repo.Search(context.Background(), "solar", "transport", nil, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "b" {
		t.Fatalf("expected only the transport chunk, got %+v", chunks)
	}
}

func TestSearch_DocumentFilter(t *testing.T) {
	repo := newTestRepo(t)
	seedChunks(t, repo, "energy", []chunk.Chunk{
		{ID: "a", DocumentID: "doc-1", Title: "Solar", Text: "Solar power basics."},
		{ID: "b", DocumentID: "doc-2", Title: "Solar", Text: "Advanced solar topics."},
	})

	chunks, err := repo.Search(context.Background(), "solar", "energy", []string{"doc-2"}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].DocumentID != "doc-2" {
		t.Fatalf("expected only doc-2 chunks, got %+v", chunks)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	repo := newTestRepo(t)

	chunks, err := repo.Search(context.Background(), "", "energy", nil, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if chunks != nil {
		t.Errorf("expected nil for empty query, got %v", chunks)
	}
}

func TestSearch_NoHits(t *testing.T) {
	repo := newTestRepo(t)
	seedChunks(t, repo, "energy", []chunk.Chunk{
		{ID: "a", DocumentID: "doc-1", Title: "Solar", Text: "Solar power basics."},
	})

	chunks, err := repo.Search(context.Background(), "quantum entanglement", "energy", nil, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if chunks != nil {
		t.Errorf("expected no hits, got %+v", chunks)
	}
}

func TestIndex_ReplacesByID(t *testing.T) {
	repo := newTestRepo(t)
	seedChunks(t, repo, "energy", []chunk.Chunk{
		{ID: "a", DocumentID: "doc-1", Title: "Old title", Text: "Old text about batteries."},
	})
	seedChunks(t, repo, "energy", []chunk.Chunk{
		{ID: "a", DocumentID: "doc-1", Title: "New title", Text: "New text about insulation."},
	})

	count, err := repo.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if count != 1 {
		t.Errorf("doc count = %d, want 1 after replace", count)
	}

	chunks, err := repo.Search(context.Background(), "insulation", "energy", nil, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Title != "New title" {
		t.Fatalf("expected replaced chunk, got %+v", chunks)
	}
}

func TestDeleteDocument(t *testing.T) {
	repo := newTestRepo(t)
	seedChunks(t, repo, "energy", []chunk.Chunk{
		{ID: "a", DocumentID: "doc-1", Title: "Solar", Text: "Solar one."},
		{ID: "b", DocumentID: "doc-1", Title: "Solar", Text: "Solar two."},
		{ID: "c", DocumentID: "doc-2", Title: "Solar", Text: "Solar three."},
	})

	n, err := repo.DeleteDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	count, err := repo.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if count != 1 {
		t.Errorf("remaining = %d, want 1", count)
	}
}
