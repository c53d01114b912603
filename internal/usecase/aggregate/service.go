// Package aggregate groups raw chunk hits by parent document and computes
// the per-document score breakdown behind every search result.
package aggregate

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/retrievex/internal/domain/chunk"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// excerptSeparator joins the best chunk texts into one excerpt.
const excerptSeparator = "\n\n[...]\n\n"

// excerptChunks is how many top chunks form the excerpt.
const excerptChunks = 3

// Weights are the scoring knobs. Defaults come from configuration; the
// document score is derived solely from the document's own chunks, never
// normalized across documents.
type Weights struct {
	MaxSimilarity float64
	AvgSimilarity float64
	Position      float64
	DiversityStep float64
	DiversityCap  float64
	Vector        float64
	Keyword       float64
}

// DefaultWeights returns the tuned starting point.
func DefaultWeights() Weights {
	return Weights{
		MaxSimilarity: 0.5,
		AvgSimilarity: 0.3,
		Position:      0.2,
		DiversityStep: 0.05,
		DiversityCap:  0.2,
		Vector:        0.7,
		Keyword:       0.3,
	}
}

// Service aggregates chunks into per-document results.
type Service struct {
	weights Weights
}

// New creates an aggregator.
func New(weights Weights) *Service {
	return &Service{weights: weights}
}

// Aggregate fuses both retrieval paths into ranked per-document results.
// Either chunk list may be empty: vector-only documents score by their
// chunk-derived score alone, keyword-only documents get
// keywordScore * keywordWeight, and documents found by both paths combine
// as vectorScore*vectorWeight + keywordScore*keywordWeight.
func (s *Service) Aggregate(vectorChunks, keywordChunks []chunk.Chunk) []result.Result {
	vectorDocs := s.groupVector(vectorChunks)
	keywordDocs := groupKeyword(keywordChunks)

	results := make([]result.Result, 0, len(vectorDocs)+len(keywordDocs))

	for docID, vd := range vectorDocs {
		combined := vd.finalScore
		scores := vd.scores
		sources := []result.Source{result.SourceVector}

		if kd, ok := keywordDocs[docID]; ok {
			scores.KeywordScore = kd.score
			combined = clamp01(vd.finalScore*s.weights.Vector + kd.score*s.weights.Keyword)
			sources = append(sources, result.SourceKeyword)
			delete(keywordDocs, docID)
		}

		results = append(results, result.New(
			docID, vd.title, vd.excerpt, combined, scores, sources, vd.chunkCount,
		))
	}

	for docID, kd := range keywordDocs {
		scores := result.Scores{KeywordScore: kd.score}
		combined := clamp01(kd.score * s.weights.Keyword)
		results = append(results, result.New(
			docID, kd.title, kd.excerpt, combined,
			scores, []result.Source{result.SourceKeyword}, kd.chunkCount,
		))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Combined() > results[j].Combined()
	})
	return results
}

// vectorDoc is the per-document accumulation of the dense path.
type vectorDoc struct {
	title      string
	excerpt    string
	scores     result.Scores
	finalScore float64
	chunkCount int
}

// groupVector groups chunks by parent document and computes the enhanced
// document score.
func (s *Service) groupVector(chunks []chunk.Chunk) map[string]vectorDoc {
	byDoc := groupByDocument(chunks)

	docs := make(map[string]vectorDoc, len(byDoc))
	for docID, docChunks := range byDoc {
		var maxSim, sumSim, sumPos float64
		for _, c := range docChunks {
			if c.Similarity > maxSim {
				maxSim = c.Similarity
			}
			sumSim += c.Similarity
			sumPos += c.Similarity * c.PositionWeight()
		}

		n := float64(len(docChunks))
		avgSim := sumSim / n
		posScore := sumPos / n

		bonus := float64(len(docChunks)) * s.weights.DiversityStep
		if bonus > s.weights.DiversityCap {
			bonus = s.weights.DiversityCap
		}

		final := clamp01(
			s.weights.MaxSimilarity*maxSim +
				s.weights.AvgSimilarity*avgSim +
				s.weights.Position*posScore +
				bonus,
		)

		docs[docID] = vectorDoc{
			title:   docChunks[0].Title,
			excerpt: buildExcerpt(docChunks),
			scores: result.Scores{
				MaxSimilarity:  maxSim,
				AvgSimilarity:  avgSim,
				PositionScore:  posScore,
				DiversityBonus: bonus,
			},
			finalScore: final,
			chunkCount: len(docChunks),
		}
	}
	return docs
}

// keywordDoc is the per-document accumulation of the sparse path.
type keywordDoc struct {
	title      string
	excerpt    string
	score      float64
	chunkCount int
}

func groupKeyword(chunks []chunk.Chunk) map[string]keywordDoc {
	byDoc := groupByDocument(chunks)

	docs := make(map[string]keywordDoc, len(byDoc))
	for docID, docChunks := range byDoc {
		var maxScore float64
		for _, c := range docChunks {
			if c.Similarity > maxScore {
				maxScore = c.Similarity
			}
		}
		docs[docID] = keywordDoc{
			title:      docChunks[0].Title,
			excerpt:    buildExcerpt(docChunks),
			score:      maxScore,
			chunkCount: len(docChunks),
		}
	}
	return docs
}

// groupByDocument buckets chunks by parent document, deduplicating by chunk
// id and keeping the higher-similarity instance.
func groupByDocument(chunks []chunk.Chunk) map[string][]chunk.Chunk {
	best := make(map[string]chunk.Chunk, len(chunks))
	for _, c := range chunks {
		if prev, ok := best[c.ID]; ok && prev.Similarity >= c.Similarity {
			continue
		}
		best[c.ID] = c
	}

	byDoc := make(map[string][]chunk.Chunk)
	for _, c := range best {
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], c)
	}
	return byDoc
}

// buildExcerpt concatenates the top chunks by similarity.
func buildExcerpt(chunks []chunk.Chunk) string {
	sorted := make([]chunk.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Similarity > sorted[j].Similarity
	})
	if len(sorted) > excerptChunks {
		sorted = sorted[:excerptChunks]
	}

	parts := make([]string, 0, len(sorted))
	for _, c := range sorted {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, excerptSeparator)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
