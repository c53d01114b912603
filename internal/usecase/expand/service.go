// Package expand turns one query into weighted variants and a single
// composite embedding, and derives similarity thresholds from query shape.
package expand

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
)

// Service generates query variants and their weighted-average embedding.
type Service struct {
	embed       Embedder
	maxVariants int
	minWeight   float64
	logger      *zap.Logger
}

// New creates an expansion service. maxVariants counts the original query;
// minWeight floors the confidence of generated variants.
func New(embed Embedder, maxVariants int, minWeight float64, logger *zap.Logger) *Service {
	if maxVariants < 1 {
		maxVariants = 1
	}
	return &Service{
		embed:       embed,
		maxVariants: maxVariants,
		minWeight:   minWeight,
		logger:      logger,
	}
}

// Expand implements domain.QueryExpander. It embeds the original query and
// up to maxVariants-1 lexicon-derived variants, then averages the vectors
// by normalized weight. A variant whose embedding fails is skipped; the
// expansion fails only when the original query cannot be embedded.
//
// Scope and content type do not influence variant generation; they are part
// of the contract so caching decorators can key on them.
func (s *Service) Expand(ctx context.Context, query, scope, contentType string) (domain.QueryExpansion, error) {
	candidates := s.variants(query)

	usable := make([]domain.QueryVariant, 0, len(candidates))
	vectors := make([][]float32, 0, len(candidates))

	for i, v := range candidates {
		res, err := s.embed.Embed(ctx, v.Text)
		if err != nil {
			if i == 0 {
				return domain.QueryExpansion{}, fmt.Errorf(
					"embed original query: %w: %w", domain.ErrEmbeddingUnavailable, err,
				)
			}
			s.logger.Warn("Failed to embed query variant, skipping",
				zap.String("variant", v.Text), zap.Error(err))
			continue
		}
		usable = append(usable, v)
		vectors = append(vectors, res.Embedding)
	}

	expansion := domain.QueryExpansion{Variants: usable}

	if len(vectors) == 1 {
		expansion.Embedding = vectors[0]
		return expansion, nil
	}

	weights := make([]float64, len(usable))
	for i, v := range usable {
		weights[i] = v.Weight
	}

	composite, err := WeightedAverage(vectors, weights)
	if err != nil {
		// Mixed dimensions should not happen with a single model; fall
		// back to the original vector rather than failing the search.
		s.logger.Warn("Failed to average variant embeddings", zap.Error(err))
		expansion.Variants = usable[:1]
		expansion.Embedding = vectors[0]
		return expansion, nil
	}

	expansion.Embedding = composite
	return expansion, nil
}

// variants returns the original query (weight 1.0) plus lexicon-derived
// rephrasings with decreasing weights.
func (s *Service) variants(query string) []domain.QueryVariant {
	out := []domain.QueryVariant{{Text: query, Weight: 1.0}}
	if s.maxVariants == 1 {
		return out
	}

	words := strings.Fields(query)
	seen := map[string]struct{}{strings.ToLower(query): {}}

	for i, w := range words {
		for _, neighbor := range lexicon[strings.ToLower(w)] {
			rephrased := make([]string, len(words))
			copy(rephrased, words)
			rephrased[i] = neighbor
			text := strings.Join(rephrased, " ")

			key := strings.ToLower(text)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			out = append(out, domain.QueryVariant{
				Text:   text,
				Weight: s.variantWeight(len(out)),
			})
			if len(out) >= s.maxVariants {
				return out
			}
		}
	}
	return out
}

// variantWeight assigns decreasing confidence to later variants, floored at
// minWeight.
func (s *Service) variantWeight(position int) float64 {
	w := 1.0 - 0.25*float64(position)
	if w < s.minWeight {
		return s.minWeight
	}
	return w
}

// WeightedAverage computes the per-dimension weighted mean of the vectors.
// Weights are normalized to sum 1 first, so [1,0,0] returns the first
// vector exactly.
func WeightedAverage(vectors [][]float32, weights []float64) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to average")
	}
	if len(vectors) != len(weights) {
		return nil, fmt.Errorf("got %d vectors but %d weights", len(vectors), len(weights))
	}

	var sum float64
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("negative weight %f", w)
		}
		sum += w
	}
	if sum == 0 {
		return nil, fmt.Errorf("weights sum to zero")
	}

	dims := len(vectors[0])
	acc := make([]float64, dims)
	for i, vec := range vectors {
		if len(vec) != dims {
			return nil, fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(vec), dims)
		}
		w := weights[i] / sum
		for d, v := range vec {
			acc[d] += float64(v) * w
		}
	}

	out := make([]float32, dims)
	for d, v := range acc {
		out[d] = float32(v)
	}
	return out, nil
}
