package expand

import "strings"

// Threshold bounds. Every computed threshold is clamped into this range.
const (
	ThresholdMin = 0.2
	ThresholdMax = 0.8

	defaultBaseThreshold = 0.3
)

// Threshold derives a similarity cutoff from the query shape using the
// default base. Pure function of the query text.
func Threshold(query string) float64 {
	return ThresholdFrom(query, defaultBaseThreshold)
}

// ThresholdFrom derives a similarity cutoff starting from the given base.
//
// Short queries are held to a stricter cutoff because a one- or two-word
// query gives the embedding little to work with; long queries are specific
// enough to be matched more permissively. Queries touching the corpus's
// topical vocabulary also get a small permissive adjustment.
func ThresholdFrom(query string, base float64) float64 {
	words := strings.Fields(strings.ToLower(query))

	t := base
	switch {
	case len(words) == 2:
		t += 0.05
	case len(words) >= 5:
		t -= 0.10
	}

	for _, w := range words {
		if _, ok := domainVocabulary[strings.Trim(w, ".,;:!?\"'()")]; ok {
			t -= 0.05
			break
		}
	}

	if t < ThresholdMin {
		return ThresholdMin
	}
	if t > ThresholdMax {
		return ThresholdMax
	}
	return t
}
