package funnel

import (
	"strings"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// backfillDiversity marks results admitted past the overlap constraint.
const backfillDiversity = 0.5

// maxKeyTerms bounds the key-term set per result.
const maxKeyTerms = 10

// stopwords excluded from key-term extraction. Deliberately small; the
// >3-character rule already drops most German and English function words.
var stopwords = map[string]struct{}{
	"aber": {}, "alle": {}, "auch": {}, "beim": {}, "dann": {}, "dass": {},
	"dem": {}, "den": {}, "der": {}, "des": {}, "die": {}, "das": {},
	"durch": {}, "eine": {}, "einem": {}, "einen": {}, "einer": {},
	"für": {}, "haben": {}, "hat": {}, "ist": {}, "kann": {}, "mehr": {},
	"mit": {}, "nach": {}, "nicht": {}, "noch": {}, "oder": {}, "sich": {},
	"sind": {}, "sowie": {}, "über": {}, "und": {}, "von": {}, "werden": {},
	"wird": {}, "wurde": {}, "zum": {}, "zur": {},
	"also": {}, "and": {}, "are": {}, "been": {}, "from": {}, "have": {},
	"into": {}, "more": {}, "that": {}, "the": {}, "this": {}, "these": {},
	"was": {}, "were": {}, "which": {}, "with": {},
}

// keyTerms extracts up to maxKeyTerms lowercase content words longer than 3
// characters, ordered by first occurrence.
func keyTerms(text string) []string {
	words := strings.Fields(strings.ToLower(text))

	terms := make([]string, 0, maxKeyTerms)
	seen := make(map[string]struct{}, maxKeyTerms)
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if len([]rune(w)) <= 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
		if len(terms) == maxKeyTerms {
			break
		}
	}
	return terms
}

// overlapRatio is the share of the candidate's key terms already covered by
// the selected union. An empty term set never counts as overlapping.
func overlapRatio(terms []string, union map[string]struct{}) float64 {
	if len(terms) == 0 {
		return 0
	}
	covered := 0
	for _, t := range terms {
		if _, ok := union[t]; ok {
			covered++
		}
	}
	return float64(covered) / float64(len(terms))
}

// diversify greedily selects results so that no two share a title and no
// candidate's key terms overlap the selected union beyond overlapMax. When
// the diverse set runs short of limit, the best remaining candidates are
// backfilled with a lowered diversity score.
func diversify(results []result.Result, limit int, overlapMax float64) []result.Result {
	if limit <= 0 || len(results) == 0 {
		return nil
	}

	selected := make([]result.Result, 0, limit)
	var skipped []result.Result
	seenTitles := make(map[string]struct{})
	union := make(map[string]struct{})

	for _, r := range results {
		if len(selected) >= limit {
			break
		}

		title := strings.ToLower(strings.TrimSpace(r.Title()))
		terms := keyTerms(r.Excerpt())

		_, dupTitle := seenTitles[title]
		if (title != "" && dupTitle) || overlapRatio(terms, union) > overlapMax {
			skipped = append(skipped, r)
			continue
		}

		selected = append(selected, r)
		if title != "" {
			seenTitles[title] = struct{}{}
		}
		for _, t := range terms {
			union[t] = struct{}{}
		}
	}

	for _, r := range skipped {
		if len(selected) >= limit {
			break
		}
		selected = append(selected, r.WithDiversity(backfillDiversity))
	}

	return selected
}
