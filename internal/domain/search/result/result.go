package result

// Source identifies a retrieval path that contributed to a result.
type Source string

// Retrieval path constants.
const (
	SourceVector  Source = "vector"
	SourceKeyword Source = "keyword"
)

// Scores is the per-document score breakdown behind the combined score.
type Scores struct {
	MaxSimilarity  float64 `json:"max_similarity"`
	AvgSimilarity  float64 `json:"avg_similarity"`
	PositionScore  float64 `json:"position_score"`
	DiversityBonus float64 `json:"diversity_bonus"`
	KeywordScore   float64 `json:"keyword_score,omitempty"`
}

// Result is a single aggregated search hit for one document.
type Result struct {
	documentID string
	title      string
	excerpt    string
	combined   float64
	scores     Scores
	sources    []Source
	chunkCount int
	diversity  float64
}

// New creates a search result.
func New(
	documentID, title, excerpt string,
	combined float64,
	scores Scores,
	sources []Source,
	chunkCount int,
) Result {
	return Result{
		documentID: documentID,
		title:      title,
		excerpt:    excerpt,
		combined:   combined,
		scores:     scores,
		sources:    sources,
		chunkCount: chunkCount,
		diversity:  1.0,
	}
}

// DocumentID returns the parent document identifier.
func (r *Result) DocumentID() string { return r.documentID }

// Title returns the document title.
func (r *Result) Title() string { return r.title }

// Excerpt returns the best chunk excerpts joined with separators.
func (r *Result) Excerpt() string { return r.excerpt }

// Combined returns the fused relevance score.
func (r *Result) Combined() float64 { return r.combined }

// Scores returns the score breakdown.
func (r *Result) Scores() Scores { return r.scores }

// Sources returns which retrieval paths contributed.
func (r *Result) Sources() []Source { return r.sources }

// ChunkCount returns how many chunks of the document matched.
func (r *Result) ChunkCount() int { return r.chunkCount }

// Diversity returns the diversity score assigned during selection
// (1.0 unless the result was backfilled past the overlap constraint).
func (r *Result) Diversity() float64 { return r.diversity }

// WithCombined returns a copy with a replacement combined score.
func (r Result) WithCombined(score float64) Result {
	r.combined = score
	return r
}

// WithDiversity returns a copy with a replacement diversity score.
func (r Result) WithDiversity(score float64) Result {
	r.diversity = score
	return r
}

// HasSource reports whether the given retrieval path contributed.
func (r *Result) HasSource(s Source) bool {
	for _, src := range r.sources {
		if src == s {
			return true
		}
	}
	return false
}
