// Package chunk defines the sub-document unit of retrieval. A chunk belongs
// to exactly one document and is the unit of vector similarity search.
package chunk

// Chunk is a scored text fragment returned by a retrieval path. Similarity
// is query-specific and never persisted.
type Chunk struct {
	ID         string
	DocumentID string
	Title      string
	Text       string
	Position   int
	TokenCount int
	Similarity float64
}

// PositionWeight returns the rank weight of the chunk within its parent
// document. Earlier chunks weigh more, floored at 0.3 so tail chunks still
// contribute.
func (c Chunk) PositionWeight() float64 {
	w := 1.0 - 0.1*float64(c.Position)
	if w < 0.3 {
		return 0.3
	}
	return w
}
