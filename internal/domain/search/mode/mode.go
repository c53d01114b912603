package mode

// Mode is the requested search strategy.
type Mode string

// Search mode constants.
const (
	// Hybrid combines vector and keyword search.
	Hybrid  Mode = "hybrid"
	Vector  Mode = "vector"
	Keyword Mode = "keyword"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Vector || m == Keyword
}

// Type labels the strategy that actually produced a response, which may
// differ from the requested mode when a retrieval path degraded.
type Type string

// Search type constants.
const (
	TypeVector          Type = "vector"
	TypeHybrid          Type = "hybrid"
	TypeKeywordFallback Type = "keyword_fallback"
	TypeMultiStage      Type = "multi_stage"
	TypeErrorFallback   Type = "error_fallback"
)
