package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 10
	MaxLimit       = 100
	// MaxDocumentFilter bounds the document-id allowlist size.
	MaxDocumentFilter = 256
)

// Request is a validated search query scoped to one tenant.
type Request struct {
	query       string
	scope       string
	searchMode  mode.Mode
	limit       int
	threshold   float64
	hasThresh   bool
	documentIDs []string
}

// New validates and normalizes search parameters.
// Defaults: mode=hybrid, limit=10. An empty query is allowed and resolves to
// an empty result downstream; an empty scope is rejected because every
// retrieval path filters by it.
func New(
	query, scope string,
	m mode.Mode,
	limit int,
	documentIDs []string,
) (Request, error) {
	if strings.TrimSpace(scope) == "" {
		return Request{}, fmt.Errorf("scope is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("invalid search mode: %q", m)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if len(documentIDs) > MaxDocumentFilter {
		return Request{}, fmt.Errorf("document filter too large (max %d ids)", MaxDocumentFilter)
	}

	return Request{
		query:       query,
		scope:       scope,
		searchMode:  m,
		limit:       limit,
		documentIDs: documentIDs,
	}, nil
}

// WithThreshold returns a copy carrying an explicit similarity threshold,
// overriding the auto-computed one.
func (r Request) WithThreshold(t float64) (Request, error) {
	if t < 0 || t > 1 {
		return Request{}, fmt.Errorf("threshold must be between 0 and 1")
	}
	r.threshold = t
	r.hasThresh = true
	return r, nil
}

// Query returns the raw query text.
func (r *Request) Query() string { return r.query }

// Scope returns the tenant/owner boundary for all retrieval and filtering.
func (r *Request) Scope() string { return r.scope }

// Mode returns the requested search strategy.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Limit returns the maximum results to return.
func (r *Request) Limit() int { return r.limit }

// Threshold returns the explicit similarity threshold and whether one was set.
func (r *Request) Threshold() (float64, bool) { return r.threshold, r.hasThresh }

// DocumentIDs returns the optional document-id allowlist.
func (r *Request) DocumentIDs() []string { return r.documentIDs }
