package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure; the engine can still serve
	// results through its fallback paths.
	Degraded Status = "degraded"
	// Unhealthy indicates both retrieval paths are down.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	vectors   VectorStorePinger
	keywords  KeywordIndexChecker
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(vectors VectorStorePinger, keywords KeywordIndexChecker, embedding EmbeddingChecker) *Service {
	return &Service{vectors: vectors, keywords: keywords, embedding: embedding}
}

// Check runs health checks against all components. The overall status
// mirrors the engine's degradation model: one failing retrieval path is
// degraded, both failing is unhealthy.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.vectors.Ping(ctx); err != nil {
		checks["vector_store"] = CheckError
	} else {
		checks["vector_store"] = CheckOK
	}

	if _, err := s.keywords.DocCount(); err != nil {
		checks["keyword_index"] = CheckError
	} else {
		checks["keyword_index"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks["vector_store"] == CheckError && checks["keyword_index"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
