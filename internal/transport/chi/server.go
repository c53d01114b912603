// Package chi exposes the retrieval engine over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/usecase/funnel"
	healthuc "github.com/kailas-cloud/retrievex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/retrievex/internal/usecase/ingest"
	"github.com/kailas-cloud/retrievex/internal/usecase/multiquery"
	searchuc "github.com/kailas-cloud/retrievex/internal/usecase/search"
	usageuc "github.com/kailas-cloud/retrievex/internal/usecase/usage"
)

// maxSubQueries bounds one multi-query request.
const maxSubQueries = 10

type errorCode string

const (
	codeBadRequest   errorCode = "bad_request"
	codeValidation   errorCode = "validation_failed"
	codeUnauthorized errorCode = "unauthorized"
	codeNotFound     errorCode = "not_found"
	codeUpstream     errorCode = "upstream_error"
	codeInternal     errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// Server wires the engine's use cases to HTTP handlers.
type Server struct {
	engine *searchuc.Engine
	multi  *multiquery.Service
	ingest *ingestuc.Service
	health *healthuc.Service
	usage  *usageuc.Service
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	engine *searchuc.Engine,
	multi *multiquery.Service,
	ingest *ingestuc.Service,
	health *healthuc.Service,
	usage *usageuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine: engine,
		multi:  multi,
		ingest: ingest,
		health: health,
		usage:  usage,
		logger: logger,
	}
}

// Routes mounts every handler on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/search/multi-stage", s.handleMultiStage)
		r.Post("/search/multi-query", s.handleMultiQuery)
		r.Post("/documents", s.handleIngest)
		r.Post("/documents/batch", s.handleIngestBatch)
		r.Delete("/documents/{id}", s.handleDelete)
		r.Get("/usage", s.handleUsage)
	})
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

type searchRequest struct {
	Query       string   `json:"query"`
	Scope       string   `json:"scope"`
	Mode        string   `json:"mode,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// toDomain validates and converts the wire request.
func (req searchRequest) toDomain() (request.Request, error) {
	r, err := request.New(req.Query, req.Scope, mode.Mode(req.Mode), req.Limit, req.DocumentIDs)
	if err != nil {
		return request.Request{}, err
	}
	if req.Threshold != nil {
		return r.WithThreshold(*req.Threshold)
	}
	return r, nil
}

type searchResultItem struct {
	DocumentID     string          `json:"document_id"`
	Title          string          `json:"title,omitempty"`
	Excerpt        string          `json:"excerpt,omitempty"`
	Score          float64         `json:"score"`
	Scores         result.Scores   `json:"scores"`
	Sources        []result.Source `json:"search_sources"`
	ChunkCount     int             `json:"chunk_count"`
	DiversityScore float64         `json:"diversity_score"`
}

type searchResponse struct {
	Success     bool                `json:"success"`
	Results     []searchResultItem  `json:"results"`
	SearchType  mode.Type           `json:"search_type"`
	Message     string              `json:"message,omitempty"`
	Stats       searchuc.Stats      `json:"stats"`
	Performance *funnel.Performance `json:"performance,omitempty"`
}

// handleSearch handles POST /v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	domReq, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	resp := s.engine.Search(r.Context(), domReq)
	writeJSON(w, http.StatusOK, toSearchResponse(resp))
}

type multiStageRequest struct {
	searchRequest
	Stages *stageToggles `json:"enable_stages,omitempty"`
}

type stageToggles struct {
	ApproximateSearch  *bool `json:"approximate_search,omitempty"`
	SemanticFilter     *bool `json:"semantic_filter,omitempty"`
	ContextualRerank   *bool `json:"contextual_rerank,omitempty"`
	DiversityInjection *bool `json:"diversity_injection,omitempty"`
}

// toStages resolves the toggles against an all-enabled default.
func (t *stageToggles) toStages() funnel.Stages {
	stages := funnel.AllStages()
	if t == nil {
		return stages
	}
	if t.ApproximateSearch != nil {
		stages.ApproximateSearch = *t.ApproximateSearch
	}
	if t.SemanticFilter != nil {
		stages.SemanticFilter = *t.SemanticFilter
	}
	if t.ContextualRerank != nil {
		stages.ContextualRerank = *t.ContextualRerank
	}
	if t.DiversityInjection != nil {
		stages.DiversityInjection = *t.DiversityInjection
	}
	return stages
}

// handleMultiStage handles POST /v1/search/multi-stage.
func (s *Server) handleMultiStage(w http.ResponseWriter, r *http.Request) {
	var req multiStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	domReq, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	resp := s.engine.MultiStage(r.Context(), domReq, req.Stages.toStages())
	writeJSON(w, http.StatusOK, toSearchResponse(resp))
}

type multiQueryRequest struct {
	Queries []string `json:"queries"`
	Scope   string   `json:"scope"`
	Limit   int      `json:"limit,omitempty"`
}

type multiQueryResponse struct {
	Results             []searchResultItem `json:"results"`
	ContributingQueries []string           `json:"contributing_queries"`
	BeforeDedupCount    int                `json:"before_dedup_count"`
	AfterDedupCount     int                `json:"after_dedup_count"`
}

// handleMultiQuery handles POST /v1/search/multi-query.
func (s *Server) handleMultiQuery(w http.ResponseWriter, r *http.Request) {
	var req multiQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Scope == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "scope is required")
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "queries must not be empty")
		return
	}
	if len(req.Queries) > maxSubQueries {
		writeError(w, http.StatusBadRequest, codeValidation, "too many sub-queries")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = request.DefaultLimit
	}

	out := s.multi.Run(r.Context(), req.Queries, req.Scope, limit)
	writeJSON(w, http.StatusOK, multiQueryResponse{
		Results:             toResultItems(out.Results),
		ContributingQueries: out.ContributingQueries,
		BeforeDedupCount:    out.BeforeDedupCount,
		AfterDedupCount:     out.AfterDedupCount,
	})
}

type ingestRequest struct {
	Scope    string            `json:"scope"`
	Document ingestuc.Document `json:"document"`
}

// handleIngest handles POST /v1/documents.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	receipt, err := s.ingest.Ingest(r.Context(), req.Scope, req.Document)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

type batchIngestRequest struct {
	Scope     string              `json:"scope"`
	Documents []ingestuc.Document `json:"documents"`
}

type batchIngestResponse struct {
	Results []ingestuc.BatchItemResult `json:"results"`
}

// handleIngestBatch handles POST /v1/documents/batch. Failures are reported
// per item; the response status is 207 when the batch partially failed.
func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req batchIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Scope == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "scope is required")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "documents must not be empty")
		return
	}

	results := s.ingest.IngestBatch(r.Context(), req.Scope, req.Documents)

	status := http.StatusCreated
	for _, res := range results {
		if res.Status != ingestuc.BatchStatusOK {
			status = http.StatusMultiStatus
			break
		}
	}
	writeJSON(w, status, batchIngestResponse{Results: results})
}

type deleteResponse struct {
	DocumentID    string `json:"document_id"`
	ChunksRemoved int    `json:"chunks_removed"`
}

// handleDelete handles DELETE /v1/documents/{id}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := s.ingest.Delete(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{DocumentID: id, ChunksRemoved: removed})
}

// handleUsage handles GET /v1/usage. Defaults to the monthly window.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	period := usageuc.PeriodMonth
	if p := r.URL.Query().Get("period"); p != "" {
		period = usageuc.Period(p)
	}
	writeJSON(w, http.StatusOK, s.usage.GetReport(r.Context(), period))
}

// handleHealth handles GET /health. A fully degraded engine reports 503 so
// load balancers can rotate the instance out.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// handleDomainError maps sentinel errors to HTTP responses without leaking
// internal detail.
func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, codeUpstream, "rate limited")
	case errors.Is(err, domain.ErrEmbeddingProviderError),
		errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrInvalidEmbedding):
		writeError(w, http.StatusBadGateway, codeUpstream, "embedding provider error")
	case errors.Is(err, domain.ErrVectorStoreUnavailable),
		errors.Is(err, domain.ErrKeywordStoreUnavailable),
		errors.Is(err, domain.ErrAllPathsFailed):
		writeError(w, http.StatusServiceUnavailable, codeUpstream, "retrieval store unavailable")
	default:
		s.logger.Error("Unhandled domain error", zap.Error(err))
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	}
}

func toSearchResponse(resp searchuc.Response) searchResponse {
	return searchResponse{
		Success:     resp.Success,
		Results:     toResultItems(resp.Results),
		SearchType:  resp.SearchType,
		Message:     resp.Message,
		Stats:       resp.Stats,
		Performance: resp.Performance,
	}
}

func toResultItems(results []result.Result) []searchResultItem {
	items := make([]searchResultItem, len(results))
	for i := range results {
		r := &results[i]
		items[i] = searchResultItem{
			DocumentID:     r.DocumentID(),
			Title:          r.Title(),
			Excerpt:        r.Excerpt(),
			Score:          r.Combined(),
			Scores:         r.Scores(),
			Sources:        r.Sources(),
			ChunkCount:     r.ChunkCount(),
			DiversityScore: r.Diversity(),
		}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
