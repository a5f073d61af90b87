// Package chi serves written evaluation results over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	logpkg "github.com/kailas-cloud/coderank-eval/internal/logger"
	"github.com/kailas-cloud/coderank-eval/internal/metrics"
	"github.com/kailas-cloud/coderank-eval/internal/repository/evalstore"
	"github.com/kailas-cloud/coderank-eval/internal/usecase/health"
	"github.com/kailas-cloud/coderank-eval/internal/usecase/mrr"
)

// Error codes in ErrorResponse.
const (
	codeNotFound     = "evaluation_not_found"
	codeUnauthorized = "unauthorized"
	codeInternal     = "internal_error"
)

// ReportStore reads evaluation output.
type ReportStore interface {
	ListReports() ([]string, error)
	LoadReport(datasetName string) (mrr.Report, error)
	Summaries() ([]evalstore.Summary, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Evaluation is one dataset's MRR@k report.
type Evaluation struct {
	Dataset string     `json:"dataset"`
	MRR     mrr.Report `json:"mrr"`
}

// EvaluationList is the body of GET /v1/evaluations.
type EvaluationList struct {
	Items []Evaluation `json:"items"`
	Total int          `json:"total"`
}

// SummaryList is the body of GET /v1/summaries.
type SummaryList struct {
	Items []evalstore.Summary `json:"items"`
	Total int                 `json:"total"`
}

// Server is the read-only results API.
type Server struct {
	reports ReportStore
	health  HealthChecker
	apiKeys []string
	logger  *zap.Logger
}

// NewServer creates an HTTP API server. apiKeys may be empty.
func NewServer(reports ReportStore, healthChecker HealthChecker, apiKeys []string, logger *zap.Logger) *Server {
	return &Server{reports: reports, health: healthChecker, apiKeys: apiKeys, logger: logger}
}

// Handler builds the chi router with the middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(s.apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/evaluations", s.ListEvaluations)
		r.Get("/evaluations/{dataset}", s.GetEvaluation)
		r.Get("/summaries", s.ListSummaries)
	})
	return r
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == health.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// ListEvaluations handles GET /v1/evaluations.
func (s *Server) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	names, err := s.reports.ListReports()
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	items := make([]Evaluation, 0, len(names))
	for _, name := range names {
		report, err := s.reports.LoadReport(name)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		items = append(items, Evaluation{Dataset: name, MRR: report})
	}

	writeJSON(w, http.StatusOK, EvaluationList{Items: items, Total: len(items)})
}

// GetEvaluation handles GET /v1/evaluations/{dataset}.
func (s *Server) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dataset")
	report, err := s.reports.LoadReport(name)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Evaluation{Dataset: name, MRR: report})
}

// ListSummaries handles GET /v1/summaries.
func (s *Server) ListSummaries(w http.ResponseWriter, r *http.Request) {
	sums, err := s.reports.Summaries()
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if sums == nil {
		sums = []evalstore.Summary{}
	}
	writeJSON(w, http.StatusOK, SummaryList{Items: sums, Total: len(sums)})
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.RequestLogger(r.Context(), s.logger)
	if errors.Is(err, domain.ErrEvaluationNotFound) {
		log.Warn("evaluation not found", zap.Error(err))
		writeError(w, http.StatusNotFound, codeNotFound, domain.ErrEvaluationNotFound.Error())
		return
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
