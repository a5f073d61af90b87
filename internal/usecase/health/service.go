package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component failed.
	Degraded Status = "degraded"
	// Unhealthy indicates evaluation reports cannot be served.
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

// Component names in Report.Checks.
const (
	ComponentReports   = "reports"
	ComponentCache     = "cache"
	ComponentEmbedding = "embedding"
)

// Report aggregates health check results.
type Report struct {
	Status  Status                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Reports int                    `json:"reports"`
	Checks  map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	reports   ReportLister
	cache     CachePinger
	embedding EmbeddingChecker
	version   string
}

// New creates a Service. cache and embedding can be nil.
func New(reports ReportLister, cache CachePinger, embedding EmbeddingChecker, version string) *Service {
	return &Service{reports: reports, cache: cache, embedding: embedding, version: version}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	names, err := s.reports.ListReports()
	if err != nil {
		checks[ComponentReports] = CheckError
		status = Unhealthy
	} else {
		checks[ComponentReports] = CheckOK
	}

	optional := func(name string, check func(context.Context) error) {
		if err := check(ctx); err != nil {
			checks[name] = CheckError
			if status == Healthy {
				status = Degraded
			}
			return
		}
		checks[name] = CheckOK
	}
	if s.cache != nil {
		optional(ComponentCache, s.cache.Ping)
	}
	if s.embedding != nil {
		optional(ComponentEmbedding, s.embedding.HealthCheck)
	}

	return Report{Status: status, Version: s.version, Reports: len(names), Checks: checks}
}
