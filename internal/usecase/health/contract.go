package health

import "context"

// ReportLister checks that evaluation reports can be read.
type ReportLister interface {
	ListReports() ([]string, error)
}

// CachePinger checks embedding cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
