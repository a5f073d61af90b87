package rerank

import (
	"context"

	"github.com/kailas-cloud/coderank-eval/internal/usecase/mrr"
)

// Runner executes an external command and waits for it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Evaluator scores a results file against qrels and persists the report.
type Evaluator interface {
	Evaluate(ctx context.Context, name, qrelsPath, resultsPath string) (mrr.Report, error)
}
