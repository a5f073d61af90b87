package prepare

import (
	"context"

	"github.com/kailas-cloud/coderank-eval/internal/domain/dataset"
	"github.com/kailas-cloud/coderank-eval/internal/repository/csn"
)

// ExampleSource yields raw CodeSearchNet examples of one language.
type ExampleSource interface {
	Examples(ctx context.Context, lang string) (codebase, queries []csn.Example, err error)
}

// DatasetWriter persists a dataset in BEIR layout.
type DatasetWriter interface {
	Save(dir, split string, ds dataset.Dataset) error
}
