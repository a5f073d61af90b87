package retrieval

import (
	"context"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/domain/dataset"
	"github.com/kailas-cloud/coderank-eval/internal/repository/evalstore"
)

// DatasetLoader reads a BEIR dataset split.
type DatasetLoader interface {
	Load(dir, split string) (dataset.Dataset, error)
}

// SummaryWriter appends one retriever result line per language.
type SummaryWriter interface {
	AppendSummary(sum evalstore.Summary) error
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
