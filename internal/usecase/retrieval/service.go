// Package retrieval evaluates a dense retriever on CSN datasets: embed
// queries and code, score every pair, rank and report MRR.
package retrieval

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/domain/score"
	"github.com/kailas-cloud/coderank-eval/internal/metrics"
	"github.com/kailas-cloud/coderank-eval/internal/repository/evalstore"
	"github.com/kailas-cloud/coderank-eval/internal/usecase/mrr"
	"github.com/kailas-cloud/coderank-eval/internal/usecase/ranking"
)

const (
	// DefaultBatchSize is the number of texts per embedding request.
	DefaultBatchSize = 64
	datasetPrefix    = "csn_"
	stageName        = "retrieve"
)

// Options configures a retrieval run.
type Options struct {
	DatasetDir string
	Split      string
	BatchSize  int
	TopN       int
	// Normalize L2-normalizes vectors so scores are cosine similarities.
	Normalize bool
}

// Result is the outcome of one language.
type Result struct {
	Language  string
	Dataset   string
	MRR       float64
	Evaluated int
	Queries   int
	Documents int
}

// Service runs retriever evaluation.
type Service struct {
	datasets  DatasetLoader
	summaries SummaryWriter
	queries   Embedder
	docs      Embedder
	opts      Options
	logger    *zap.Logger
}

// New creates a retrieval service. queries and docs may be the same embedder
// wrapped with different instructions.
func New(
	datasets DatasetLoader, summaries SummaryWriter,
	queries, docs Embedder, opts Options, logger *zap.Logger,
) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.TopN <= 0 {
		opts.TopN = mrr.DefaultTopN
	}
	if opts.Split == "" {
		opts.Split = "test"
	}
	return &Service{
		datasets:  datasets,
		summaries: summaries,
		queries:   queries,
		docs:      docs,
		opts:      opts,
		logger:    logger,
	}
}

// Run evaluates each language in order and stops at the first failure.
// Every finished language has already been appended to the summary file.
func (s *Service) Run(ctx context.Context, languages []string) ([]Result, error) {
	results := make([]Result, 0, len(languages))
	for _, lang := range languages {
		res, err := s.Evaluate(ctx, lang)
		if err != nil {
			return results, fmt.Errorf("language %s: %w", lang, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Evaluate embeds, ranks and scores <dataset_dir>/csn_<lang>.
func (s *Service) Evaluate(ctx context.Context, lang string) (res Result, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStage(stageName, start, err) }()

	name := datasetPrefix + lang
	ds, err := s.datasets.Load(filepath.Join(s.opts.DatasetDir, name), s.opts.Split)
	if err != nil {
		return Result{}, fmt.Errorf("load dataset: %w", err)
	}
	metrics.SetDatasetSize(name, len(ds.Corpus), len(ds.Queries), ds.Qrels.Pairs())

	log := s.logger.With(zap.String("dataset", name))
	log.Info("Embedding dataset",
		zap.Int("queries", len(ds.Queries)), zap.Int("documents", len(ds.Corpus)))

	nlVecs, err := s.embedBatches(ctx, s.queries, ds.QueryTexts())
	if err != nil {
		return Result{}, fmt.Errorf("embed queries: %w", err)
	}
	codeVecs, err := s.embedBatches(ctx, s.docs, ds.CorpusTexts())
	if err != nil {
		return Result{}, fmt.Errorf("embed code: %w", err)
	}

	scores, err := score.Product(nlVecs, codeVecs, s.opts.Normalize)
	if err != nil {
		return Result{}, fmt.Errorf("score matrix: %w", err)
	}

	log.Info("Computed score matrix",
		zap.String("nl_vecs_shape", vecShape(nlVecs)),
		zap.String("code_vecs_shape", vecShape(codeVecs)),
		zap.String("score_matrix_shape", scores.Shape()))

	rankings, err := ranking.Rank(scores, ds.QueryIDs(), ds.CorpusIDs(), s.opts.TopN)
	if err != nil {
		return Result{}, fmt.Errorf("rank: %w", err)
	}

	value, evaluated := mrr.OfRankings(ds.Qrels, rankings, s.opts.TopN)
	metrics.SetMRR(name, s.opts.TopN, value)

	if err := s.summaries.AppendSummary(evalstore.Summary{Language: lang, MRR: value}); err != nil {
		return Result{}, fmt.Errorf("append summary: %w", err)
	}

	log.Info("Retriever MRR", zap.String("language", lang), zap.Float64("mrr", value),
		zap.Int("evaluated", evaluated), zap.Duration("took", time.Since(start)))

	return Result{
		Language:  lang,
		Dataset:   name,
		MRR:       value,
		Evaluated: evaluated,
		Queries:   len(ds.Queries),
		Documents: len(ds.Corpus),
	}, nil
}

// embedBatches sends texts in chunks of BatchSize, one request at a time.
func (s *Service) embedBatches(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += s.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("embedding interrupted: %w", err)
		}
		hi := min(lo+s.opts.BatchSize, len(texts))

		res, err := domain.EmbedAll(ctx, e, texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", lo, hi, err)
		}
		out = append(out, res.Embeddings...)

		s.logger.Debug("Embedded batch", zap.Int("done", hi), zap.Int("total", len(texts)))
	}
	return out, nil
}

func vecShape(vecs [][]float32) string {
	dim := 0
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	return fmt.Sprintf("(%d, %d)", len(vecs), dim)
}
