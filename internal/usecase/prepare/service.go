// Package prepare builds csn_<lang> BEIR datasets from CodeSearchNet examples.
package prepare

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/domain/dataset"
	"github.com/kailas-cloud/coderank-eval/internal/metrics"
	"github.com/kailas-cloud/coderank-eval/internal/repository/csn"
)

const stageName = "prepare"

// DocID is the corpus id of the i-th codebase entry.
func DocID(i int) string { return strconv.Itoa(i) + "_code" }

// QueryID is the id of the query whose code is DocID(i). The suffixes keep
// the two id spaces disjoint.
func QueryID(i int) string { return strconv.Itoa(i) + "_query" }

// Build assigns <i>_code ids in codebase order and <i>_query ids that share
// the index of their code. Every query gets one qrel with score 1.
func Build(name string, codebase, queries []csn.Example) (dataset.Dataset, error) {
	urlToID := make(map[string]int, len(codebase))
	corpus := make([]dataset.Document, 0, len(codebase))
	for i, ex := range codebase {
		urlToID[ex.URL] = i
		corpus = append(corpus, dataset.Document{
			ID:       DocID(i),
			Text:     ex.Code,
			Title:    ex.Title,
			Metadata: map[string]any{},
		})
	}

	qs := make([]dataset.Query, 0, len(queries))
	qrels := make(dataset.Qrels, len(queries))
	for _, ex := range queries {
		i, ok := urlToID[ex.URL]
		if !ok {
			return dataset.Dataset{}, fmt.Errorf("%s: %w", ex.URL, domain.ErrUnknownQueryURL)
		}
		qs = append(qs, dataset.Query{ID: QueryID(i), Text: ex.NL, Metadata: map[string]any{}})
		qrels.Add(QueryID(i), DocID(i), 1)
	}

	return dataset.Dataset{Name: name, Corpus: corpus, Queries: qs, Qrels: qrels}, nil
}

// Service writes one dataset per language.
type Service struct {
	source ExampleSource
	writer DatasetWriter
	outDir string
	split  string
	logger *zap.Logger
}

// New creates a prepare service writing under outDir.
func New(source ExampleSource, writer DatasetWriter, outDir, split string, logger *zap.Logger) *Service {
	if split == "" {
		split = "test"
	}
	return &Service{source: source, writer: writer, outDir: outDir, split: split, logger: logger}
}

// Run prepares every language and stops at the first failure.
func (s *Service) Run(ctx context.Context, languages []string) ([]string, error) {
	dirs := make([]string, 0, len(languages))
	for _, lang := range languages {
		if err := ctx.Err(); err != nil {
			return dirs, fmt.Errorf("prepare interrupted: %w", err)
		}
		dir, err := s.Prepare(ctx, lang)
		if err != nil {
			return dirs, fmt.Errorf("language %s: %w", lang, err)
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

// Prepare builds and saves <outDir>/csn_<lang>. It returns the dataset directory.
func (s *Service) Prepare(ctx context.Context, lang string) (dir string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStage(stageName, start, err) }()

	codebase, queries, err := s.source.Examples(ctx, lang)
	if err != nil {
		return "", fmt.Errorf("read examples: %w", err)
	}

	name := "csn_" + lang
	ds, err := Build(name, codebase, queries)
	if err != nil {
		return "", err
	}

	dir = filepath.Join(s.outDir, name)
	if err := s.writer.Save(dir, s.split, ds); err != nil {
		return "", fmt.Errorf("save dataset: %w", err)
	}

	metrics.SetDatasetSize(name, len(ds.Corpus), len(ds.Queries), ds.Qrels.Pairs())
	s.logger.Info("Prepared dataset",
		zap.String("dataset", name), zap.String("dir", dir),
		zap.Int("corpus", len(ds.Corpus)), zap.Int("queries", len(ds.Queries)),
		zap.Duration("took", time.Since(start)))
	return dir, nil
}
