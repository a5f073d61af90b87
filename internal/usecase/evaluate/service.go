// Package evaluate scores a reranker results file against qrels with MRR@k.
package evaluate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain/dataset"
	"github.com/kailas-cloud/coderank-eval/internal/metrics"
	"github.com/kailas-cloud/coderank-eval/internal/usecase/mrr"
)

const stageName = "evaluate"

// Loader reads qrels and reranker results files.
type Loader interface {
	LoadQrels(path string) (dataset.Qrels, error)
	LoadResults(path string) (*dataset.Results, error)
}

// ReportSaver persists an MRR@k report and returns where it was written.
type ReportSaver interface {
	SaveReport(datasetName string, report mrr.Report) (string, error)
}

// Service computes and stores MRR@k reports.
type Service struct {
	loader  Loader
	saver   ReportSaver
	cutoffs []int
	logger  *zap.Logger
}

// New creates an evaluation service. Empty cutoffs fall back to mrr.DefaultCutoffs.
func New(loader Loader, saver ReportSaver, cutoffs []int, logger *zap.Logger) *Service {
	if len(cutoffs) == 0 {
		cutoffs = mrr.DefaultCutoffs
	}
	return &Service{loader: loader, saver: saver, cutoffs: cutoffs, logger: logger}
}

// Evaluate loads both files, computes MRR@k for every cutoff and saves the report.
func (s *Service) Evaluate(_ context.Context, name, qrelsPath, resultsPath string) (report mrr.Report, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStage(stageName, start, err) }()

	qrels, err := s.loader.LoadQrels(qrelsPath)
	if err != nil {
		return mrr.Report{}, fmt.Errorf("load qrels: %w", err)
	}
	results, err := s.loader.LoadResults(resultsPath)
	if err != nil {
		return mrr.Report{}, fmt.Errorf("load results: %w", err)
	}

	report, err = mrr.AtCutoffs(qrels, results, s.cutoffs)
	if err != nil {
		return mrr.Report{}, fmt.Errorf("compute mrr: %w", err)
	}

	path, err := s.saver.SaveReport(name, report)
	if err != nil {
		return mrr.Report{}, fmt.Errorf("save report: %w", err)
	}

	log := s.logger.With(zap.String("dataset", name))
	for _, k := range report.Cutoffs() {
		v, _ := report.Get(k)
		metrics.SetMRR(name, k, v)
		log.Info(fmt.Sprintf("MRR@%d: %.4f", k, v))
	}
	log.Info("Saved evaluation", zap.String("path", path))

	return report, nil
}
