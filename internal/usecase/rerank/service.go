// Package rerank drives the external LLM reranker over retriever outputs:
// convert results, rerank, then evaluate MRR@k, one dataset at a time.
package rerank

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/metrics"
	"github.com/kailas-cloud/coderank-eval/internal/usecase/mrr"
)

// Stages of one dataset run.
const (
	StageConvert  = "convert"
	StageRerank   = "rerank"
	StageEvaluate = "evaluate"
)

// Options configures the reranker invocation.
type Options struct {
	DatasetDir  string
	OutputDir   string
	RerankerDir string
	Python      string
	Model       string
	TopK        int
	WindowSize  int
	StepSize    int
	// Datasets selects csn_* names under code_datasets; ["all"] takes every one.
	Datasets []string
}

// Outcome is the result of one dataset. Err is set when a stage failed,
// and Stage names it.
type Outcome struct {
	Dataset string
	Report  mrr.Report
	Stage   string
	Err     error
}

// Service orchestrates convert, rerank and evaluate.
type Service struct {
	runner    Runner
	evaluator Evaluator
	opts      Options
	logger    *zap.Logger
}

// New creates a rerank orchestrator.
func New(runner Runner, evaluator Evaluator, opts Options, logger *zap.Logger) *Service {
	return &Service{runner: runner, evaluator: evaluator, opts: opts, logger: logger}
}

// Run processes every discovered dataset. A failure in one dataset is
// logged and recorded in its Outcome, and the next dataset still runs.
// Only discovery errors and cancellation abort the run.
func (s *Service) Run(ctx context.Context) ([]Outcome, error) {
	if err := os.MkdirAll(s.opts.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir output dir: %w", err)
	}

	targets, err := Discover(s.opts.DatasetDir, s.opts.Datasets)
	if err != nil {
		return nil, fmt.Errorf("discover datasets: %w", err)
	}
	s.logger.Info("Discovered datasets", zap.Int("count", len(targets)))

	outcomes := make([]Outcome, 0, len(targets))
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return outcomes, fmt.Errorf("rerank interrupted: %w", err)
		}
		out := s.runTarget(ctx, t)
		if out.Err != nil {
			s.logger.Error("Dataset failed",
				zap.String("dataset", t.Name), zap.String("stage", out.Stage), zap.Error(out.Err))
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (s *Service) runTarget(ctx context.Context, t Target) Outcome {
	log := s.logger.With(zap.String("dataset", t.Name))

	log.Info("Converting results")
	if err := s.stage(StageConvert, func() error {
		return s.runner.Run(ctx, s.opts.Python, s.ConvertArgs(t)...)
	}); err != nil {
		return Outcome{Dataset: t.Name, Stage: StageConvert, Err: err}
	}

	log.Info("Running reranker")
	if err := s.stage(StageRerank, func() error {
		return s.runner.Run(ctx, s.opts.Python, s.RerankArgs(t)...)
	}); err != nil {
		return Outcome{Dataset: t.Name, Stage: StageRerank, Err: err}
	}

	log.Info("Evaluating results")
	report, err := s.evaluator.Evaluate(ctx, t.Name, t.QrelsPath(), s.ResultsPath(t.Name))
	if err != nil {
		return Outcome{Dataset: t.Name, Stage: StageEvaluate, Err: err}
	}
	return Outcome{Dataset: t.Name, Report: report}
}

func (s *Service) stage(name string, fn func() error) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStage(name, start, err) }()
	return fn()
}

// ResultsPath is where the reranker writes its output for a dataset.
func (s *Service) ResultsPath(name string) string {
	return filepath.Join(s.opts.OutputDir, codeDatasetsDir, name,
		fmt.Sprintf("rerank_%d_llm_gen_num.json", s.opts.TopK))
}

func (s *Service) script(name string) string {
	return filepath.Join(s.opts.RerankerDir, "scripts", name)
}

// ConvertArgs builds the convert_results.py argument list.
func (s *Service) ConvertArgs(t Target) []string {
	return []string{
		s.script("convert_results.py"),
		"--dataset", t.Name,
		"--output_dir", s.opts.OutputDir,
		"--data_type", dataType,
		"--data_dir", t.DataDir,
		"--top_k", strconv.Itoa(s.opts.TopK),
		"--rerank_type", rerankType,
	}
}

// RerankArgs builds the rerank_llm.py argument list.
func (s *Service) RerankArgs(t Target) []string {
	return []string{
		s.script("rerank_llm.py"),
		"--model", s.opts.Model,
		"--dataset", t.Name,
		"--output_dir", s.opts.OutputDir,
		"--data_type", dataType,
		"--data_dir", t.DataDir,
		"--use_logits", "0",
		"--use_alpha", "0",
		"--llm_top_k", strconv.Itoa(s.opts.TopK),
		"--window_size", strconv.Itoa(s.opts.WindowSize),
		"--step_size", strconv.Itoa(s.opts.StepSize),
		"--do_batched", "1",
		"--rerank_type", rerankType,
		"--code_prompt_type", t.PromptType,
	}
}
