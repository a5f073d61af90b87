package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/config"
	"github.com/kailas-cloud/coderank-eval/internal/metrics"
	"github.com/kailas-cloud/coderank-eval/internal/repository/beir"
	"github.com/kailas-cloud/coderank-eval/internal/repository/csn"
	"github.com/kailas-cloud/coderank-eval/internal/repository/evalstore"
	chiTransport "github.com/kailas-cloud/coderank-eval/internal/transport/chi"
	"github.com/kailas-cloud/coderank-eval/internal/transport/huggingface"
	"github.com/kailas-cloud/coderank-eval/internal/transport/subprocess"
	evaluateuc "github.com/kailas-cloud/coderank-eval/internal/usecase/evaluate"
	healthuc "github.com/kailas-cloud/coderank-eval/internal/usecase/health"
	prepareuc "github.com/kailas-cloud/coderank-eval/internal/usecase/prepare"
	rerankuc "github.com/kailas-cloud/coderank-eval/internal/usecase/rerank"
	retrievaluc "github.com/kailas-cloud/coderank-eval/internal/usecase/retrieval"
	"github.com/kailas-cloud/coderank-eval/internal/version"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"prepare":  runPrepare,
	"retrieve": runRetrieve,
	"rerank":   runRerank,
	"evaluate": runEvaluate,
	"serve":    runServe,
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(fs.Output(), "unexpected arguments: %v\n", fs.Args())
		return errUsage
	}
	return nil
}

func runPrepare(ctx context.Context, a *app, args []string) error {
	cfg := a.cfg
	fs := a.flagSet("prepare")
	source := fs.String("source", cfg.Source.Kind, "graphcodebert or huggingface")
	csnDir := fs.String("csn-dir", cfg.Source.CSNDir, "extracted GraphCodeBERT CSN directory")
	cacheDir := fs.String("cache-dir", cfg.Source.CacheDir, "HuggingFace parquet download directory")
	maxFiles := fs.Int("max-files", 0, "parquet shards per language, 0 = all")
	outDir := fs.String("output", cfg.Paths.DatasetDir, "directory to write csn_<lang> datasets into")
	languages := fs.String("languages", strings.Join(cfg.Datasets.Languages, ","), "comma-separated languages")
	if err := parse(fs, args); err != nil {
		return err
	}

	var src prepareuc.ExampleSource
	switch *source {
	case config.SourceGraphCodeBERT:
		src = csn.NewGraphCodeBERT(*csnDir, a.logger)
	case config.SourceHuggingFace:
		src = csn.NewParquet(huggingface.New(huggingface.Config{
			Dataset:       cfg.Source.HFDataset,
			Split:         cfg.Datasets.Split,
			Token:         cfg.Source.HFToken,
			DataDir:       *cacheDir,
			MaxFiles:      *maxFiles,
			Logger:        a.logger,
			DownloadBytes: metrics.DownloadBytesTotal,
		}), a.logger)
	default:
		return fmt.Errorf("unknown source %q", *source)
	}

	defer a.startMetrics()()

	svc := prepareuc.New(src, beir.New(a.logger), *outDir, cfg.Datasets.Split, a.logger)
	dirs, err := svc.Run(ctx, splitList(*languages))
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	a.logger.Info("Prepare finished", zap.Strings("datasets", dirs))
	return nil
}

func runRetrieve(ctx context.Context, a *app, args []string) error {
	cfg := a.cfg
	fs := a.flagSet("retrieve")
	datasetDir := fs.String("dataset-dir", cfg.Paths.DatasetDir, "directory holding csn_<lang> datasets")
	resultsDir := fs.String("results-dir", cfg.Paths.ResultsDir, "directory for overall_results.jsonl")
	languages := fs.String("languages", strings.Join(cfg.Datasets.Languages, ","), "comma-separated languages")
	topN := fs.Int("top-n", cfg.Retrieval.TopN, "ranks considered for MRR")
	batchSize := fs.Int("batch-size", cfg.Embedding.BatchSize, "texts per embedding request")
	if err := parse(fs, args); err != nil {
		return err
	}

	emb, err := a.buildEmbedders(ctx)
	if err != nil {
		return err
	}
	defer emb.Close()
	defer a.startMetrics()()

	svc := retrievaluc.New(
		beir.New(a.logger), evalstore.New(cfg.Paths.EvalDir, *resultsDir),
		emb.query, emb.doc,
		retrievaluc.Options{
			DatasetDir: *datasetDir,
			Split:      cfg.Datasets.Split,
			BatchSize:  *batchSize,
			TopN:       *topN,
			Normalize:  cfg.Embedding.Normalize,
		},
		a.logger,
	)
	results, err := svc.Run(ctx, splitList(*languages))
	usage := emb.meter.Usage()
	a.logger.Info("Embedding usage",
		zap.Int("requests", usage.Requests),
		zap.Int("texts", usage.Texts),
		zap.Int("total_tokens", usage.TotalTokens),
		zap.Duration("elapsed", usage.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	for _, r := range results {
		a.logger.Info("Result", zap.String("language", r.Language), zap.Float64("mrr", r.MRR))
	}
	return nil
}

func runRerank(ctx context.Context, a *app, args []string) error {
	cfg := a.cfg
	fs := a.flagSet("rerank")
	datasetDir := fs.String("dataset-dir", cfg.Paths.DatasetDir, "directory holding code_datasets and swe-bench datasets")
	outputDir := fs.String("output-dir", cfg.Paths.OutputDir, "reranker output directory")
	evalDir := fs.String("eval-dir", cfg.Paths.EvalDir, "directory for eval_results")
	datasets := fs.String("datasets", strings.Join(cfg.Datasets.Rerank, ","), `csn_* names, or "all"`)
	rerankerDir := fs.String("reranker-dir", cfg.Reranker.Dir, "llm-reranker checkout")
	python := fs.String("python", cfg.Reranker.Python, "python interpreter")
	model := fs.String("model", cfg.Reranker.Model, "reranker model")
	topK := fs.Int("top-k", cfg.Reranker.TopK, "candidates reranked per query")
	window := fs.Int("window-size", cfg.Reranker.WindowSize, "sliding window size")
	step := fs.Int("step-size", cfg.Reranker.StepSize, "sliding window step")
	cutoffs := fs.String("cutoffs", joinInts(cfg.Evaluation.Cutoffs), "comma-separated MRR cutoffs")
	if err := parse(fs, args); err != nil {
		return err
	}
	ks, err := parseCutoffs(*cutoffs)
	if err != nil {
		return err
	}
	if *step > *window {
		return fmt.Errorf("step-size (%d) must not exceed window-size (%d)", *step, *window)
	}

	defer a.startMetrics()()

	store := beir.New(a.logger)
	evaluator := evaluateuc.New(store, evalstore.New(*evalDir, cfg.Paths.ResultsDir), ks, a.logger)
	svc := rerankuc.New(subprocess.New(a.logger), evaluator, rerankuc.Options{
		DatasetDir:  *datasetDir,
		OutputDir:   *outputDir,
		RerankerDir: *rerankerDir,
		Python:      *python,
		Model:       *model,
		TopK:        *topK,
		WindowSize:  *window,
		StepSize:    *step,
		Datasets:    splitList(*datasets),
	}, a.logger)

	outcomes, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("rerank: %w", err)
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	a.logger.Info("Rerank finished",
		zap.Int("datasets", len(outcomes)), zap.Int("succeeded", len(outcomes)-failed), zap.Int("failed", failed))
	return nil
}

func runEvaluate(ctx context.Context, a *app, args []string) error {
	cfg := a.cfg
	fs := a.flagSet("evaluate")
	name := fs.String("name", "", "dataset name used for <name>_eval.json (required)")
	qrels := fs.String("qrels", "", "qrels TSV path (required)")
	results := fs.String("results", "", "results JSON path (required)")
	evalDir := fs.String("eval-dir", cfg.Paths.EvalDir, "directory for eval_results")
	cutoffs := fs.String("cutoffs", joinInts(cfg.Evaluation.Cutoffs), "comma-separated MRR cutoffs")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *name == "" || *qrels == "" || *results == "" {
		_, _ = fmt.Fprintln(fs.Output(), "-name, -qrels and -results are required")
		fs.Usage()
		return errUsage
	}
	ks, err := parseCutoffs(*cutoffs)
	if err != nil {
		return err
	}

	svc := evaluateuc.New(beir.New(a.logger), evalstore.New(*evalDir, cfg.Paths.ResultsDir), ks, a.logger)
	if _, err := svc.Evaluate(ctx, *name, *qrels, *results); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, a *app, args []string) error {
	cfg := a.cfg
	fs := a.flagSet("serve")
	port := fs.Int("port", cfg.HTTP.Port, "HTTP port")
	evalDir := fs.String("eval-dir", cfg.Paths.EvalDir, "directory holding eval_results")
	resultsDir := fs.String("results-dir", cfg.Paths.ResultsDir, "directory holding overall_results.jsonl")
	if err := parse(fs, args); err != nil {
		return err
	}

	metrics.RegisterHTTPMetrics()
	store := evalstore.New(*evalDir, *resultsDir)

	// Typed nils must not reach health.New.
	var cache healthuc.CachePinger
	var embedding healthuc.EmbeddingChecker
	if cfg.Cache.Enabled() {
		c, err := a.openCache(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		cache = c
	}
	if cfg.Embedding.APIKey != "" {
		emb, err := a.buildEmbedders(ctx)
		if err != nil {
			return err
		}
		defer emb.Close()
		embedding = emb.health
	}
	healthSvc := healthuc.New(store, cache, embedding, version.String())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           chiTransport.NewServer(store, healthSvc, cfg.HTTP.APIKeys, a.logger).Handler(),
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("Server stopped gracefully")
	return nil
}

// splitList splits a comma-separated flag, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseCutoffs(s string) ([]int, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, errors.New("at least one cutoff is required")
	}
	ks := make([]int, 0, len(parts))
	for _, p := range parts {
		k, err := strconv.Atoi(p)
		if err != nil || k <= 0 {
			return nil, fmt.Errorf("invalid cutoff %q", p)
		}
		ks = append(ks, k)
	}
	return ks, nil
}

func joinInts(ks []int) string {
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = strconv.Itoa(k)
	}
	return strings.Join(parts, ",")
}
