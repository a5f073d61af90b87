package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/config"
	dbRedis "github.com/kailas-cloud/coderank-eval/internal/db/redis"
	"github.com/kailas-cloud/coderank-eval/internal/domain"
	logpkg "github.com/kailas-cloud/coderank-eval/internal/logger"
	"github.com/kailas-cloud/coderank-eval/internal/metrics"
	"github.com/kailas-cloud/coderank-eval/internal/repository/embcache"
	openaiEmb "github.com/kailas-cloud/coderank-eval/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/coderank-eval/internal/usecase/embedding"
	"github.com/kailas-cloud/coderank-eval/internal/version"
)

const usage = `Usage: coderank-eval <command> [flags]

Commands:
  prepare    build csn_<lang> BEIR datasets from CodeSearchNet
  retrieve   evaluate the dense retriever (MRR, top-N ranking)
  rerank     run the external reranker and evaluate MRR@k
  evaluate   compute MRR@k for a qrels + results pair
  serve      HTTP API over written evaluation results
  version    print build information

Configuration is read from config/$ENV.yaml (ENV defaults to local).
Run "coderank-eval <command> -h" for command flags.
`

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	command, rest := args[0], args[1:]

	switch command {
	case "version", "-version", "--version":
		_, _ = fmt.Fprintln(stdout, "coderank-eval", version.String())
		return 0
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	}

	cmd, ok := commands[command]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "failed to load config:", err)
		return 1
	}

	base, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "failed to create logger:", err)
		return 1
	}
	defer func() { _ = base.Sync() }()
	logger := logpkg.ForCommand(base, command)

	logger.Info("Starting coderank-eval",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterEvalMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, env: env, logger: logger, stderr: stderr}
	if err := cmd(ctx, a, rest); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		logger.Error("Command failed", zap.Error(err))
		return 1
	}
	return 0
}

// app carries what every command needs.
type app struct {
	cfg    config.Config
	env    string
	logger *zap.Logger
	stderr io.Writer
}

// startMetrics exposes /metrics for a batch command when metrics.port is set.
// The returned func shuts it down.
func (a *app) startMetrics() func() {
	srv := metrics.Serve(a.cfg.Metrics.Port, a.logger)
	if srv == nil {
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// embedders holds the decorator chains for queries and code.
type embedders struct {
	query  domain.Embedder
	doc    domain.Embedder
	meter  *embeddinguc.Meter
	health *openaiEmb.Embedder
	cache  *dbRedis.Store
}

func (e *embedders) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// buildEmbedders assembles the chain: OpenAI -> Cached -> Meter -> Instruction.
func (a *app) buildEmbedders(ctx context.Context) (*embedders, error) {
	ec := a.cfg.Embedding

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		Provider:   ec.Provider,
		Logger:     a.logger,
	})
	out := &embedders{health: base}

	var embedder domain.Embedder = base
	if a.cfg.Cache.Enabled() {
		store, err := a.openCache(ctx)
		if err != nil {
			return nil, err
		}
		out.cache = store
		embedder = embcache.New(base, store, ec.Model, a.logger,
			embcache.WithTTL(a.cfg.Cache.TTL()),
			embcache.WithCacheCounter(metrics.EmbeddingCacheTotal),
		)
	}

	// A nil *Budget wrapped in the interface would not compare equal to nil.
	var budget embeddinguc.BudgetChecker
	if ec.TokenBudget > 0 {
		budget = embeddinguc.NewBudget(ec.Provider, ec.TokenBudget, embeddinguc.BudgetAction(ec.BudgetAction), a.logger)
	}
	out.meter = embeddinguc.NewMeter(embedder, ec.Provider, ec.Model, a.logger, embeddinguc.WithBudget(budget))
	embedder = out.meter

	// Instruction is outermost so the cache key includes it.
	out.query = withInstruction(embedder, ec.QueryInstruction)
	out.doc = withInstruction(embedder, ec.DocumentInstruction)

	a.logger.Info("Embedders created",
		zap.String("provider", ec.Provider),
		zap.String("model", ec.Model),
		zap.Int("dimensions", ec.Dimensions),
		zap.Bool("cache", out.cache != nil),
		zap.Int64("token_budget", ec.TokenBudget),
	)
	return out, nil
}

func withInstruction(e domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return e
	}
	return domain.NewInstructionEmbedder(e, instruction)
}

// openCache connects to the embedding cache and waits until it answers.
func (a *app) openCache(ctx context.Context) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    a.cfg.Cache.Addrs,
		Password: a.cfg.Cache.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache store: %w", err)
	}
	timeout := time.Duration(a.cfg.Cache.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("cache not ready: %w", err)
	}
	a.logger.Info("Connected to embedding cache", zap.Strings("addrs", a.cfg.Cache.Addrs))
	return store, nil
}
