package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/metrics"
)

// DefaultMaxRequestTexts is the largest number of texts sent upstream in one request.
const DefaultMaxRequestTexts = 256

// BudgetChecker gates and accounts embedding requests.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	Remaining() int64
}

// Usage is what a run has spent on embeddings so far.
type Usage struct {
	Requests     int
	Texts        int
	PromptTokens int
	TotalTokens  int
	Elapsed      time.Duration
}

// Meter accounts the embedding requests of one command run. Every upstream
// request is checked against the budget before it is sent and recorded as
// soon as it returns, so large batches stop at the chunk that exhausts a
// rejecting budget.
type Meter struct {
	inner    domain.Embedder
	provider string
	model    string
	maxTexts int
	budget   BudgetChecker
	logger   *zap.Logger

	mu    sync.Mutex
	usage Usage
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithBudget enforces a token budget. A nil checker disables enforcement.
func WithBudget(b BudgetChecker) MeterOption {
	return func(m *Meter) { m.budget = b }
}

// WithMaxRequestTexts caps the texts per upstream request.
func WithMaxRequestTexts(n int) MeterOption {
	return func(m *Meter) {
		if n > 0 {
			m.maxTexts = n
		}
	}
}

// NewMeter wraps inner for one run.
func NewMeter(inner domain.Embedder, provider, model string, logger *zap.Logger, opts ...MeterOption) *Meter {
	m := &Meter{
		inner:    inner,
		provider: provider,
		model:    model,
		maxTexts: DefaultMaxRequestTexts,
		logger:   logger.With(zap.String("provider", provider), zap.String("model", model)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Embed sends one text as a single metered request.
func (m *Meter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var out domain.EmbeddingResult
	err := m.request(ctx, 1, func() (int, int, error) {
		res, err := m.inner.Embed(ctx, text)
		out = res
		return res.PromptTokens, res.TotalTokens, err
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return out, nil
}

// BatchEmbed splits texts into requests of at most the configured size and
// meters each one. Vectors keep the order of texts.
func (m *Meter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for lo := 0; lo < len(texts); lo += m.maxTexts {
		hi := min(lo+m.maxTexts, len(texts))

		var chunk domain.BatchEmbeddingResult
		err := m.request(ctx, hi-lo, func() (int, int, error) {
			res, err := domain.EmbedAll(ctx, m.inner, texts[lo:hi])
			chunk = res
			return res.PromptTokens, res.TotalTokens, err
		})
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("texts %d-%d: %w", lo, hi, err)
		}

		out.Embeddings = append(out.Embeddings, chunk.Embeddings...)
		out.PromptTokens += chunk.PromptTokens
		out.TotalTokens += chunk.TotalTokens
	}
	return out, nil
}

// Usage returns the totals accumulated by this meter.
func (m *Meter) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// request runs one upstream call between a budget check and its accounting.
func (m *Meter) request(ctx context.Context, texts int, call func() (prompt, total int, err error)) error {
	if m.budget != nil {
		if err := m.budget.Check(ctx); err != nil {
			m.logger.Error("Embedding budget exhausted",
				zap.Int("texts", texts),
				zap.Int("run_tokens", m.Usage().TotalTokens),
				zap.Error(err),
			)
			return fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()
	prompt, total, err := call()
	elapsed := time.Since(start)
	if err != nil {
		m.logger.Error("Embedding request failed",
			zap.Int("texts", texts),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return fmt.Errorf("embed: %w", err)
	}

	m.record(texts, prompt, total, elapsed)
	m.logger.Debug("Embedding request completed",
		zap.Int("texts", texts),
		zap.Duration("duration", elapsed),
		zap.Int("total_tokens", total),
	)
	return nil
}

func (m *Meter) record(texts, prompt, total int, elapsed time.Duration) {
	m.mu.Lock()
	m.usage.Requests++
	m.usage.Texts += texts
	m.usage.PromptTokens += prompt
	m.usage.TotalTokens += total
	m.usage.Elapsed += elapsed
	m.mu.Unlock()

	if m.budget == nil || total <= 0 {
		return
	}
	m.budget.Record(int64(total))
	metrics.EmbeddingBudgetTokensRemaining.WithLabelValues(m.provider).Set(float64(m.budget.Remaining()))
}
