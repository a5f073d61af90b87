package embedding

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
)

// BudgetAction defines behavior when the token budget is exhausted.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// Budget caps the embedding tokens one command run may consume.
// A zero limit is unlimited.
type Budget struct {
	mu       sync.Mutex
	used     int64
	limit    int64
	action   BudgetAction
	provider string
	warned   bool
	logger   *zap.Logger
}

// NewBudget creates a run budget.
func NewBudget(provider string, limit int64, action BudgetAction, logger *zap.Logger) *Budget {
	return &Budget{limit: limit, action: action, provider: provider, logger: logger}
}

// Check verifies the budget allows a new request.
func (b *Budget) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit == 0 || b.used < b.limit {
		return nil
	}

	if b.action == BudgetActionReject {
		return domain.ErrEmbeddingQuotaExceeded
	}

	if !b.warned {
		b.warned = true
		b.logger.Warn("Token budget exceeded",
			zap.String("provider", b.provider),
			zap.Int64("used", b.used),
			zap.Int64("limit", b.limit),
		)
	}
	return nil
}

// Record registers consumed tokens after a request.
func (b *Budget) Record(tokens int64) {
	b.mu.Lock()
	b.used += tokens
	b.mu.Unlock()
}

// Used returns tokens consumed so far.
func (b *Budget) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining returns tokens left (-1 if unlimited).
func (b *Budget) Remaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit == 0 {
		return -1
	}
	if remaining := b.limit - b.used; remaining > 0 {
		return remaining
	}
	return 0
}
