package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
)

func TestBudget_Unlimited(t *testing.T) {
	b := NewBudget("p", 0, BudgetActionReject, zap.NewNop())
	b.Record(1 << 40)

	if err := b.Check(context.Background()); err != nil {
		t.Fatalf("unlimited budget should never reject: %v", err)
	}
	if b.Remaining() != -1 {
		t.Errorf("expected -1 remaining, got %d", b.Remaining())
	}
}

func TestBudget_RejectAtLimit(t *testing.T) {
	b := NewBudget("p", 100, BudgetActionReject, zap.NewNop())

	b.Record(99)
	if err := b.Check(context.Background()); err != nil {
		t.Fatalf("below limit: %v", err)
	}
	if b.Remaining() != 1 {
		t.Errorf("expected 1 remaining, got %d", b.Remaining())
	}

	b.Record(1)
	if err := b.Check(context.Background()); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
}

func TestBudget_RemainingNeverNegative(t *testing.T) {
	b := NewBudget("p", 10, BudgetActionReject, zap.NewNop())
	b.Record(50)

	if b.Remaining() != 0 {
		t.Errorf("expected 0 remaining, got %d", b.Remaining())
	}
	if b.Used() != 50 {
		t.Errorf("expected 50 used, got %d", b.Used())
	}
}

func TestBudget_WarnLogsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := NewBudget("p", 10, BudgetActionWarn, zap.New(core))
	b.Record(10)

	for range 3 {
		if err := b.Check(context.Background()); err != nil {
			t.Fatalf("warn action must not reject: %v", err)
		}
	}
	if logs.FilterMessage("Token budget exceeded").Len() != 1 {
		t.Errorf("expected one warning, got %d", logs.Len())
	}
}
