package evaluate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/repository/beir"
	"github.com/kailas-cloud/coderank-eval/internal/repository/evalstore"
	"github.com/kailas-cloud/coderank-eval/internal/usecase/mrr"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func setup(t *testing.T) (svc *Service, store *evalstore.Store, qrelsPath, resultsPath string, logs *observer.ObservedLogs) {
	t.Helper()
	dir := t.TempDir()
	qrelsPath = filepath.Join(dir, "csn_ruby", "qrels", "test.tsv")
	resultsPath = filepath.Join(dir, "out", "rerank_100_llm_gen_num.json")
	writeFile(t, qrelsPath, "query-id\tcorpus-id\tscore\nq1\td1\t1\n")
	writeFile(t, resultsPath, `{"q1": {"d2": 0.9, "d1": 0.8, "d3": 0.1}}`)

	core, logs := observer.New(zapcore.InfoLevel)
	store = evalstore.New(filepath.Join(dir, "eval"), filepath.Join(dir, "results"))
	svc = New(beir.New(zap.NewNop()), store, nil, zap.New(core))
	return svc, store, qrelsPath, resultsPath, logs
}

func TestEvaluate_WritesReport(t *testing.T) {
	svc, store, qrelsPath, resultsPath, logs := setup(t)

	report, err := svc.Evaluate(context.Background(), "csn_ruby", qrelsPath, resultsPath)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if v, _ := report.Get(1); v != 0 {
		t.Errorf("MRR@1 = %v, want 0", v)
	}
	if v, _ := report.Get(3); v != 0.5 {
		t.Errorf("MRR@3 = %v, want 0.5", v)
	}
	if report.Len() != len(mrr.DefaultCutoffs) {
		t.Errorf("expected %d cutoffs, got %d", len(mrr.DefaultCutoffs), report.Len())
	}

	saved, err := store.LoadReport("csn_ruby")
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}
	if v, _ := saved.Get(3); v != 0.5 {
		t.Errorf("saved MRR@3 = %v", v)
	}

	if logs.FilterMessage("MRR@3: 0.5000").Len() != 1 {
		t.Errorf("expected MRR@3 log line, got %v", logs.All())
	}
}

func TestEvaluate_CustomCutoffs(t *testing.T) {
	svc, _, qrelsPath, resultsPath, _ := setup(t)
	svc.cutoffs = []int{2}

	report, err := svc.Evaluate(context.Background(), "csn_ruby", qrelsPath, resultsPath)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := report.Cutoffs(); len(got) != 1 || got[0] != 2 {
		t.Errorf("cutoffs = %v", got)
	}
}

func TestEvaluate_MissingResults(t *testing.T) {
	svc, _, qrelsPath, _, _ := setup(t)

	_, err := svc.Evaluate(context.Background(), "csn_ruby", qrelsPath, "/nonexistent/results.json")
	if !errors.Is(err, domain.ErrResultsNotFound) {
		t.Fatalf("expected ErrResultsNotFound, got %v", err)
	}
}

func TestEvaluate_MalformedQrels(t *testing.T) {
	svc, _, qrelsPath, resultsPath, _ := setup(t)
	writeFile(t, qrelsPath, "query-id\tcorpus-id\tscore\nq1\td1\n")

	_, err := svc.Evaluate(context.Background(), "csn_ruby", qrelsPath, resultsPath)
	if !errors.Is(err, domain.ErrMalformedQrels) {
		t.Fatalf("expected ErrMalformedQrels, got %v", err)
	}
	var lineErr *domain.QrelsLineError
	if !errors.As(err, &lineErr) || lineErr.Line != 2 {
		t.Errorf("expected line 2, got %v", err)
	}
}

func TestEvaluate_InvalidCutoff(t *testing.T) {
	svc, _, qrelsPath, resultsPath, _ := setup(t)
	svc.cutoffs = []int{0}

	_, err := svc.Evaluate(context.Background(), "csn_ruby", qrelsPath, resultsPath)
	if !errors.Is(err, domain.ErrInvalidCutoff) {
		t.Fatalf("expected ErrInvalidCutoff, got %v", err)
	}
}
