package retrieval

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/domain/dataset"
	"github.com/kailas-cloud/coderank-eval/internal/repository/evalstore"
)

// --- Mocks ---

type mockLoader struct {
	ds       dataset.Dataset
	err      error
	gotDir   string
	gotSplit string
}

func (m *mockLoader) Load(dir, split string) (dataset.Dataset, error) {
	m.gotDir, m.gotSplit = dir, split
	return m.ds, m.err
}

type mockSummaries struct {
	got []evalstore.Summary
	err error
}

func (m *mockSummaries) AppendSummary(sum evalstore.Summary) error {
	if m.err != nil {
		return m.err
	}
	m.got = append(m.got, sum)
	return nil
}

// lookupEmbedder maps exact texts to vectors and counts batch calls.
type lookupEmbedder struct {
	vecs       map[string][]float32
	batchSizes []int
}

func (m *lookupEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	v, ok := m.vecs[text]
	if !ok {
		return domain.EmbeddingResult{}, errors.New("unexpected text: " + text)
	}
	return domain.EmbeddingResult{Embedding: v}, nil
}

func (m *lookupEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchSizes = append(m.batchSizes, len(texts))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		r, err := m.Embed(ctx, t)
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		out[i] = r.Embedding
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func testDataset() dataset.Dataset {
	qrels := dataset.Qrels{}
	qrels.Add("0_query", "0_code", 1)
	qrels.Add("1_query", "1_code", 1)
	return dataset.Dataset{
		Name: "csn_go",
		Corpus: []dataset.Document{
			{ID: "0_code", Text: "func Add"},
			{ID: "1_code", Text: "func Sub"},
			{ID: "2_code", Text: "func Mul"},
		},
		Queries: []dataset.Query{
			{ID: "0_query", Text: "add numbers"},
			{ID: "1_query", Text: "subtract numbers"},
		},
		Qrels: qrels,
	}
}

func testVectors() map[string][]float32 {
	return map[string][]float32{
		"func Add":            {1, 0, 0},
		"func Sub":            {0, 1, 0},
		"func Mul":            {0, 0, 1},
		"q: add numbers":      {0.9, 0.1, 0},
		"q: subtract numbers": {0, 0.4, 0.6}, // Mul outranks Sub
	}
}

func newTestService(loader *mockLoader, sums *mockSummaries, emb *lookupEmbedder, opts Options) *Service {
	queries := domain.NewInstructionEmbedder(emb, "q: ")
	return New(loader, sums, queries, emb, opts, zap.NewNop())
}

// --- Tests ---

func TestEvaluate_MRR(t *testing.T) {
	loader := &mockLoader{ds: testDataset()}
	sums := &mockSummaries{}
	emb := &lookupEmbedder{vecs: testVectors()}
	svc := newTestService(loader, sums, emb, Options{DatasetDir: "datasets"})

	res, err := svc.Evaluate(context.Background(), "go")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// q0 hits at rank 1, q1 at rank 2.
	if math.Abs(res.MRR-0.75) > 1e-9 {
		t.Errorf("MRR = %v, want 0.75", res.MRR)
	}
	if res.Evaluated != 2 || res.Queries != 2 || res.Documents != 3 {
		t.Errorf("unexpected counts: %+v", res)
	}
	if loader.gotDir != filepath.Join("datasets", "csn_go") || loader.gotSplit != "test" {
		t.Errorf("loaded %q split %q", loader.gotDir, loader.gotSplit)
	}
	if len(sums.got) != 1 || sums.got[0].Language != "go" || sums.got[0].MRR != res.MRR {
		t.Errorf("unexpected summaries: %+v", sums.got)
	}
}

func TestEvaluate_TopNCutsOffLateHits(t *testing.T) {
	loader := &mockLoader{ds: testDataset()}
	emb := &lookupEmbedder{vecs: testVectors()}
	svc := newTestService(loader, &mockSummaries{}, emb, Options{TopN: 1})

	res, err := svc.Evaluate(context.Background(), "go")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if math.Abs(res.MRR-0.5) > 1e-9 {
		t.Errorf("MRR = %v, want 0.5", res.MRR)
	}
}

func TestEvaluate_Batches(t *testing.T) {
	loader := &mockLoader{ds: testDataset()}
	emb := &lookupEmbedder{vecs: testVectors()}
	svc := newTestService(loader, &mockSummaries{}, emb, Options{BatchSize: 2})

	if _, err := svc.Evaluate(context.Background(), "go"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// 2 queries -> [2]; 3 docs -> [2 1]
	want := []int{2, 2, 1}
	if len(emb.batchSizes) != len(want) {
		t.Fatalf("batch sizes = %v, want %v", emb.batchSizes, want)
	}
	for i := range want {
		if emb.batchSizes[i] != want[i] {
			t.Fatalf("batch sizes = %v, want %v", emb.batchSizes, want)
		}
	}
}

func TestEvaluate_LoadError(t *testing.T) {
	loader := &mockLoader{err: domain.ErrDatasetNotFound}
	svc := newTestService(loader, &mockSummaries{}, &lookupEmbedder{}, Options{})

	_, err := svc.Evaluate(context.Background(), "go")
	if !errors.Is(err, domain.ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound, got %v", err)
	}
}

func TestEvaluate_DimMismatch(t *testing.T) {
	vecs := testVectors()
	vecs["func Mul"] = []float32{0, 1}
	loader := &mockLoader{ds: testDataset()}
	svc := newTestService(loader, &mockSummaries{}, &lookupEmbedder{vecs: vecs}, Options{})

	_, err := svc.Evaluate(context.Background(), "go")
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestEvaluate_SummaryError(t *testing.T) {
	loader := &mockLoader{ds: testDataset()}
	sums := &mockSummaries{err: errors.New("disk full")}
	svc := newTestService(loader, sums, &lookupEmbedder{vecs: testVectors()}, Options{})

	if _, err := svc.Evaluate(context.Background(), "go"); err == nil {
		t.Fatal("expected error")
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	loader := &mockLoader{ds: testDataset()}
	svc := newTestService(loader, &mockSummaries{}, &lookupEmbedder{vecs: testVectors()}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Evaluate(ctx, "go"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	loader := &mockLoader{ds: testDataset()}
	sums := &mockSummaries{}
	emb := &lookupEmbedder{vecs: testVectors()}
	svc := newTestService(loader, sums, emb, Options{})

	results, err := svc.Run(context.Background(), []string{"go", "ruby"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 || len(sums.got) != 2 {
		t.Fatalf("expected 2 results, got %d (summaries %d)", len(results), len(sums.got))
	}

	loader.err = domain.ErrDatasetNotFound
	results, err = svc.Run(context.Background(), []string{"python"})
	if err == nil || len(results) != 0 {
		t.Fatalf("expected failure with no results, got %v, %v", results, err)
	}
}

func TestVecShape(t *testing.T) {
	if got := vecShape(nil); got != "(0, 0)" {
		t.Errorf("vecShape(nil) = %q", got)
	}
	if got := vecShape([][]float32{{1, 2, 3}, {4, 5, 6}}); got != "(2, 3)" {
		t.Errorf("vecShape = %q", got)
	}
}
