package rerank

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/usecase/mrr"
)

// --- Mocks ---

type call struct {
	name string
	args []string
}

type mockRunner struct {
	calls []call
	// failOn fails the command whose args contain both values.
	failOn [2]string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) error {
	m.calls = append(m.calls, call{name: name, args: args})
	if m.failOn[0] != "" && slices.Contains(args, m.failOn[0]) && slices.Contains(args, m.failOn[1]) {
		return domain.ErrCommandFailed
	}
	return nil
}

type evalCall struct {
	name, qrels, results string
}

type mockEvaluator struct {
	calls []evalCall
	err   error
}

func (m *mockEvaluator) Evaluate(_ context.Context, name, qrelsPath, resultsPath string) (mrr.Report, error) {
	m.calls = append(m.calls, evalCall{name, qrelsPath, resultsPath})
	if m.err != nil {
		return mrr.Report{}, m.err
	}
	r := mrr.NewReport()
	r.Set(1, 0.5)
	return r, nil
}

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func testLayout(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	mkdirs(t, root,
		"code_datasets/csn_ruby",
		"code_datasets/csn_go",
		"code_datasets/other",
		"swe-bench-lite-function_django__django-11099",
		"unrelated",
	)
	if err := os.WriteFile(filepath.Join(root, "swe-bench-lite-function_file"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	return root
}

func testOptions(root string, datasets ...string) Options {
	return Options{
		DatasetDir:  root,
		OutputDir:   filepath.Join(root, "outputs"),
		RerankerDir: "llm-reranker",
		Python:      "python3",
		Model:       "cornstack/CodeRankLLM",
		TopK:        100,
		WindowSize:  10,
		StepSize:    5,
		Datasets:    datasets,
	}
}

// --- Tests ---

func TestDiscover_Selected(t *testing.T) {
	root := testLayout(t)

	targets, err := Discover(root, []string{"csn_ruby", "csn_missing"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %+v", targets)
	}

	ruby := targets[0]
	if ruby.Name != "csn_ruby" || ruby.PromptType != PromptDocstring {
		t.Errorf("unexpected csn target: %+v", ruby)
	}
	if ruby.DataDir != filepath.Join(root, "code_datasets") {
		t.Errorf("csn data dir = %q", ruby.DataDir)
	}
	if ruby.QrelsPath() != filepath.Join(root, "code_datasets", "csn_ruby", "qrels", "test.tsv") {
		t.Errorf("qrels path = %q", ruby.QrelsPath())
	}

	swe := targets[1]
	if swe.Name != "swe-bench-lite-function_django__django-11099" || swe.PromptType != PromptGitHubIssue {
		t.Errorf("unexpected swe target: %+v", swe)
	}
	if swe.DataDir != root {
		t.Errorf("swe data dir = %q, want dataset dir", swe.DataDir)
	}
	if swe.InstanceID != "django-11099" {
		t.Errorf("instance id = %q", swe.InstanceID)
	}
}

func TestDiscover_All(t *testing.T) {
	root := testLayout(t)

	targets, err := Discover(root, []string{All})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var names []string
	for _, tg := range targets {
		names = append(names, tg.Name)
	}
	want := []string{"csn_go", "csn_ruby", "swe-bench-lite-function_django__django-11099"}
	if !slices.Equal(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestDiscover_NoDatasetDir(t *testing.T) {
	targets, err := Discover(filepath.Join(t.TempDir(), "missing"), []string{"csn_ruby"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(targets) != 0 {
		t.Errorf("expected no targets, got %+v", targets)
	}
}

func TestArgs(t *testing.T) {
	root := testLayout(t)
	svc := New(&mockRunner{}, &mockEvaluator{}, testOptions(root), zap.NewNop())
	tg := Target{Name: "csn_ruby", DataDir: "/data/code_datasets", PromptType: PromptDocstring}

	wantConvert := []string{
		filepath.Join("llm-reranker", "scripts", "convert_results.py"),
		"--dataset", "csn_ruby",
		"--output_dir", filepath.Join(root, "outputs"),
		"--data_type", "codedataset",
		"--data_dir", "/data/code_datasets",
		"--top_k", "100",
		"--rerank_type", "code",
	}
	if got := svc.ConvertArgs(tg); !slices.Equal(got, wantConvert) {
		t.Errorf("ConvertArgs =\n%v\nwant\n%v", got, wantConvert)
	}

	wantRerank := []string{
		filepath.Join("llm-reranker", "scripts", "rerank_llm.py"),
		"--model", "cornstack/CodeRankLLM",
		"--dataset", "csn_ruby",
		"--output_dir", filepath.Join(root, "outputs"),
		"--data_type", "codedataset",
		"--data_dir", "/data/code_datasets",
		"--use_logits", "0",
		"--use_alpha", "0",
		"--llm_top_k", "100",
		"--window_size", "10",
		"--step_size", "5",
		"--do_batched", "1",
		"--rerank_type", "code",
		"--code_prompt_type", "docstring",
	}
	if got := svc.RerankArgs(tg); !slices.Equal(got, wantRerank) {
		t.Errorf("RerankArgs =\n%v\nwant\n%v", got, wantRerank)
	}

	wantResults := filepath.Join(root, "outputs", "code_datasets", "csn_ruby", "rerank_100_llm_gen_num.json")
	if got := svc.ResultsPath("csn_ruby"); got != wantResults {
		t.Errorf("ResultsPath = %q, want %q", got, wantResults)
	}
}

func TestRun_ConvertRerankEvaluate(t *testing.T) {
	root := testLayout(t)
	runner := &mockRunner{}
	eval := &mockEvaluator{}
	svc := New(runner, eval, testOptions(root, "csn_ruby"), zap.NewNop())

	outcomes, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %+v", outcomes)
	}
	for _, o := range outcomes {
		if o.Err != nil {
			t.Errorf("%s failed at %s: %v", o.Dataset, o.Stage, o.Err)
		}
	}

	// convert + rerank per dataset, all through the configured interpreter.
	if len(runner.calls) != 4 {
		t.Fatalf("expected 4 commands, got %d", len(runner.calls))
	}
	for _, c := range runner.calls {
		if c.name != "python3" {
			t.Errorf("command %q, want python3", c.name)
		}
	}
	if filepath.Base(runner.calls[0].args[0]) != "convert_results.py" ||
		filepath.Base(runner.calls[1].args[0]) != "rerank_llm.py" {
		t.Errorf("unexpected order: %v, %v", runner.calls[0].args[0], runner.calls[1].args[0])
	}
	if !slices.Contains(runner.calls[3].args, PromptGitHubIssue) {
		t.Errorf("swe-bench rerank should use github_issue prompt: %v", runner.calls[3].args)
	}

	if len(eval.calls) != 2 || eval.calls[0].name != "csn_ruby" {
		t.Fatalf("unexpected evaluations: %+v", eval.calls)
	}
	if eval.calls[0].results != svc.ResultsPath("csn_ruby") {
		t.Errorf("results path = %q", eval.calls[0].results)
	}
	if _, err := os.Stat(filepath.Join(root, "outputs")); err != nil {
		t.Errorf("expected output dir to be created: %v", err)
	}
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	root := testLayout(t)
	runner := &mockRunner{failOn: [2]string{"csn_go", filepath.Join("llm-reranker", "scripts", "convert_results.py")}}
	eval := &mockEvaluator{}
	svc := New(runner, eval, testOptions(root, "csn_go", "csn_ruby"), zap.NewNop())

	outcomes, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Dataset != "csn_go" || outcomes[0].Stage != StageConvert ||
		!errors.Is(outcomes[0].Err, domain.ErrCommandFailed) {
		t.Errorf("unexpected first outcome: %+v", outcomes[0])
	}
	if outcomes[1].Err != nil || outcomes[2].Err != nil {
		t.Errorf("later datasets should succeed: %+v", outcomes[1:])
	}
	// csn_go never reached rerank or evaluate.
	if len(eval.calls) != 2 {
		t.Errorf("expected 2 evaluations, got %d", len(eval.calls))
	}
}

func TestRun_RerankFailureSkipsEvaluate(t *testing.T) {
	root := testLayout(t)
	runner := &mockRunner{failOn: [2]string{"csn_ruby", "--llm_top_k"}}
	eval := &mockEvaluator{}
	svc := New(runner, eval, testOptions(root, "csn_ruby"), zap.NewNop())

	outcomes, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcomes[0].Stage != StageRerank {
		t.Errorf("stage = %q, want rerank", outcomes[0].Stage)
	}
	for _, c := range eval.calls {
		if c.name == "csn_ruby" {
			t.Error("csn_ruby should not be evaluated after rerank failure")
		}
	}
}

func TestRun_EvaluateFailure(t *testing.T) {
	root := testLayout(t)
	eval := &mockEvaluator{err: domain.ErrResultsNotFound}
	svc := New(&mockRunner{}, eval, testOptions(root, "csn_ruby"), zap.NewNop())

	outcomes, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, o := range outcomes {
		if o.Stage != StageEvaluate || !errors.Is(o.Err, domain.ErrResultsNotFound) {
			t.Errorf("unexpected outcome: %+v", o)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	root := testLayout(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := New(&mockRunner{}, &mockEvaluator{}, testOptions(root, "csn_ruby"), zap.NewNop())
	if _, err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
