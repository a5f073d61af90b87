package beir

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/domain/dataset"
)

func TestReadQrels_WithHeader(t *testing.T) {
	in := "query-id\tcorpus-id\tscore\n0_query\t0_code\t1\n1_query\t1_code\t1\n1_query\t7_code\t0\n"

	qrels, err := ReadQrels(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := dataset.Qrels{
		"0_query": {"0_code": 1},
		"1_query": {"1_code": 1, "7_code": 0},
	}
	if !reflect.DeepEqual(qrels, want) {
		t.Errorf("got %v, want %v", qrels, want)
	}
}

func TestReadQrels_HeaderCaseInsensitiveAndOptional(t *testing.T) {
	qrels, err := ReadQrels(strings.NewReader("Query-ID\tcorpus-id\tscore\nq\td\t2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qrels["q"]["d"] != 2 {
		t.Errorf("expected q/d=2, got %v", qrels)
	}

	qrels, err = ReadQrels(strings.NewReader("q\td\t1\n"))
	if err != nil {
		t.Fatalf("unexpected error without header: %v", err)
	}
	if !qrels.Relevant("q", "d") {
		t.Error("expected first data line to be parsed when no header")
	}
}

func TestReadQrels_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
		line int
	}{
		{"two columns", "query-id\tcorpus-id\tscore\nq1\td1\n", 2},
		{"four columns", "q1\td1\t1\textra\n", 1},
		{"non integer score", "query-id\tcorpus-id\tscore\nq1\td1\t1\nq2\td2\thigh\n", 3},
		{"negative score", "q1\td1\t-1\n", 1},
		{"header not first", "q1\td1\t1\nquery-id\tcorpus-id\tscore\n", 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadQrels(strings.NewReader(tc.in))
			if !errors.Is(err, domain.ErrMalformedQrels) {
				t.Fatalf("expected ErrMalformedQrels, got %v", err)
			}
			var lineErr *domain.QrelsLineError
			if !errors.As(err, &lineErr) || lineErr.Line != tc.line {
				t.Errorf("expected error on line %d, got %v", tc.line, err)
			}
		})
	}
}

func TestQrels_RoundTrip(t *testing.T) {
	want := dataset.Qrels{
		"0_query":  {"0_code": 1},
		"10_query": {"10_code": 1, "3_code": 0},
		"2_query":  {"2_code": 3},
	}

	var buf bytes.Buffer
	if err := WriteQrels(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "query-id\tcorpus-id\tscore\n") {
		t.Fatalf("missing header: %q", buf.String())
	}

	got, err := ReadQrels(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch: got %v, want %v", got, want)
	}
}

func TestWriteQrelsOrdered(t *testing.T) {
	qrels := dataset.Qrels{
		"1_query":  {"1_code": 1},
		"10_query": {"10_code": 1},
	}
	var buf bytes.Buffer
	if err := WriteQrelsOrdered(&buf, qrels, []string{"1_query", "10_query"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "query-id\tcorpus-id\tscore\n1_query\t1_code\t1\n10_query\t10_code\t1\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
