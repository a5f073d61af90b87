package mrr

import (
	"encoding/json"
	"testing"
)

func TestReport_MarshalNumericKeyOrder(t *testing.T) {
	r := NewReport()
	for _, k := range []int{100, 20, 10, 5, 3, 1} {
		r.Set(k, float64(k)/100)
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"1":0.01,"3":0.03,"5":0.05,"10":0.1,"20":0.2,"100":1.0}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestReport_MarshalIndent(t *testing.T) {
	r := NewReport()
	r.Set(3, 0.5)
	r.Set(1, 0)

	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := "{\n    \"1\": 0.0,\n    \"3\": 0.5\n}"
	if string(data) != want {
		t.Fatalf("got %q, want %q", data, want)
	}
}

func TestReport_MarshalWholeNumbers(t *testing.T) {
	r := NewReport()
	r.Set(1, 0)
	r.Set(3, 1)
	r.Set(5, 1e-7)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"1":0.0,"3":1.0,"5":1e-7}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestReport_UnmarshalRoundTrip(t *testing.T) {
	var r Report
	if err := json.Unmarshal([]byte(`{"10": 0.25, "1": 0.125}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 cutoffs, got %d", r.Len())
	}
	if ks := r.Cutoffs(); ks[0] != 1 || ks[1] != 10 {
		t.Errorf("unexpected cutoffs: %v", ks)
	}
	if v, _ := r.Get(10); v != 0.25 {
		t.Errorf("MRR@10 = %v, want 0.25", v)
	}

	if err := json.Unmarshal([]byte(`{"top": 0.5}`), &r); err == nil {
		t.Fatal("expected error for non-numeric cutoff key")
	}
}
