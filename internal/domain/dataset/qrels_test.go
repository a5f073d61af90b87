package dataset

import "testing"

func TestQrels_AddAndRelevant(t *testing.T) {
	q := Qrels{}
	q.Add("q1", "d1", 1)
	q.Add("q1", "d2", 0)
	q.Add("q2", "d3", 2)

	if !q.Relevant("q1", "d1") {
		t.Error("expected d1 relevant for q1")
	}
	if q.Relevant("q1", "d2") {
		t.Error("grade 0 must not be relevant")
	}
	if q.Relevant("q3", "d1") {
		t.Error("unknown query must not be relevant")
	}
	if !q.Has("q2") || q.Has("q3") {
		t.Error("unexpected Has result")
	}
	if q.Pairs() != 3 {
		t.Errorf("expected 3 pairs, got %d", q.Pairs())
	}
}

func TestQrels_QueryIDsSorted(t *testing.T) {
	q := Qrels{}
	q.Add("10_query", "10_code", 1)
	q.Add("1_query", "1_code", 1)
	q.Add("2_query", "2_code", 1)

	ids := q.QueryIDs()
	want := []string{"10_query", "1_query", "2_query"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestDataset_Accessors(t *testing.T) {
	ds := Dataset{
		Corpus:  []Document{{ID: "0_code", Text: "def f(): pass"}, {ID: "1_code", Text: "def g(): pass"}},
		Queries: []Query{{ID: "1_query", Text: "define g"}},
	}
	if ids := ds.CorpusIDs(); len(ids) != 2 || ids[1] != "1_code" {
		t.Errorf("unexpected corpus ids: %v", ids)
	}
	if texts := ds.QueryTexts(); len(texts) != 1 || texts[0] != "define g" {
		t.Errorf("unexpected query texts: %v", texts)
	}
	if ds.CorpusTexts()[0] != "def f(): pass" || ds.QueryIDs()[0] != "1_query" {
		t.Error("unexpected accessor output")
	}
}
