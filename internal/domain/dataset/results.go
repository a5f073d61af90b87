package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
)

// Candidate is one scored document for a query.
type Candidate struct {
	DocID string
	Score float64
}

// Results holds reranker output: per query, candidates in the order they
// appear in the source JSON object. Order matters for tie-breaking.
type Results struct {
	order   []string
	byQuery map[string][]Candidate
}

// NewResults creates an empty result set.
func NewResults() *Results {
	return &Results{byQuery: make(map[string][]Candidate)}
}

// Set replaces the candidates of a query, appending it to the query order if new.
func (r *Results) Set(queryID string, cands []Candidate) {
	if r.byQuery == nil {
		r.byQuery = make(map[string][]Candidate)
	}
	if _, ok := r.byQuery[queryID]; !ok {
		r.order = append(r.order, queryID)
	}
	r.byQuery[queryID] = cands
}

// Candidates returns the candidates of a query.
func (r *Results) Candidates(queryID string) ([]Candidate, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.byQuery[queryID]
	return c, ok
}

// QueryIDs returns query ids in source order.
func (r *Results) QueryIDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Len returns the number of queries.
func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// UnmarshalJSON decodes {"qid": {"docid": score, ...}, ...} keeping key order.
func (r *Results) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	res := NewResults()
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		qid, err := readKey(dec)
		if err != nil {
			return err
		}
		cands, err := readCandidates(dec, qid)
		if err != nil {
			return err
		}
		res.Set(qid, cands)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after results object: %w", domain.ErrMalformedResults)
	}

	*r = *res
	return nil
}

// MarshalJSON encodes the result set keeping query and candidate order.
func (r *Results) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, qid := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(qid)
		if err != nil {
			return nil, fmt.Errorf("marshal query id: %w", err)
		}
		buf.Write(k)
		buf.WriteString(":{")
		for j, c := range r.byQuery[qid] {
			if j > 0 {
				buf.WriteByte(',')
			}
			dk, err := json.Marshal(c.DocID)
			if err != nil {
				return nil, fmt.Errorf("marshal doc id: %w", err)
			}
			sv, err := json.Marshal(c.Score)
			if err != nil {
				return nil, fmt.Errorf("marshal score for %s/%s: %w", qid, c.DocID, err)
			}
			buf.Write(dk)
			buf.WriteByte(':')
			buf.Write(sv)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func readCandidates(dec *json.Decoder, qid string) ([]Candidate, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("query %s: %w", qid, err)
	}
	var cands []Candidate
	// A repeated doc key keeps its first position and takes the last score.
	pos := make(map[string]int)
	for dec.More() {
		docID, err := readKey(dec)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", qid, err)
		}
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("query %s doc %s: %w", qid, docID, err)
		}
		num, ok := tok.(json.Number)
		if !ok {
			return nil, fmt.Errorf("query %s doc %s: score is %T, not a number: %w",
				qid, docID, tok, domain.ErrMalformedResults)
		}
		score, err := num.Float64()
		if err != nil {
			return nil, fmt.Errorf("query %s doc %s: %w", qid, docID, err)
		}
		if i, ok := pos[docID]; ok {
			cands[i].Score = score
			continue
		}
		pos[docID] = len(cands)
		cands = append(cands, Candidate{DocID: docID, Score: score})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("query %s: %w", qid, err)
	}
	return cands, nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v: %w", tok, domain.ErrMalformedResults)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("expected %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v: %w", want, tok, domain.ErrMalformedResults)
	}
	return nil
}
