package mrr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Report maps cutoff k to MRR@k. It encodes as a JSON object keyed by the
// cutoff as a string, in ascending numeric order: {"1": .., "3": .., "10": ..}.
type Report struct {
	values map[int]float64
}

// NewReport creates an empty report.
func NewReport() Report {
	return Report{values: make(map[int]float64)}
}

// Set stores MRR@k.
func (r *Report) Set(k int, v float64) {
	if r.values == nil {
		r.values = make(map[int]float64)
	}
	r.values[k] = v
}

// Get returns MRR@k.
func (r Report) Get(k int) (float64, bool) {
	v, ok := r.values[k]
	return v, ok
}

// Cutoffs returns the reported cutoffs in ascending order.
func (r Report) Cutoffs() []int {
	ks := make([]int, 0, len(r.values))
	for k := range r.values {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	return ks
}

// Len returns the number of cutoffs.
func (r Report) Len() int { return len(r.values) }

// MarshalJSON implements json.Marshaler.
func (r Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Cutoffs() {
		if i > 0 {
			buf.WriteByte(',')
		}
		v, err := marshalFloat(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal MRR@%d: %w", k, err)
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(k)))
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalFloat encodes whole numbers with a trailing ".0" so eval files read
// 0.0 and 1.0 rather than 0 and 1.
func marshalFloat(v float64) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if !bytes.ContainsAny(b, ".eE") {
		b = append(b, ".0"...)
	}
	return b, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	out := NewReport()
	for key, v := range raw {
		k, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("cutoff key %q: %w", key, err)
		}
		out.Set(k, v)
	}
	*r = out
	return nil
}
