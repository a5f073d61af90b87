// Package mrr computes Mean Reciprocal Rank over ranked retrieval output.
package mrr

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/domain/dataset"
	"github.com/kailas-cloud/coderank-eval/internal/usecase/ranking"
)

// DefaultCutoffs are the MRR@k cutoffs reported for reranker output.
var DefaultCutoffs = []int{1, 3, 5, 10, 20, 100}

// DefaultTopN is the ranking depth scanned by the retriever evaluation.
const DefaultTopN = 1000

// AtCutoffs computes MRR@k for every cutoff. Only queries present in both
// qrels and results are evaluated; a cutoff with no evaluated query is 0.
func AtCutoffs(qrels dataset.Qrels, results *dataset.Results, cutoffs []int) (Report, error) {
	if err := validateCutoffs(cutoffs); err != nil {
		return Report{}, err
	}

	qids := qrels.QueryIDs()
	sorted := make(map[string][]dataset.Candidate, results.Len())
	for _, qid := range qids {
		cands, ok := results.Candidates(qid)
		if !ok {
			continue
		}
		sorted[qid] = sortCandidates(cands)
	}

	report := NewReport()
	for _, k := range cutoffs {
		var sum float64
		var n int
		for _, qid := range qids {
			cands, ok := sorted[qid]
			if !ok {
				continue
			}
			if len(cands) > k {
				cands = cands[:k]
			}
			for rank, c := range cands {
				if qrels.Relevant(qid, c.DocID) {
					sum += 1.0 / float64(rank+1)
					break
				}
			}
			n++
		}

		var v float64
		if n > 0 {
			v = sum / float64(n)
		}
		report.Set(k, v)
	}
	return report, nil
}

// ReciprocalRank returns 1/rank of the first relevant document among the
// first topN ranked ids, or 0 when none is relevant. topN <= 0 scans all.
func ReciprocalRank(qrels dataset.Qrels, queryID string, ranked []string, topN int) float64 {
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	for i, docID := range ranked {
		if qrels.Relevant(queryID, docID) {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// OfRankings averages ReciprocalRank over rankings whose query has judgments.
// It returns the mean and the number of evaluated queries.
func OfRankings(qrels dataset.Qrels, rankings []ranking.Result, topN int) (float64, int) {
	var sum float64
	var n int
	for _, r := range rankings {
		if !qrels.Has(r.QueryID) {
			continue
		}
		sum += ReciprocalRank(qrels, r.QueryID, r.DocIDs, topN)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// sortCandidates orders by descending score; ties keep source order.
func sortCandidates(cands []dataset.Candidate) []dataset.Candidate {
	out := append([]dataset.Candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func validateCutoffs(cutoffs []int) error {
	for _, k := range cutoffs {
		if k <= 0 {
			return fmt.Errorf("cutoff %d: %w", k, domain.ErrInvalidCutoff)
		}
	}
	return nil
}
