// Package ranking turns a query x document score matrix into per-query rankings.
package ranking

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/domain/score"
)

// Result is the ranking of one query: documents by descending score.
type Result struct {
	QueryID string
	// DocIndices are column indices into the score matrix, best first.
	DocIndices []int
	DocIDs     []string
	Scores     []float32
}

// Rank sorts every row of m by descending score. Ties keep column order.
// topN > 0 truncates each ranking to its first topN documents.
func Rank(m *score.Matrix, queryIDs, docIDs []string, topN int) ([]Result, error) {
	if m.Rows() != len(queryIDs) {
		return nil, fmt.Errorf("matrix has %d rows for %d queries: %w",
			m.Rows(), len(queryIDs), domain.ErrShapeMismatch)
	}
	if m.Cols() != len(docIDs) {
		return nil, fmt.Errorf("matrix has %d columns for %d documents: %w",
			m.Cols(), len(docIDs), domain.ErrShapeMismatch)
	}

	results := make([]Result, len(queryIDs))
	for i, qid := range queryIDs {
		order := SortRow(m.Row(i))
		if topN > 0 && len(order) > topN {
			order = order[:topN]
		}

		ids := make([]string, len(order))
		scores := make([]float32, len(order))
		for r, col := range order {
			ids[r] = docIDs[col]
			scores[r] = m.At(i, col)
		}
		results[i] = Result{QueryID: qid, DocIndices: order, DocIDs: ids, Scores: scores}
	}
	return results, nil
}

// SortRow returns the column indices of row ordered by descending score,
// ties broken by ascending column index.
func SortRow(row []float32) []int {
	idx := make([]int, len(row))
	for j := range idx {
		idx[j] = j
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return row[idx[a]] > row[idx[b]]
	})
	return idx
}
