// Package score defines the dense query x document similarity matrix.
package score

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
)

// Matrix is a dense row-major matrix: rows are queries, columns are documents.
type Matrix struct {
	rows, cols int
	data       []float32
}

// NewMatrix allocates a zeroed rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, data: make([]float32, rows*cols)}
}

// FromRows builds a matrix from equally sized rows.
func FromRows(rows [][]float32) (*Matrix, error) {
	if len(rows) == 0 {
		return NewMatrix(0, 0), nil
	}
	m := NewMatrix(len(rows), len(rows[0]))
	for i, r := range rows {
		if len(r) != m.cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w",
				i, len(r), m.cols, domain.ErrShapeMismatch)
		}
		copy(m.data[i*m.cols:], r)
	}
	return m, nil
}

// Rows returns the number of rows (queries).
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns (documents).
func (m *Matrix) Cols() int { return m.cols }

// At returns the score at (i, j).
func (m *Matrix) At(i, j int) float32 { return m.data[i*m.cols+j] }

// Set stores the score at (i, j).
func (m *Matrix) Set(i, j int, v float32) { m.data[i*m.cols+j] = v }

// Row returns row i. The slice aliases the matrix storage.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// Shape formats the matrix dimensions as "(rows, cols)".
func (m *Matrix) Shape() string {
	return fmt.Sprintf("(%d, %d)", m.rows, m.cols)
}

// Product computes queries x docs^T. All vectors must share one dimension.
// With normalize set, both sides are L2-normalized first (cosine similarity).
func Product(queries, docs [][]float32, normalize bool) (*Matrix, error) {
	dim, err := commonDim(queries, docs)
	if err != nil {
		return nil, err
	}

	if normalize {
		queries = normalized(queries)
		docs = normalized(docs)
	}

	m := NewMatrix(len(queries), len(docs))
	for i, q := range queries {
		row := m.Row(i)
		for j, d := range docs {
			var dot float32
			for k := 0; k < dim; k++ {
				dot += q[k] * d[k]
			}
			row[j] = dot
		}
	}
	return m, nil
}

func commonDim(groups ...[][]float32) (int, error) {
	dim := -1
	for _, g := range groups {
		for i, v := range g {
			if dim < 0 {
				dim = len(v)
				continue
			}
			if len(v) != dim {
				return 0, fmt.Errorf("vector %d has dimension %d, want %d: %w",
					i, len(v), dim, domain.ErrVectorDimMismatch)
			}
		}
	}
	if dim < 0 {
		dim = 0
	}
	return dim, nil
}

func normalized(vecs [][]float32) [][]float32 {
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		n := make([]float32, len(v))
		if sum > 0 {
			inv := float32(1 / math.Sqrt(sum))
			for k, x := range v {
				n[k] = x * inv
			}
		}
		out[i] = n
	}
	return out
}
