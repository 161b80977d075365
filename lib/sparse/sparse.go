// Package sparse provides a minimal row-oriented sparse matrix for bag-of-words features.
package sparse

import (
	"math"
	"sort"
)

// Vector is a sparse vector with indices sorted in increasing order
type Vector struct {
	Indices []int
	Values  []float64
}

// FromMap makes a vector from index->value map, zero values dropped
func FromMap(m map[int]float64) Vector {
	res := Vector{Indices: make([]int, 0, len(m)), Values: make([]float64, 0, len(m))}
	for idx, v := range m {
		if v == 0 {
			continue
		}
		res.Indices = append(res.Indices, idx)
	}
	sort.Ints(res.Indices)
	for _, idx := range res.Indices {
		res.Values = append(res.Values, m[idx])
	}
	return res
}

// Len returns the number of stored (non-zero) elements
func (v Vector) Len() int { return len(v.Indices) }

// IsZero returns true if no non-zero elements stored
func (v Vector) IsZero() bool { return len(v.Indices) == 0 }

// Dot returns dot product with a dense vector, indices beyond dense length are ignored
func (v Vector) Dot(dense []float64) float64 {
	res := 0.0
	for i, idx := range v.Indices {
		if idx < len(dense) {
			res += v.Values[i] * dense[idx]
		}
	}
	return res
}

// AddTo adds alpha*v to the dense vector in place
func (v Vector) AddTo(dense []float64, alpha float64) {
	for i, idx := range v.Indices {
		if idx < len(dense) {
			dense[idx] += alpha * v.Values[i]
		}
	}
}

// Norm returns euclidean (L2) norm
func (v Vector) Norm() float64 {
	sum := 0.0
	for _, val := range v.Values {
		sum += val * val
	}
	return math.Sqrt(sum)
}

// Normalized returns a copy scaled to unit L2 norm, zero vector returned as is
func (v Vector) Normalized() Vector {
	norm := v.Norm()
	if norm == 0 {
		return v
	}
	res := Vector{Indices: append([]int(nil), v.Indices...), Values: make([]float64, len(v.Values))}
	for i, val := range v.Values {
		res.Values[i] = val / norm
	}
	return res
}

// Get returns value at the index, zero if not stored
func (v Vector) Get(idx int) float64 {
	pos := sort.SearchInts(v.Indices, idx)
	if pos < len(v.Indices) && v.Indices[pos] == idx {
		return v.Values[pos]
	}
	return 0
}

// Dense returns a dense copy with the given dimension
func (v Vector) Dense(dim int) []float64 {
	res := make([]float64, dim)
	for i, idx := range v.Indices {
		if idx < dim {
			res[idx] = v.Values[i]
		}
	}
	return res
}

// Matrix is a list of sparse rows with a fixed number of columns
type Matrix struct {
	Rows []Vector
	Cols int
}

// NumRows returns the number of rows
func (m Matrix) NumRows() int { return len(m.Rows) }

// Row returns the i-th row
func (m Matrix) Row(i int) Vector { return m.Rows[i] }

// MulVec returns m*dense + bias for every row
func (m Matrix) MulVec(dense []float64, bias float64) []float64 {
	res := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		res[i] = row.Dot(dense) + bias
	}
	return res
}
