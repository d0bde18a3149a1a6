// Package graph builds the weighted graphs a diffusion map runs on: the
// sparse squared-distance matrix over the neighbor support, the Gaussian
// kernel with adaptive bandwidths, and the transition operators derived
// from it (T, Ktilde and the graph Laplacian).
//
// Every matrix is square and comes in one of two shapes: a CSRMatrix over
// the kNN support, or a DenseOperator when the full distance matrix was
// requested. Both implement Operator.
package graph

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Operator is a square matrix that can be applied to a vector.
type Operator interface {
	mat.Matrix
	// MulVecTo stores the product of the operator with x in dst.
	MulVecTo(dst, x []float64)
}

// CSRMatrix represents a sparse matrix in CSR format. Column indices within
// a row are sorted ascending; stored zeros are kept.
type CSRMatrix struct {
	Indptr  []int32   // Row pointers
	Indices []int32   // Column indices
	Data    []float64 // Values
	NRows   int       // Number of rows
	NCols   int       // Number of columns
	NNZ     int       // Number of stored elements
}

var _ Operator = (*CSRMatrix)(nil)

// Dims returns the matrix dimensions.
func (g *CSRMatrix) Dims() (int, int) { return g.NRows, g.NCols }

// At returns the element at (i, j), zero when it is not stored.
func (g *CSRMatrix) At(i, j int) float64 {
	cols, vals := g.GetRow(i)
	k := sort.Search(len(cols), func(p int) bool { return cols[p] >= int32(j) })
	if k < len(cols) && cols[k] == int32(j) {
		return vals[k]
	}
	return 0
}

// T returns the transpose view of the matrix.
func (g *CSRMatrix) T() mat.Matrix { return mat.Transpose{Matrix: g} }

// Has reports whether (i, j) is stored.
func (g *CSRMatrix) Has(i, j int) bool {
	cols, _ := g.GetRow(i)
	k := sort.Search(len(cols), func(p int) bool { return cols[p] >= int32(j) })
	return k < len(cols) && cols[k] == int32(j)
}

// MulVecTo computes dst = g·x.
func (g *CSRMatrix) MulVecTo(dst, x []float64) {
	for i := range g.NRows {
		var s float64
		for p := g.Indptr[i]; p < g.Indptr[i+1]; p++ {
			s += g.Data[p] * x[g.Indices[p]]
		}
		dst[i] = s
	}
}

// ColSums returns the sum of every column.
func (g *CSRMatrix) ColSums() []float64 {
	sums := make([]float64, g.NCols)
	for p, j := range g.Indices {
		sums[j] += g.Data[p]
	}
	return sums
}

// Clone returns a deep copy sharing no storage with g.
func (g *CSRMatrix) Clone() *CSRMatrix {
	return &CSRMatrix{
		Indptr:  append([]int32(nil), g.Indptr...),
		Indices: append([]int32(nil), g.Indices...),
		Data:    append([]float64(nil), g.Data...),
		NRows:   g.NRows,
		NCols:   g.NCols,
		NNZ:     g.NNZ,
	}
}

// ToDense materializes the matrix.
func (g *CSRMatrix) ToDense() *mat.Dense {
	d := mat.NewDense(g.NRows, g.NCols, nil)
	for i := range g.NRows {
		for p := g.Indptr[i]; p < g.Indptr[i+1]; p++ {
			d.Set(i, int(g.Indices[p]), g.Data[p])
		}
	}
	return d
}

// IsSymmetric reports whether g equals its transpose exactly.
func (g *CSRMatrix) IsSymmetric() bool {
	if g.NRows != g.NCols {
		return false
	}
	for i := range g.NRows {
		for p := g.Indptr[i]; p < g.Indptr[i+1]; p++ {
			j := int(g.Indices[p])
			if !g.Has(j, i) || g.At(j, i) != g.Data[p] {
				return false
			}
		}
	}
	return true
}

// GetRow returns the column indices and values for a given row.
func (g *CSRMatrix) GetRow(row int) ([]int32, []float64) {
	start := g.Indptr[row]
	end := g.Indptr[row+1]
	return g.Indices[start:end], g.Data[start:end]
}

// cooToCSR converts COO format to CSR format. Duplicate (row, col) entries
// are summed.
func cooToCSR(rows, cols []int32, data []float64, nrows, ncols int) *CSRMatrix {
	type entry struct {
		row, col int32
		val      float64
	}
	entries := make([]entry, len(rows))
	for i := range entries {
		entries[i] = entry{rows[i], cols[i], data[i]}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].row != entries[j].row {
			return entries[i].row < entries[j].row
		}
		return entries[i].col < entries[j].col
	})

	indptr := make([]int32, nrows+1)
	indices := make([]int32, 0, len(entries))
	vals := make([]float64, 0, len(entries))

	for i, e := range entries {
		if i > 0 && e.row == entries[i-1].row && e.col == entries[i-1].col {
			vals[len(vals)-1] += e.val
			continue
		}
		indices = append(indices, e.col)
		vals = append(vals, e.val)
		indptr[e.row+1]++
	}

	for i := 1; i <= nrows; i++ {
		indptr[i] += indptr[i-1]
	}

	return &CSRMatrix{
		Indptr:  indptr,
		Indices: indices,
		Data:    vals,
		NRows:   nrows,
		NCols:   ncols,
		NNZ:     len(indices),
	}
}

// DenseOperator adapts a dense square matrix to Operator.
type DenseOperator struct {
	*mat.Dense
}

var _ Operator = DenseOperator{}

// MulVecTo computes dst = d·x.
func (d DenseOperator) MulVecTo(dst, x []float64) {
	dv := mat.NewVecDense(len(dst), dst)
	dv.MulVec(d.Dense, mat.NewVecDense(len(x), x))
}

// ColSums returns the sum of every column.
func (d DenseOperator) ColSums() []float64 {
	r, c := d.Dims()
	sums := make([]float64, c)
	for i := range r {
		floats.Add(sums, d.RawRowView(i))
	}
	return sums
}

// ToSymDense copies a symmetric operator into a *mat.SymDense using the
// upper triangle.
func ToSymDense(op Operator) *mat.SymDense {
	n, _ := op.Dims()
	s := mat.NewSymDense(n, nil)
	switch m := op.(type) {
	case *CSRMatrix:
		for i := range n {
			for p := m.Indptr[i]; p < m.Indptr[i+1]; p++ {
				if j := int(m.Indices[p]); j >= i {
					s.SetSym(i, j, m.Data[p])
				}
			}
		}
	default:
		for i := range n {
			for j := i; j < n; j++ {
				s.SetSym(i, j, op.At(i, j))
			}
		}
	}
	return s
}

// ToDense materializes any operator.
func ToDense(op Operator) *mat.Dense {
	if c, ok := op.(*CSRMatrix); ok {
		return c.ToDense()
	}
	return mat.DenseCopyOf(op)
}
