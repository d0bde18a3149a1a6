package distance

import (
	"github.com/viterin/vek"
	"gonum.org/v1/gonum/mat"
)

// SquaredNorms returns ‖x_i‖² for every row of x.
func SquaredNorms(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := range r {
		row := x.RawRowView(i)
		out[i] = vek.Dot(row, row)
	}
	return out
}

// SquaredCross writes the squared Euclidean distances between every row of a
// and every row of b into dst (ra×rb). aNorms and bNorms are the rows'
// squared norms; pass nil to compute them. Negative round-off is clamped to 0.
func SquaredCross(dst *mat.Dense, a, b *mat.Dense, aNorms, bNorms []float64) {
	if aNorms == nil {
		aNorms = SquaredNorms(a)
	}
	if bNorms == nil {
		bNorms = SquaredNorms(b)
	}

	dst.Mul(a, b.T())
	ra, rb := dst.Dims()
	for i := range ra {
		row := dst.RawRowView(i)
		for j := range rb {
			d := aNorms[i] + bNorms[j] - 2*row[j]
			if d < 0 {
				d = 0
			}
			row[j] = d
		}
	}
}

// Pairwise returns the symmetric matrix of Euclidean distances between the
// rows of x, with an exact zero diagonal.
func Pairwise(x *mat.Dense) *mat.SymDense {
	n, _ := x.Dims()

	var gram mat.SymDense
	gram.SymOuterK(1, x)

	norms := make([]float64, n)
	for i := range n {
		norms[i] = gram.At(i, i)
	}

	out := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i + 1; j < n; j++ {
			out.SetSym(i, j, sqrt(norms[i]+norms[j]-2*gram.At(i, j)))
		}
	}
	return out
}
