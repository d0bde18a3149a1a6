package spectral

import (
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/errs"
)

// Basis is an ordered spectrum with its right and left eigenbases stored as
// columns. Column 0 is the stationary component.
type Basis struct {
	Evals []float64
	// R holds the right eigenvectors; rows are points.
	R *mat.Dense
	// L holds the left eigenvectors. In symmetric mode L and R are the same
	// matrix.
	L *mat.Dense
	// Symmetric reports whether L == R.
	Symmetric bool
}

// NewBasis turns eigenvectors of Ktilde into bases of T. In symmetric mode
// both bases are the eigenvectors themselves; otherwise rows are divided
// (right) and multiplied (left) by √z.
func NewBasis(res *Result, sqrtz []float64, symmetric bool) (*Basis, error) {
	if symmetric {
		return &Basis{Evals: res.Values, R: res.Vectors, L: res.Vectors, Symmetric: true}, nil
	}

	n, c := res.Vectors.Dims()
	if sqrtz == nil {
		return nil, errs.New(errs.KindConfiguration, "spectral.NewBasis", "non-symmetric basis needs the degree vector z")
	}
	if len(sqrtz) != n {
		return nil, errs.New(errs.KindDimensionMismatch, "spectral.NewBasis", "%d eigenvector rows, %d degrees", n, len(sqrtz))
	}

	r := mat.NewDense(n, c, nil)
	l := mat.NewDense(n, c, nil)
	r.Apply(func(i, j int, v float64) float64 { return v / sqrtz[i] }, res.Vectors)
	l.Apply(func(i, j int, v float64) float64 { return v * sqrtz[i] }, res.Vectors)
	return &Basis{Evals: res.Values, R: r, L: l}, nil
}

// Embedding returns the right basis without the stationary column together
// with the matching eigenvalues.
func (b *Basis) Embedding() (*mat.Dense, []float64) {
	n, c := b.R.Dims()
	if c < 2 {
		return nil, nil
	}
	y := mat.DenseCopyOf(b.R.Slice(0, n, 1, c))
	return y, append([]float64(nil), b.Evals[1:]...)
}

// N returns the number of points.
func (b *Basis) N() int {
	n, _ := b.R.Dims()
	return n
}

// Len returns the number of eigenpairs, stationary component included.
func (b *Basis) Len() int { return len(b.Evals) }
