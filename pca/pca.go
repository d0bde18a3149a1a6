// Package pca reduces a data matrix to its leading principal components.
package pca

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/nozzle/diffmap/errs"
)

// Func projects the rows of x onto nComps principal components.
type Func func(x *mat.Dense, nComps int) (*mat.Dense, error)

var _ Func = Reduce

// Reduce centers x and projects it onto its first nComps principal axes,
// computed with gonum's SVD-based stat.PC. nComps is clamped to the number
// of available components.
func Reduce(x *mat.Dense, nComps int) (*mat.Dense, error) {
	y, _, err := Fit(x, nComps)
	return y, err
}

// Fit is Reduce that also returns the variances along the kept axes.
func Fit(x *mat.Dense, nComps int) (*mat.Dense, []float64, error) {
	const op = "pca.Reduce"
	n, d := x.Dims()
	if nComps < 1 {
		return nil, nil, errs.New(errs.KindConfiguration, op, "n_comps must be positive, got %d", nComps)
	}
	if n < 2 {
		return nil, nil, errs.New(errs.KindConfiguration, op, "need at least 2 rows, got %d", n)
	}

	var pc stat.PC
	if !pc.PrincipalComponents(x, nil) {
		return nil, nil, errs.New(errs.KindNumericDegeneracy, op, "SVD of the %d×%d data matrix failed", n, d)
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, avail := vecs.Dims()
	nComps = min(nComps, avail)
	vars := pc.VarsTo(nil)

	centered := mat.DenseCopyOf(x)
	col := make([]float64, n)
	for j := range d {
		mat.Col(col, j, x)
		mean := stat.Mean(col, nil)
		for i := range n {
			centered.Set(i, j, centered.At(i, j)-mean)
		}
	}

	var out mat.Dense
	out.Mul(centered, vecs.Slice(0, d, 0, nComps))
	return &out, vars[:min(nComps, len(vars))], nil
}
