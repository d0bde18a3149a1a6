// Package diffusion derives distances from a diffusion-map basis: diffusion
// pseudotime, the commute-time distance and mean first passage times.
//
// Every derived distance is exposed through Rows, whether it is generated
// row by row on demand (a *lazy.Matrix) or fully materialized (Dense).
package diffusion

import (
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/lazy"
)

// Rows gives row and element access to an N×N distance matrix.
type Rows interface {
	Row(i int) ([]float64, error)
	At(i, j int) (float64, error)
	Dims() (int, int)
}

var (
	_ Rows = (*lazy.Matrix)(nil)
	_ Rows = Dense{}
)

// Dense adapts a materialized matrix to Rows.
type Dense struct {
	M *mat.Dense
}

// Dims returns the matrix dimensions.
func (d Dense) Dims() (int, int) { return d.M.Dims() }

// Row returns a copy of row i.
func (d Dense) Row(i int) ([]float64, error) {
	r, _ := d.M.Dims()
	if i < 0 || i >= r {
		return nil, errs.New(errs.KindDimensionMismatch, "diffusion.Dense", "row %d out of range [0, %d)", i, r)
	}
	return mat.Row(nil, i, d.M), nil
}

// At returns element (i, j).
func (d Dense) At(i, j int) (float64, error) {
	r, c := d.M.Dims()
	if i < 0 || i >= r || j < 0 || j >= c {
		return 0, errs.New(errs.KindDimensionMismatch, "diffusion.Dense", "index (%d, %d) out of range for %d×%d", i, j, r, c)
	}
	return d.M.At(i, j), nil
}
