package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/errs"
)

// machinePrecisionSq stops the root scan once a point matches the
// reference this closely.
const machinePrecisionSq = 1e-20

// Nearest returns the index of the row of x closest to ref in squared
// Euclidean distance, together with that squared distance.
// ref must have as many entries as x has columns.
func Nearest(x mat.Matrix, ref []float64) (int, float64, error) {
	n, d := x.Dims()
	if len(ref) != d {
		return 0, 0, errs.New(errs.KindDimensionMismatch, "nn.Nearest",
			"reference vector has %d entries, points have %d features (pass the reduced vector when the graph is built on PCA coordinates)",
			len(ref), d)
	}

	best, bestSq := 0, math.Inf(1)
	row := make([]float64, d)
	for i := range n {
		mat.Row(row, i, x)
		dist := floats.Distance(row, ref, 2)
		if dsq := dist * dist; dsq < bestSq {
			best, bestSq = i, dsq
			if bestSq < machinePrecisionSq {
				break
			}
		}
	}
	return best, bestSq, nil
}
