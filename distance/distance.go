// Package distance provides the Euclidean metrics used to build neighbor
// graphs and to turn diffusion coordinates into distance matrices.
//
// Vector metrics work on float32 rows (the approximate neighbor index keeps
// its copy of the data in reduced precision). Matrix routines work on gonum
// matrices and use the expansion ‖a−b‖² = ‖a‖² + ‖b‖² − 2·a·b so the
// expensive part is a single matrix multiplication.
package distance

import "math"

// Func is a distance function between two vectors.
type Func func(x, y []float32) float32

// SquaredEuclidean computes the squared Euclidean distance.
// D(x, y) = sum((x_i - y_i)^2)
func SquaredEuclidean(x, y []float32) float32 {
	var sum float32
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum
}

func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Sqrt(x)
}
