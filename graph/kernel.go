package graph

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/internal/parallel"
	"github.com/nozzle/diffmap/nn"
)

// Flavor selects the kernel.
type Flavor string

const (
	// FlavorHaghverdi16 is the Gaussian kernel with adaptive bandwidths of
	// Haghverdi et al. (2016).
	FlavorHaghverdi16 Flavor = "haghverdi16"
	// FlavorUnweighted replaces weights by the 0/1 adjacency pattern.
	FlavorUnweighted Flavor = "unweighted"
)

// Valid reports whether f names a known kernel.
func (f Flavor) Valid() bool {
	return f == FlavorHaghverdi16 || f == FlavorUnweighted
}

// denseCutoff is the weight below which dense kernels store zero.
const denseCutoff = 1e-14

// KernelConfig configures kernel construction.
type KernelConfig struct {
	Flavor Flavor
	// KNN restricts weights to the neighbor support. When false the full
	// squared-distance matrix must be supplied.
	KNN bool
	// NumWorkers for parallel row processing (0 = auto)
	NumWorkers int
}

// DefaultKernelConfig returns default configuration.
func DefaultKernelConfig() KernelConfig {
	return KernelConfig{
		Flavor: FlavorHaghverdi16,
		KNN:    true,
	}
}

// Bandwidths returns the per-point kernel widths σ_i. In kNN mode σ²_i is
// the median of the point's neighbor squared distances; otherwise it is a
// quarter of the largest one.
func Bandwidths(g *nn.KNNGraph, knn bool) []float64 {
	sigmas := make([]float64, g.N)
	for i, row := range g.Distances {
		if len(row) == 0 {
			continue
		}
		var sq float64
		if knn {
			sq = median(row)
		} else {
			sq = float64(row[len(row)-1]) / 4
		}
		sigmas[i] = math.Sqrt(sq)
	}
	return sigmas
}

// median expects row sorted ascending.
func median(row []float32) float64 {
	n := len(row)
	if n%2 == 1 {
		return float64(row[n/2])
	}
	return (float64(row[n/2-1]) + float64(row[n/2])) / 2
}

// weight evaluates the adaptive Gaussian kernel for one pair. Two points
// with zero bandwidth are fully connected when they coincide and
// disconnected otherwise.
func weight(dsq, si, sj float64) float64 {
	den := si*si + sj*sj
	if den == 0 {
		if dsq == 0 {
			return 1
		}
		return 0
	}
	return math.Sqrt(2*si*sj/den) * math.Exp(-dsq/den)
}

// Kernel builds the symmetric weight matrix W. In kNN mode the result is a
// *CSRMatrix over the symmetrized neighbor support; otherwise dsq holds the
// full squared-distance matrix and a DenseOperator is returned.
func Kernel(g *nn.KNNGraph, dsq *mat.Dense, config KernelConfig) (Operator, error) {
	const op = "graph.Kernel"
	if !config.Flavor.Valid() {
		return nil, errs.New(errs.KindConfiguration, op, "unknown kernel flavor %q", config.Flavor)
	}
	if config.Flavor == FlavorUnweighted {
		if !config.KNN {
			return nil, errs.New(errs.KindConfiguration, op, "the unweighted kernel requires knn mode")
		}
		return Unweighted(g), nil
	}

	sigmas := Bandwidths(g, config.KNN)
	if config.KNN {
		return sparseKernel(SparseDistanceMatrix(g), sigmas, config.NumWorkers), nil
	}

	if dsq == nil {
		return nil, errs.New(errs.KindConfiguration, op, "dense kernel needs the full squared-distance matrix")
	}
	if r, c := dsq.Dims(); r != g.N || c != g.N {
		return nil, errs.New(errs.KindDimensionMismatch, op, "distance matrix is %d×%d for %d points", r, c, g.N)
	}
	return denseKernel(dsq, sigmas, config.NumWorkers), nil
}

// sparseKernel evaluates weights on the stored entries of dsq, then copies
// every edge whose reverse is absent.
func sparseKernel(dsq *CSRMatrix, sigmas []float64, numWorkers int) *CSRMatrix {
	w := dsq.Clone()
	parallel.ParallelFor(0, w.NRows, parallel.Resolve(numWorkers), func(i int) {
		for p := w.Indptr[i]; p < w.Indptr[i+1]; p++ {
			w.Data[p] = weight(dsq.Data[p], sigmas[i], sigmas[w.Indices[p]])
		}
	})
	return Symmetrize(w)
}

// denseKernel fills W from the upper triangle and mirrors it so W is
// exactly symmetric.
func denseKernel(dsq *mat.Dense, sigmas []float64, numWorkers int) DenseOperator {
	n := len(sigmas)
	w := mat.NewDense(n, n, nil)
	parallel.ParallelFor(0, n, parallel.Resolve(numWorkers), func(i int) {
		for j := i; j < n; j++ {
			v := weight(dsq.At(i, j), sigmas[i], sigmas[j])
			if v < denseCutoff {
				v = 0
			}
			w.Set(i, j, v)
		}
	})
	for i := range n {
		for j := i + 1; j < n; j++ {
			w.Set(j, i, w.At(i, j))
		}
	}
	return DenseOperator{w}
}

// Unweighted returns the symmetrized 0/1 pattern of the neighbor graph.
// Zero distances between duplicates do not count as edges.
func Unweighted(g *nn.KNNGraph) *CSRMatrix {
	rows := make([]int32, 0, g.N*g.K)
	cols := make([]int32, 0, g.N*g.K)
	data := make([]float64, 0, g.N*g.K)
	for i := range g.N {
		for p, j := range g.Indices[i] {
			if j < 0 || g.Distances[i][p] <= 0 {
				continue
			}
			rows = append(rows, int32(i))
			cols = append(cols, j)
			data = append(data, 1)
		}
	}
	return Symmetrize(cooToCSR(rows, cols, data, g.N, g.N))
}

// Symmetrize makes w symmetric: for every stored (i, j) whose reverse is
// absent, (j, i) receives the same value. Where both directions are
// stored, the value from the lower row index wins so the result is exactly
// symmetric.
func Symmetrize(w *CSRMatrix) *CSRMatrix {
	rows := make([]int32, 0, 2*w.NNZ)
	cols := make([]int32, 0, 2*w.NNZ)
	data := make([]float64, 0, 2*w.NNZ)

	for i := range w.NRows {
		for p := w.Indptr[i]; p < w.Indptr[i+1]; p++ {
			j := int(w.Indices[p])
			v := w.Data[p]
			switch {
			case j == i:
				rows, cols, data = append(rows, int32(i)), append(cols, int32(j)), append(data, v)
			case !w.Has(j, i):
				rows = append(rows, int32(i), int32(j))
				cols = append(cols, int32(j), int32(i))
				data = append(data, v, v)
			case i < j:
				rows = append(rows, int32(i), int32(j))
				cols = append(cols, int32(j), int32(i))
				data = append(data, v, v)
			}
		}
	}
	return cooToCSR(rows, cols, data, w.NRows, w.NCols)
}
