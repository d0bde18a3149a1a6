// Package spectral computes eigendecompositions of the symmetric graph
// operators and turns them into diffusion-map bases.
//
// Decompose uses a full dense symmetric solver (gonum mat.EigenSym) when the
// whole spectrum is requested or the operator is small, and a block
// subspace iteration with Rayleigh–Ritz projection otherwise.
package spectral

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/graph"
)

// Order selects which end of the spectrum is computed and how it is sorted.
type Order int

const (
	// Decrease returns the largest-magnitude eigenvalues, sorted descending.
	Decrease Order = iota
	// Increase returns the smallest eigenvalues, sorted ascending.
	Increase
)

func (o Order) String() string {
	if o == Increase {
		return "increase"
	}
	return "decrease"
}

// ParseOrder converts "decrease" or "increase" to an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "decrease", "":
		return Decrease, nil
	case "increase":
		return Increase, nil
	}
	return Decrease, errs.New(errs.KindConfiguration, "spectral.ParseOrder", "unknown sort order %q", s)
}

// Options configures Decompose.
type Options struct {
	// NEvals is the number of eigenpairs; 0 requests the full spectrum.
	// Values above N-1 are clamped.
	NEvals int
	// Order of the returned spectrum.
	Order Order
	// DenseThreshold is the largest N solved with the dense solver when
	// only part of the spectrum is requested.
	DenseThreshold int
	// MaxIter bounds the subspace iterations of the partial solver.
	MaxIter int
	// Tol is the relative residual at which a Ritz pair has converged.
	Tol float64
	// Seed for the starting block of the partial solver.
	Seed int64
}

// DefaultOptions returns default options.
func DefaultOptions() Options {
	return Options{
		NEvals:         15,
		Order:          Decrease,
		DenseThreshold: 2000,
		MaxIter:        5000,
		Tol:            1e-9,
		Seed:           42,
	}
}

// Result holds eigenvalues and the matching eigenvectors as columns.
type Result struct {
	Values  []float64
	Vectors *mat.Dense
}

// Decompose computes eigenpairs of the symmetric operator a. Eigenvectors
// stay paired with their eigenvalues through sorting.
func Decompose(a graph.Operator, opts Options) (*Result, error) {
	const op = "spectral.Decompose"
	n, c := a.Dims()
	if n != c {
		return nil, errs.New(errs.KindDimensionMismatch, op, "operator is %d×%d, want square", n, c)
	}
	if n < 2 {
		return nil, errs.New(errs.KindConfiguration, op, "need at least 2 points, got %d", n)
	}
	if opts.NEvals < 0 {
		return nil, errs.New(errs.KindConfiguration, op, "n_evals must be non-negative, got %d", opts.NEvals)
	}

	nev := opts.NEvals
	if nev > n-1 {
		nev = n - 1
	}
	if nev == 0 || n <= opts.DenseThreshold {
		return denseDecompose(a, nev, opts.Order)
	}
	return subspaceIteration(a, nev, opts)
}

func denseDecompose(a graph.Operator, nev int, order Order) (*Result, error) {
	var eig mat.EigenSym
	if !eig.Factorize(graph.ToSymDense(a), true) {
		return nil, errs.New(errs.KindNumericDegeneracy, "spectral.Decompose", "dense eigendecomposition did not converge")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	if nev > 0 {
		// Keep the nev eigenvalues of largest (Decrease) or smallest
		// (Increase) magnitude.
		sort.SliceStable(idx, func(p, q int) bool {
			ap, aq := math.Abs(values[idx[p]]), math.Abs(values[idx[q]])
			if order == Increase {
				return ap < aq
			}
			return ap > aq
		})
		idx = idx[:nev]
	}
	return sortedResult(values, &vectors, idx, order), nil
}

// sortedResult gathers the selected pairs sorted by value in the requested
// order.
func sortedResult(values []float64, vectors *mat.Dense, idx []int, order Order) *Result {
	sort.SliceStable(idx, func(p, q int) bool {
		if order == Increase {
			return values[idx[p]] < values[idx[q]]
		}
		return values[idx[p]] > values[idx[q]]
	})

	n, _ := vectors.Dims()
	res := &Result{
		Values:  make([]float64, len(idx)),
		Vectors: mat.NewDense(n, len(idx), nil),
	}
	col := make([]float64, n)
	for l, i := range idx {
		res.Values[l] = values[i]
		mat.Col(col, i, vectors)
		res.Vectors.SetCol(l, col)
	}
	return res
}
