package graph

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/errs"
)

// TransitionConfig configures the density normalization.
type TransitionConfig struct {
	// Alpha is the density rescaling exponent of Coifman and Lafon (2006).
	// 1 removes the sampling density, 0 keeps W unchanged.
	Alpha float64
	// RelTol rejects degrees below RelTol·max(degree).
	RelTol float64
}

// DefaultTransitionConfig returns default configuration.
func DefaultTransitionConfig() TransitionConfig {
	return TransitionConfig{
		Alpha:  1,
		RelTol: 1e-12,
	}
}

// Transition holds the operators derived from a weight matrix W.
type Transition struct {
	// K is the anisotropic kernel W/(q_i q_j)^α.
	K Operator
	// T is the row-stochastic transition matrix K/z_i.
	T Operator
	// Ktilde is the symmetric conjugate K/√(z_i z_j); it has the spectrum of T.
	Ktilde Operator
	// Z holds the column sums of K.
	Z []float64
	// SqrtZ is the element-wise square root of Z.
	SqrtZ []float64
}

// NewTransition normalizes w into K, T and Ktilde. Sparse inputs keep their
// sparsity pattern. A point whose degree is not positive and finite, or is
// negligible next to the largest degree, yields a NumericDegeneracy error.
func NewTransition(w Operator, config TransitionConfig) (*Transition, error) {
	const op = "graph.NewTransition"
	if r, c := w.Dims(); r != c {
		return nil, errs.New(errs.KindDimensionMismatch, op, "weight matrix is %d×%d, want square", r, c)
	}

	k := w
	if config.Alpha != 0 {
		q := ColSums(w)
		if err := checkDegrees(op, "q", q, config.RelTol); err != nil {
			return nil, err
		}
		if config.Alpha != 1 {
			for i := range q {
				q[i] = math.Pow(q[i], config.Alpha)
			}
		}
		k = scale(w, func(i, j int, v float64) float64 { return v / (q[i] * q[j]) })
	}

	z := ColSums(k)
	if err := checkDegrees(op, "z", z, config.RelTol); err != nil {
		return nil, err
	}
	sqrtz := make([]float64, len(z))
	for i, v := range z {
		sqrtz[i] = math.Sqrt(v)
	}

	return &Transition{
		K:      k,
		T:      scale(k, func(i, _ int, v float64) float64 { return v / z[i] }),
		Ktilde: scale(k, func(i, j int, v float64) float64 { return v / (sqrtz[i] * sqrtz[j]) }),
		Z:      z,
		SqrtZ:  sqrtz,
	}, nil
}

// Laplacian returns L = diag(z) − k, keeping k's storage shape.
func Laplacian(k Operator, z []float64) Operator {
	n := len(z)
	switch m := k.(type) {
	case *CSRMatrix:
		rows := make([]int32, 0, m.NNZ+n)
		cols := make([]int32, 0, m.NNZ+n)
		data := make([]float64, 0, m.NNZ+n)
		for i := range n {
			rows, cols, data = append(rows, int32(i)), append(cols, int32(i)), append(data, z[i])
			for p := m.Indptr[i]; p < m.Indptr[i+1]; p++ {
				rows, cols, data = append(rows, int32(i)), append(cols, m.Indices[p]), append(data, -m.Data[p])
			}
		}
		return cooToCSR(rows, cols, data, n, n)
	default:
		l := mat.NewDense(n, n, nil)
		l.Scale(-1, k)
		for i := range n {
			l.Set(i, i, l.At(i, i)+z[i])
		}
		return DenseOperator{l}
	}
}

// ColSums returns the column sums of any operator.
func ColSums(m Operator) []float64 {
	switch t := m.(type) {
	case *CSRMatrix:
		return t.ColSums()
	case DenseOperator:
		return t.ColSums()
	default:
		_, c := m.Dims()
		sums := make([]float64, c)
		for j := range c {
			sums[j] = floats.Sum(mat.Col(nil, j, m))
		}
		return sums
	}
}

// scale returns a copy of m with every stored entry mapped through f.
func scale(m Operator, f func(i, j int, v float64) float64) Operator {
	switch t := m.(type) {
	case *CSRMatrix:
		out := t.Clone()
		for i := range out.NRows {
			for p := out.Indptr[i]; p < out.Indptr[i+1]; p++ {
				out.Data[p] = f(i, int(out.Indices[p]), out.Data[p])
			}
		}
		return out
	default:
		d := mat.DenseCopyOf(m)
		d.Apply(f, d)
		return DenseOperator{d}
	}
}

func checkDegrees(op, name string, v []float64, relTol float64) error {
	if len(v) == 0 {
		return nil
	}
	hi := floats.Max(v)
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 || x < relTol*hi {
			return errs.New(errs.KindNumericDegeneracy, op,
				"point %d has %s = %g: it is isolated in the graph, increase k or remove outliers", i, name, x)
		}
	}
	return nil
}
