package spectral

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/graph"
	"github.com/nozzle/diffmap/internal/rand"
)

// shifted applies σI − A. For a positive semi-definite A its dominant
// eigenpairs are the smallest eigenpairs of A.
type shifted struct {
	a     graph.Operator
	sigma float64
}

func (s shifted) MulVecTo(dst, x []float64) {
	s.a.MulVecTo(dst, x)
	for i := range dst {
		dst[i] = s.sigma*x[i] - dst[i]
	}
}

type vecOperator interface {
	MulVecTo(dst, x []float64)
}

// subspaceIteration computes the nev dominant eigenpairs of a with a block
// of b > nev vectors, projecting onto the block (Rayleigh–Ritz) on every
// iteration. For Increase the operator is shifted by its Gershgorin bound.
func subspaceIteration(a graph.Operator, nev int, opts Options) (*Result, error) {
	n, _ := a.Dims()
	var op vecOperator = a
	var sigma float64
	if opts.Order == Increase {
		sigma = gershgorin(a)
		op = shifted{a: a, sigma: sigma}
	}

	maxIter := opts.MaxIter
	if maxIter <= 0 {
		maxIter = DefaultOptions().MaxIter
	}
	tol := opts.Tol
	if tol <= 0 {
		tol = DefaultOptions().Tol
	}

	b := min(n, max(2*nev, nev+10))
	rng := rand.NewMT19937(uint32(opts.Seed))

	q := newBlock(b, n)
	aq := newBlock(b, n)
	tmp := newBlock(b, n)
	for j := range q {
		rng.FillUniform(q[j], -1, 1)
	}
	orthonormalize(q, rng)

	h := mat.NewSymDense(b, nil)
	theta := make([]float64, b)
	idx := make([]int, b)
	var eig mat.EigenSym
	var v mat.Dense

	for range maxIter {
		for j := range q {
			op.MulVecTo(aq[j], q[j])
		}
		for r := range b {
			for c := r; c < b; c++ {
				h.SetSym(r, c, (floats.Dot(q[r], aq[c])+floats.Dot(q[c], aq[r]))/2)
			}
		}
		if !eig.Factorize(h, true) {
			return nil, errs.New(errs.KindNumericDegeneracy, "spectral.Decompose", "Rayleigh–Ritz projection did not converge")
		}
		vals := eig.Values(nil)
		eig.VectorsTo(&v)

		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(p, r int) bool { return math.Abs(vals[idx[p]]) > math.Abs(vals[idx[r]]) })
		for l, i := range idx {
			theta[l] = vals[i]
		}

		rotate(tmp, q, &v, idx)
		q, tmp = tmp, q
		rotate(tmp, aq, &v, idx)
		aq, tmp = tmp, aq

		if converged(q, aq, theta[:nev], tol) {
			values := make([]float64, nev)
			vectors := mat.NewDense(n, nev, nil)
			order := make([]int, nev)
			for l := range nev {
				values[l] = theta[l]
				if opts.Order == Increase {
					values[l] = sigma - theta[l]
				}
				vectors.SetCol(l, q[l])
				order[l] = l
			}
			return sortedResult(values, vectors, order, opts.Order), nil
		}

		for j := range q {
			copy(q[j], aq[j])
		}
		orthonormalize(q, rng)
	}

	return nil, errs.New(errs.KindNumericDegeneracy, "spectral.Decompose",
		"%d eigenpairs did not converge in %d iterations", nev, maxIter)
}

func newBlock(b, n int) [][]float64 {
	block := make([][]float64, b)
	for j := range block {
		block[j] = make([]float64, n)
	}
	return block
}

// rotate sets dst[l] = Σ_c src[c]·v[c, idx[l]].
func rotate(dst, src [][]float64, v *mat.Dense, idx []int) {
	for l, col := range idx {
		out := dst[l]
		for i := range out {
			out[i] = 0
		}
		for c, s := range src {
			floats.AddScaled(out, v.At(c, col), s)
		}
	}
}

// converged reports whether every Ritz pair (theta[l], q[l]) has residual
// ‖A q − θ q‖ within tol relative to the dominant Ritz value.
func converged(q, aq [][]float64, theta []float64, tol float64) bool {
	scale := math.Abs(theta[0])
	r := make([]float64, len(q[0]))
	for l, t := range theta {
		floats.ScaleTo(r, -t, q[l])
		floats.Add(r, aq[l])
		if floats.Norm(r, 2) > tol*scale {
			return false
		}
	}
	return true
}

// orthonormalize runs modified Gram–Schmidt twice over the columns. A column
// that vanishes is replaced by a fresh random vector.
func orthonormalize(q [][]float64, rng *rand.MT19937) {
	for j := range q {
		for attempt := 0; ; attempt++ {
			before := floats.Norm(q[j], 2)
			for range 2 {
				for i := range j {
					floats.AddScaled(q[j], -floats.Dot(q[i], q[j]), q[i])
				}
			}
			nrm := floats.Norm(q[j], 2)
			if nrm > 1e-10*before && nrm > 0 || attempt == 3 {
				if nrm > 0 {
					floats.Scale(1/nrm, q[j])
				}
				break
			}
			rng.FillUniform(q[j], -1, 1)
		}
	}
}

// gershgorin bounds the spectral radius of a by its largest absolute row
// sum.
func gershgorin(a graph.Operator) float64 {
	n, _ := a.Dims()
	var hi float64
	if m, ok := a.(*graph.CSRMatrix); ok {
		for i := range n {
			_, vals := m.GetRow(i)
			hi = math.Max(hi, floats.Norm(vals, 1))
		}
		return hi
	}
	for i := range n {
		var s float64
		for j := range n {
			s += math.Abs(a.At(i, j))
		}
		hi = math.Max(hi, s)
	}
	return hi
}
