package diffusion

import (
	"math"

	"github.com/viterin/vek"

	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/lazy"
	"github.com/nozzle/diffmap/spectral"
)

// Engine computes derived distances from a spectral basis.
type Engine struct {
	Basis *spectral.Basis
	// Z holds the degrees of the kernel; needed by commute and passage times.
	Z []float64
	// DCStart and DCEnd select the diffusion components [DCStart, DCEnd)
	// entering pseudotime. DCEnd <= 0 means all of them.
	DCStart, DCEnd int
	// NumWorkers for parallel row chunks (0 = auto)
	NumWorkers int
}

// window resolves the component range and checks it against the basis.
func (e *Engine) window() (int, int, error) {
	n := e.Basis.Len()
	end := e.DCEnd
	if end <= 0 {
		end = n
	}
	if e.DCStart < 0 || e.DCStart >= end || end > n {
		return 0, 0, errs.New(errs.KindConfiguration, "diffusion.Engine",
			"component window [%d, %d) invalid for %d eigenvalues", e.DCStart, e.DCEnd, n)
	}
	return e.DCStart, end, nil
}

// gapTol is the distance to 1 (transition spectra) or 0 (Laplacian
// spectra) below which a non-stationary eigenvalue counts as a second
// stationary one.
const gapTol = 1e-12

// dptWeights returns λ_l/(1−λ_l) for l ≥ 1; index 0 is left at 1 for the
// stationary component. An eigenvalue of 1 past the first signals a
// disconnected graph.
func dptWeights(evals []float64, start, end int) ([]float64, error) {
	w := make([]float64, len(evals))
	w[0] = 1
	for l := max(start, 1); l < end; l++ {
		if math.Abs(1-evals[l]) <= gapTol {
			return nil, errs.New(errs.KindNumericDegeneracy, "diffusion.Engine",
				"eigenvalue %d equals 1: the graph is disconnected", l)
		}
		w[l] = evals[l] / (1 - evals[l])
	}
	return w, nil
}

// PseudotimeRow returns the diffusion pseudotime distances from point i to
// every point:
//
//	row[j] = √(Σ_l (λ_l/(1−λ_l)·(r[i,l] − l[j,l]))² + [start == 0]·(r[i,0] − l[j,0])²)
//
// with l ranging over [max(start,1), end). The basis must be symmetric.
func (e *Engine) PseudotimeRow(i int) ([]float64, error) {
	const op = "diffusion.PseudotimeRow"
	if !e.Basis.Symmetric {
		return nil, errs.New(errs.KindConfiguration, op, "pseudotime needs a symmetric basis")
	}
	n := e.Basis.N()
	if i < 0 || i >= n {
		return nil, errs.New(errs.KindDimensionMismatch, op, "row %d out of range [0, %d)", i, n)
	}
	start, end, err := e.window()
	if err != nil {
		return nil, err
	}
	w, err := dptWeights(e.Basis.Evals, start, end)
	if err != nil {
		return nil, err
	}

	r, l := e.Basis.R, e.Basis.L
	row := make([]float64, n)
	diff := make([]float64, n)
	sq := make([]float64, n)
	add := func(c int, weight float64) {
		ri := r.At(i, c)
		for j := range n {
			diff[j] = weight * (ri - l.At(j, c))
		}
		// vek rejects aliased operands
		vek.Mul_Into(sq, diff, diff)
		vek.Add_Inplace(row, sq)
	}
	for c := max(start, 1); c < end; c++ {
		add(c, w[c])
	}
	if start == 0 {
		add(0, 1)
	}
	vek.Sqrt_Inplace(row)
	return row, nil
}

// Lazy returns the pseudotime distance matrix generated row by row on
// first access.
func (e *Engine) Lazy(opts ...lazy.Option) (*lazy.Matrix, error) {
	if !e.Basis.Symmetric {
		return nil, errs.New(errs.KindConfiguration, "diffusion.Lazy", "pseudotime needs a symmetric basis")
	}
	if _, _, err := e.window(); err != nil {
		return nil, err
	}
	return lazy.New(e.PseudotimeRow, e.Basis.N(), opts...)
}

// Normalize divides a distance row by its maximum, giving pseudotime in
// [0, 1]. A row of zeros is returned unchanged.
func Normalize(row []float64) []float64 {
	out := append([]float64(nil), row...)
	if len(out) == 0 {
		return out
	}
	hi := vek.Max(out)
	if hi > 0 && !math.IsInf(hi, 0) {
		vek.DivNumber_Inplace(out, hi)
	}
	return out
}
