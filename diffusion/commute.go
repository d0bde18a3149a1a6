package diffusion

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/errs"
)

// LaplacianPinv returns the pseudoinverse Lp = Σ_{l≥1} (1/λ_l)·r_l l_lᵀ of
// the Laplacian whose spectrum (in increasing order) is the engine's basis.
// A zero eigenvalue past the first signals a disconnected graph.
func (e *Engine) LaplacianPinv() (*mat.Dense, error) {
	const op = "diffusion.LaplacianPinv"
	evals := e.Basis.Evals
	n, c := e.Basis.R.Dims()
	if c < 2 {
		return nil, errs.New(errs.KindConfiguration, op, "need at least 2 eigenpairs, got %d", c)
	}

	scale := floats.Max(absAll(evals))
	scaled := mat.DenseCopyOf(e.Basis.R.Slice(0, n, 1, c))
	for l := 1; l < c; l++ {
		if math.Abs(evals[l]) <= gapTol*scale {
			return nil, errs.New(errs.KindNumericDegeneracy, op,
				"Laplacian eigenvalue %d is zero: the graph is disconnected", l)
		}
		col := mat.Col(nil, l-1, scaled)
		floats.Scale(1/evals[l], col)
		scaled.SetCol(l-1, col)
	}

	var lp mat.Dense
	lp.Mul(scaled, e.Basis.L.Slice(0, n, 1, c).T())
	return &lp, nil
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

// CommuteTime returns the commute-time distances
// C[i,j] = (Lp_ii + Lp_jj − 2·Lp_ij)·Σz. The symmetric part of Lp is used so
// C is exactly symmetric with a zero diagonal.
func CommuteTime(lp *mat.Dense, z []float64) (*mat.SymDense, error) {
	n, c := lp.Dims()
	if n != c || len(z) != n {
		return nil, errs.New(errs.KindDimensionMismatch, "diffusion.CommuteTime", "Lp is %d×%d with %d degrees", n, c, len(z))
	}
	vol := floats.Sum(z)
	out := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i + 1; j < n; j++ {
			out.SetSym(i, j, (lp.At(i, i)+lp.At(j, j)-(lp.At(i, j)+lp.At(j, i)))*vol)
		}
	}
	return out, nil
}

// MeanFirstPassage returns the mean first passage times
// MFP[i,k] = Σ_j (Lp_ij − Lp_ik − Lp_kj + Lp_kk)·z_j, the expected number
// of steps a walk started at i needs to reach k. The sum is evaluated as
// (Lp z)_i − Lp_ik·Σz − (Lp z)_k + Lp_kk·Σz. MFP is not symmetric.
func MeanFirstPassage(lp *mat.Dense, z []float64) (*mat.Dense, error) {
	n, c := lp.Dims()
	if n != c || len(z) != n {
		return nil, errs.New(errs.KindDimensionMismatch, "diffusion.MeanFirstPassage", "Lp is %d×%d with %d degrees", n, c, len(z))
	}
	vol := floats.Sum(z)
	var lpz mat.VecDense
	lpz.MulVec(lp, mat.NewVecDense(n, z))

	out := mat.NewDense(n, n, nil)
	for i := range n {
		row := out.RawRowView(i)
		for k := range n {
			row[k] = lpz.AtVec(i) - lp.At(i, k)*vol - lpz.AtVec(k) + lp.At(k, k)*vol
		}
	}
	return out, nil
}
