package diffusion

import (
	"runtime"
	"runtime/debug"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/distance"
	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/internal/parallel"
	"github.com/nozzle/diffmap/pca"
)

const (
	// DefaultMaxMemory caps the budget when none is configured.
	DefaultMaxMemory = 4 << 30

	// bytesPerEntry estimates the peak footprint of one M entry while M
	// and its distance matrix are built.
	bytesPerEntry = 23.0 / 8

	// budgetFraction of the limit that M may bring memory usage up to.
	budgetFraction = 0.9

	// maxMWorkers is the worker count from which M is never materialized;
	// generating rows on demand scales better there.
	maxMWorkers = 4

	// postReduceMin is the size above which M is PCA-reduced before
	// pairwise distances are taken.
	postReduceMin = 1000
)

// MConfig configures materialization of the M matrix.
type MConfig struct {
	// MaxMemory in bytes; 0 uses the runtime memory limit capped at
	// DefaultMaxMemory.
	MaxMemory uint64
	// NumWorkers for parallel row chunks (0 = auto)
	NumWorkers int
}

// MemoryLimit resolves a configured memory budget.
func MemoryLimit(maxMemory uint64) uint64 {
	if maxMemory > 0 {
		return maxMemory
	}
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || uint64(limit) > DefaultMaxMemory {
		return DefaultMaxMemory
	}
	return uint64(limit)
}

// Budget reports the memory M for n points needs and what the process
// currently uses, and whether both fit under the limit.
func Budget(n int, maxMemory uint64) (need, used uint64, ok bool) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	need = uint64(float64(n) * float64(n) * bytesPerEntry)
	used = ms.HeapAlloc
	return need, used, float64(used+need) < budgetFraction*float64(MemoryLimit(maxMemory))
}

// mWeights returns λ_l/(1−λ_l) over all components.
func (e *Engine) mWeights() ([]float64, error) {
	return dptWeights(e.Basis.Evals, 0, e.Basis.Len())
}

// lcols copies the columns of the left basis into contiguous slices.
func (e *Engine) lcols() [][]float64 {
	_, c := e.Basis.L.Dims()
	cols := make([][]float64, c)
	for l := range cols {
		cols[l] = mat.Col(nil, l, e.Basis.L)
	}
	return cols
}

// mRowInto writes row i of M = Σ_{l≥1} λ_l/(1−λ_l)·r_l l_lᵀ + r_0 l_0ᵀ.
func (e *Engine) mRowInto(dst []float64, i int, w []float64, lcols [][]float64) {
	for j := range dst {
		dst[j] = 0
	}
	for l, col := range lcols {
		floats.AddScaled(dst, w[l]*e.Basis.R.At(i, l), col)
	}
}

// MRow returns row i of M.
func (e *Engine) MRow(i int) ([]float64, error) {
	n := e.Basis.N()
	if i < 0 || i >= n {
		return nil, errs.New(errs.KindDimensionMismatch, "diffusion.MRow", "row %d out of range [0, %d)", i, n)
	}
	w, err := e.mWeights()
	if err != nil {
		return nil, err
	}
	row := make([]float64, n)
	e.mRowInto(row, i, w, e.lcols())
	return row, nil
}

// MMatrix materializes M, computing rows in parallel chunks. It returns a
// ResourceExhaustion error, leaving callers on the on-the-fly path, when
// the matrix does not fit the memory budget or when at least four workers
// are available.
func (e *Engine) MMatrix(cfg MConfig) (*mat.Dense, error) {
	const op = "diffusion.MMatrix"
	n := e.Basis.N()
	workers := parallel.Resolve(cfg.NumWorkers)
	if workers >= maxMWorkers {
		return nil, errs.New(errs.KindResourceExhaustion, op, "skipped with %d workers, rows are generated on demand", workers)
	}
	if need, used, ok := Budget(n, cfg.MaxMemory); !ok {
		return nil, errs.New(errs.KindResourceExhaustion, op,
			"M needs %d bytes with %d in use, limit %d", need, used, MemoryLimit(cfg.MaxMemory))
	}

	w, err := e.mWeights()
	if err != nil {
		return nil, err
	}
	lcols := e.lcols()
	m := mat.NewDense(n, n, nil)
	lenChunk := (n + workers - 1) / workers
	parallel.ParallelForChunked(0, n, lenChunk, workers, func(start, end int) {
		for i := start; i < end; i++ {
			e.mRowInto(m.RawRowView(i), i, w, lcols)
		}
	})
	return m, nil
}

// DdiffMatrix returns the Euclidean distances between the rows of M. Above
// a thousand points with nPCsPost > 0, M is first projected onto nPCsPost
// principal components, which approximates the distances; reduced reports
// whether that happened.
func DdiffMatrix(m *mat.Dense, nPCsPost int, reduce pca.Func) (d *mat.SymDense, reduced bool, err error) {
	n, c := m.Dims()
	x := m
	if n > postReduceMin && nPCsPost > 0 && c > nPCsPost {
		if reduce == nil {
			reduce = pca.Reduce
		}
		x, err = reduce(m, nPCsPost)
		if err != nil {
			kind := errs.KindOf(err)
			if kind == "" {
				kind = errs.KindNumericDegeneracy
			}
			return nil, false, errs.Wrap(kind, "diffusion.DdiffMatrix", err, "reduce M")
		}
		reduced = true
	}
	return distance.Pairwise(x), reduced, nil
}
