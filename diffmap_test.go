package diffmap

import (
	"bytes"
	"math"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/graph"
	"github.com/nozzle/diffmap/spectral"
)

func generateTestData(n, dim int, seed int64) *mat.Dense {
	x := mat.NewDense(n, dim, nil)
	rng := seed
	for i := range n {
		for j := range dim {
			rng = (rng*6364136223846793005 + 1442695040888963407) & 0x7FFFFFFF
			x.Set(i, j, float64(rng)/float64(0x7FFFFFFF))
		}
	}
	return x
}

// generateCurve samples n points along a planar curve with a little noise
// in a third dimension.
func generateCurve(n int) *mat.Dense {
	noise := generateTestData(n, 1, 7)
	x := mat.NewDense(n, 3, nil)
	for i := range n {
		t := float64(i) / float64(n-1)
		x.Set(i, 0, 4*t)
		x.Set(i, 1, math.Sin(2*math.Pi*t))
		x.Set(i, 2, 0.05*noise.At(i, 0))
	}
	return x
}

func testConfig(k int) Config {
	cfg := DefaultConfig()
	cfg.K = k
	cfg.NumWorkers = 1
	return cfg
}

func TestDiffmapShape(t *testing.T) {
	g, err := New(Input{X: generateTestData(200, 5, 42)}, testConfig(10))
	require.NoError(t, err)

	y, evals, err := g.Diffmap(5)
	require.NoError(t, err)
	r, c := y.Dims()
	assert.Equal(t, 200, r)
	assert.Equal(t, 4, c)
	require.Len(t, evals, 4)
	for i := 1; i < len(evals); i++ {
		assert.GreaterOrEqual(t, evals[i-1], evals[i])
	}
	assert.LessOrEqual(t, evals[0], 1+1e-9)

	// The stationary eigenvalue is kept internally.
	assert.InDelta(t, 1.0, g.Basis().Evals[0], 1e-9)
	assert.Equal(t, 5, g.Basis().Len())

	// Rows of T sum to one.
	sums := graph.ToDense(g.Transition().T)
	for i := range 200 {
		assert.InDelta(t, 1.0, mat.Sum(sums.RowView(i)), 1e-9)
	}
}

func TestTwoSeparatedPairs(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		0, 0,
		1, 0,
		100, 0,
		101, 0,
	})
	cfg := testConfig(2)
	cfg.KNN = false
	g, err := New(Input{X: x}, cfg)
	require.NoError(t, err)
	require.NoError(t, g.ComputeTransitionMatrix())

	w := g.Kernel()
	assert.Greater(t, w.At(0, 1), 0.0)
	assert.Greater(t, w.At(2, 3), 0.0)
	for _, p := range [][2]int{{0, 2}, {0, 3}, {1, 2}, {1, 3}} {
		assert.Equal(t, 0.0, w.At(p[0], p[1]))
		assert.Equal(t, 0.0, w.At(p[1], p[0]))
	}

	// Two components give eigenvalue 1 twice, so pseudotime is undefined.
	require.NoError(t, g.Embed(MatrixKtilde, 0, spectral.Decrease))
	assert.InDelta(t, 1.0, g.Basis().Evals[1], 1e-12)
	require.NoError(t, g.SetRootIndex(0))
	_, err = g.Pseudotime()
	assert.True(t, errs.Is(err, errs.KindNumericDegeneracy))
}

func TestIsolatedPoint(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		0, 0,
		0, 0,
		0, 0,
		100, 0,
	})
	g, err := New(Input{X: x}, testConfig(3))
	require.NoError(t, err)

	_, _, err = g.Diffmap(2)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNumericDegeneracy)
	assert.Contains(t, err.Error(), "point 3")
}

func TestFarOutlierStaysConnected(t *testing.T) {
	x := generateTestData(60, 2, 11)
	x.Set(59, 0, 1e6)
	x.Set(59, 1, 1e6)
	g, err := New(Input{X: x}, testConfig(10))
	require.NoError(t, err)

	_, _, err = g.Diffmap(5)
	require.NoError(t, err)
	assert.Greater(t, g.Transition().Z[59], 0.0)

	require.NoError(t, g.SetRootIndex(0))
	pt, err := g.Pseudotime()
	require.NoError(t, err)
	for _, v := range pt {
		assert.False(t, math.IsNaN(v))
	}
}

func TestComponentWindowLeavesGraphUnchanged(t *testing.T) {
	cfg := testConfig(8)
	cfg.DCEnd = 20
	g, err := New(Input{X: generateCurve(40)}, cfg)
	require.NoError(t, err)

	_, _, err = g.Diffmap(5)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Nil(t, g.Basis())
	assert.Nil(t, g.Dchosen())

	// A retry recomputes and fails again instead of returning a stale basis.
	y, _, err := g.Diffmap(5)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Nil(t, y)

	// A valid window installs the basis.
	g.Config.DCEnd = 0
	y, _, err = g.Diffmap(5)
	require.NoError(t, err)
	_, c := y.Dims()
	assert.Equal(t, 4, c)
	assert.NotNil(t, g.Dchosen())
}

func TestPseudotime(t *testing.T) {
	g, err := New(Input{X: generateCurve(100)}, testConfig(10))
	require.NoError(t, err)

	_, err = g.Pseudotime()
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, _, err = g.Diffmap(10)
	require.NoError(t, err)
	_, err = g.Pseudotime()
	assert.ErrorIs(t, err, errs.ErrConfiguration, "no root yet")

	require.NoError(t, g.SetRootIndex(0))
	pt, err := g.Pseudotime()
	require.NoError(t, err)
	require.Len(t, pt, 100)
	assert.InDelta(t, 0.0, pt[0], 1e-12)
	hi := 0.0
	for _, v := range pt {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		hi = math.Max(hi, v)
	}
	assert.Equal(t, 1.0, hi)
	assert.Less(t, pt[10], pt[90])

	assert.ErrorIs(t, g.SetRootIndex(100), errs.ErrDimensionMismatch)
}

func TestDdiffMatchesOnTheFly(t *testing.T) {
	cfg := testConfig(10)
	cfg.MaxMemory = 1 << 40
	g, err := New(Input{X: generateCurve(80)}, cfg)
	require.NoError(t, err)
	_, _, err = g.Diffmap(8)
	require.NoError(t, err)
	require.NoError(t, g.SetRootIndex(5))

	lazyPT, err := g.Pseudotime()
	require.NoError(t, err)

	require.NoError(t, g.ComputeDdiffMatrix())
	require.NotNil(t, g.M())
	densePT, err := g.Pseudotime()
	require.NoError(t, err)
	assert.InDeltaSlice(t, lazyPT, densePT, 1e-4)

	// A new embedding drops M and goes back to on-the-fly rows.
	require.NoError(t, g.Embed(MatrixKtilde, 8, spectral.Decrease))
	assert.Nil(t, g.M())
}

func TestMMatrixFallback(t *testing.T) {
	cfg := testConfig(10)
	cfg.NumWorkers = 4
	g, err := New(Input{X: generateCurve(60)}, cfg)
	require.NoError(t, err)

	assert.ErrorIs(t, g.ComputeMMatrix(), errs.ErrConfiguration)

	_, _, err = g.Diffmap(6)
	require.NoError(t, err)
	require.NoError(t, g.ComputeMMatrix())
	assert.Nil(t, g.M())

	require.NoError(t, g.ComputeDdiffMatrix())
	require.NoError(t, g.SetRootIndex(0))
	_, err = g.Pseudotime()
	assert.NoError(t, err)
}

func TestCommuteTime(t *testing.T) {
	g, err := New(Input{X: generateCurve(40)}, testConfig(8))
	require.NoError(t, err)

	assert.ErrorIs(t, g.ComputeCMatrix(), errs.ErrConfiguration)

	require.NoError(t, g.ComputeTransitionMatrix())
	require.NoError(t, g.ComputeCAll(0))
	assert.InDelta(t, 0.0, g.Basis().Evals[0], 1e-9)

	c := g.Dchosen()
	require.NotNil(t, c)
	for i := range 40 {
		cii, err := c.At(i, i)
		require.NoError(t, err)
		assert.Equal(t, 0.0, cii)
		for j := range 40 {
			cij, _ := c.At(i, j)
			cji, _ := c.At(j, i)
			assert.Equal(t, cij, cji)
		}
	}

	require.NoError(t, g.SetRootIndex(0))
	pt, err := g.Pseudotime()
	require.NoError(t, err)
	assert.Less(t, pt[2], pt[39])

	require.NoError(t, g.ComputeMFPMatrix())
	mfp, err := g.Dchosen().Row(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, mfp[0], 1e-8)
	assert.NotNil(t, g.Lp())
}

func TestSpecLayout(t *testing.T) {
	g, err := New(Input{X: generateCurve(50)}, testConfig(8))
	require.NoError(t, err)

	y, evals, err := g.SpecLayout(3)
	require.NoError(t, err)
	_, c := y.Dims()
	assert.Equal(t, 2, c)
	require.Len(t, evals, 2)
	assert.LessOrEqual(t, evals[0], evals[1])
	assert.Greater(t, evals[0], 0.0)
}

func TestUnweightedFlavor(t *testing.T) {
	cfg := testConfig(8)
	cfg.Flavor = graph.FlavorUnweighted
	g, err := New(Input{X: generateCurve(50)}, cfg)
	require.NoError(t, err)

	y, _, err := g.Diffmap(4)
	require.NoError(t, err)
	_, c := y.Dims()
	assert.Equal(t, 3, c)
	assert.Nil(t, g.Transition())
	assert.ErrorIs(t, g.ComputeLMatrix(), errs.ErrConfiguration)

	cfg.Symmetric = false
	g, err = New(Input{X: generateCurve(50)}, cfg)
	require.NoError(t, err)
	_, _, err = g.Diffmap(4)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	cfg = testConfig(8)
	cfg.Flavor = graph.FlavorUnweighted
	cfg.KNN = false
	g, err = New(Input{X: generateCurve(50)}, cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, g.ComputeTransitionMatrix(), errs.ErrConfiguration)
}

func TestPrecomputedDiffmap(t *testing.T) {
	x := generateCurve(60)
	g, err := New(Input{X: x}, testConfig(8))
	require.NoError(t, err)
	y, evals, err := g.Diffmap(6)
	require.NoError(t, err)
	require.NoError(t, g.SetRootIndex(3))
	want, err := g.Pseudotime()
	require.NoError(t, err)

	p, err := g.Export()
	require.NoError(t, err)
	require.NotNil(t, p.Distances)

	reused, err := New(Input{X: x, Diffmap: p}, testConfig(8))
	require.NoError(t, err)
	y2, evals2, err := reused.Diffmap(6)
	require.NoError(t, err)
	assert.True(t, mat.Equal(y, y2))
	assert.Equal(t, evals, evals2)
	assert.Nil(t, reused.Transition(), "no graph computed when reusing")

	require.NoError(t, reused.SetRootIndex(3))
	got, err := reused.Pseudotime()
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)

	// The stored distances replace the neighbor search.
	require.NoError(t, reused.ComputeTransitionMatrix())
	assert.Equal(t, g.Neighbors().Indices, reused.Neighbors().Indices)

	cfg := testConfig(8)
	cfg.RecomputeDiffmap = true
	fresh, err := New(Input{X: x, Diffmap: p}, cfg)
	require.NoError(t, err)
	assert.Nil(t, fresh.Basis())

	bad := *p
	bad.Evals = bad.Evals[1:]
	_, err = New(Input{X: x, Diffmap: &bad}, testConfig(8))
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestRootLocation(t *testing.T) {
	x := generateTestData(50, 4, 11)
	g, err := New(Input{X: x, XRoot: mat.Row(nil, 17, x)}, testConfig(5))
	require.NoError(t, err)
	assert.Equal(t, 17, g.Root())

	i, err := g.SetRoot(mat.Row(nil, 23, x))
	require.NoError(t, err)
	assert.Equal(t, 23, i)
	assert.Equal(t, 23, g.Root())

	_, err = g.SetRoot([]float64{1, 2})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	_, err = New(Input{X: x, XRoot: []float64{1}}, testConfig(5))
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestPrecomputedPCA(t *testing.T) {
	x := generateTestData(50, 40, 5)
	reduced := generateTestData(50, 35, 9)
	cfg := testConfig(5)
	cfg.PCA = func(*mat.Dense, int) (*mat.Dense, error) {
		t.Fatal("PCA must not run with a usable reduction")
		return nil, nil
	}

	g, err := New(Input{X: x, PCA: reduced, XRoot: mat.Row(nil, 9, x)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 9, g.Root())
	_, c := g.X().Dims()
	assert.Equal(t, 30, c)

	g, err = New(Input{X: x, PCA: reduced, XRoot: mat.Row(nil, 5, reduced)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, g.Root())

	_, err = New(Input{X: x, PCA: reduced, XRoot: make([]float64, 7)}, cfg)
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestComputedPCA(t *testing.T) {
	x := generateTestData(50, 40, 5)
	calls := 0
	cfg := testConfig(5)
	cfg.PCA = func(in *mat.Dense, nComps int) (*mat.Dense, error) {
		calls++
		assert.Equal(t, 30, nComps)
		n, _ := in.Dims()
		return mat.DenseCopyOf(in.Slice(0, n, 0, nComps)), nil
	}

	root := mat.Row(nil, 12, x)[:30]
	g, err := New(Input{X: x, XRoot: root}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 12, g.Root())

	// A too narrow precomputed reduction is recomputed.
	_, err = New(Input{X: x, PCA: generateTestData(50, 10, 1)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	cfg.RecomputePCA = true
	_, err = New(Input{X: x, PCA: generateTestData(50, 35, 1)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDefaultPCALogsVariance(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(5)
	cfg.NPCs = 3
	cfg.Logger = log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	g, err := New(Input{X: generateTestData(40, 6, 9)}, cfg)
	require.NoError(t, err)
	_, c := g.X().Dims()
	assert.Equal(t, 3, c)
	assert.Contains(t, buf.String(), "explained_variance")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"small k", func(c *Config) { c.K = 1 }},
		{"negative n_pcs", func(c *Config) { c.NPCs = -1 }},
		{"unknown flavor", func(c *Config) { c.Flavor = "gauss" }},
		{"negative dc_start", func(c *Config) { c.DCStart = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			_, err := New(Input{X: generateTestData(10, 2, 1)}, cfg)
			assert.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}

	_, err := New(Input{}, DefaultConfig())
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = New(Input{X: mat.NewDense(1, 2, nil)}, DefaultConfig())
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestRowCache(t *testing.T) {
	cfg := testConfig(8)
	cfg.RowCacheSize = 2
	g, err := New(Input{X: generateCurve(40)}, cfg)
	require.NoError(t, err)
	_, _, err = g.Diffmap(5)
	require.NoError(t, err)

	for _, i := range []int{0, 1, 2, 3} {
		require.NoError(t, g.SetRootIndex(i))
		_, err := g.Pseudotime()
		require.NoError(t, err)
	}
	type cached interface{ Cached() int }
	assert.Equal(t, 2, g.Dchosen().(cached).Cached())
}
