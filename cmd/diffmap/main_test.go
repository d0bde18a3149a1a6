package main

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozzle/diffmap/graph"
)

// writeCurve writes n points along a planar curve as CSV.
func writeCurve(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	for i := range n {
		s := float64(i) / float64(n-1)
		b.WriteString(strconv.FormatFloat(4*s, 'g', -1, 64))
		b.WriteString(",")
		b.WriteString(strconv.FormatFloat(math.Sin(2*math.Pi*s), 'g', -1, 64))
		b.WriteString(",")
		b.WriteString(strconv.FormatFloat(0.01*float64(i%7), 'g', -1, 64))
		b.WriteString("\n")
	}
	path := filepath.Join(t.TempDir(), "curve.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(os.Stderr)
	return cmd.Execute()
}

func TestEmbedCommand(t *testing.T) {
	in := writeCurve(t, 60)
	dir := t.TempDir()
	out := filepath.Join(dir, "y.csv")
	evals := filepath.Join(dir, "evals.csv")

	require.NoError(t, run(t, "embed", "-i", in, "-o", out, "--k", "8", "-n", "5", "--evals-output", evals))

	y, err := loadCSV(out)
	require.NoError(t, err)
	r, c := y.Dims()
	assert.Equal(t, 60, r)
	assert.Equal(t, 4, c)

	ev, err := loadCSV(evals)
	require.NoError(t, err)
	r, _ = ev.Dims()
	assert.Equal(t, 4, r)
}

func TestPseudotimeCommand(t *testing.T) {
	in := writeCurve(t, 60)
	for _, kind := range []string{kindDPT, kindCommute, kindMFP} {
		t.Run(kind, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "pt.csv")
			require.NoError(t, run(t, "pseudotime", "-i", in, "-o", out, "--k", "8", "--kind", kind, "--root", "0"))

			pt, err := loadCSV(out)
			require.NoError(t, err)
			r, c := pt.Dims()
			assert.Equal(t, 60, r)
			assert.Equal(t, 1, c)
			assert.InDelta(t, 0.0, pt.At(0, 0), 1e-9)
		})
	}

	out := filepath.Join(t.TempDir(), "pt.csv")
	require.NoError(t, run(t, "pseudotime", "-i", in, "-o", out, "--k", "8", "--root-vector", "0,0,0"))
	pt, err := loadCSV(out)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, pt.At(0, 0), 1e-9)

	assert.Error(t, run(t, "pseudotime", "-i", in, "-o", out, "--kind", "geodesic"))
	assert.Error(t, run(t, "pseudotime", "-i", in, "-o", out, "--root-vector", "0,x"))
}

func TestLayoutCommand(t *testing.T) {
	in := writeCurve(t, 50)
	out := filepath.Join(t.TempDir(), "layout.csv")
	require.NoError(t, run(t, "layout", "-i", in, "-o", out, "--k", "8"))

	y, err := loadCSV(out)
	require.NoError(t, err)
	_, c := y.Dims()
	assert.Equal(t, 2, c)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.K)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("k: 12\nknn: false\nflavor: unweighted\nmax_memory: 1048576\n"), 0o644))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.K)
	assert.False(t, cfg.KNN)
	assert.Equal(t, graph.FlavorUnweighted, cfg.Flavor)
	assert.Equal(t, uint64(1<<20), cfg.MaxMemory)
	assert.Equal(t, 30, cfg.NPCs, "unset keys keep their defaults")

	require.NoError(t, os.WriteFile(path, []byte("k: [1"), 0o644))
	_, err = loadConfig(path)
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.csv")
	require.NoError(t, os.WriteFile(path, []byte("1, 2\n3,4\n"), 0o644))
	x, err := loadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, x.At(1, 0))
	assert.Equal(t, 2.0, x.At(0, 1))

	require.NoError(t, os.WriteFile(path, []byte("1,a\n"), 0o644))
	_, err = loadCSV(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err = loadCSV(path)
	assert.Error(t, err)

	v, err := parseVector("1, 2.5,-3")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, -3}, v)
}
