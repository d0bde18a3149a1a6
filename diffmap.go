// Package diffmap builds neighborhood graphs over point sets and computes
// diffusion maps and diffusion pseudotime on them.
//
// A DataGraph is built once from an N×D point set. Its operations compute,
// in order, the kNN graph and Gaussian kernel (ComputeTransitionMatrix), a
// spectral basis (Embed, or Diffmap for the usual case) and finally one of
// the derived distances: diffusion pseudotime (installed by every
// embedding), the commute-time distance or mean first passage times.
//
// Basic usage:
//
//	g, err := diffmap.New(diffmap.Input{X: x}, diffmap.DefaultConfig())
//	y, evals, err := g.Diffmap(10)
//	err = g.SetRootIndex(0)
//	pt, err := g.Pseudotime()
package diffmap

import (
	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/diffusion"
	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/graph"
	"github.com/nozzle/diffmap/lazy"
	"github.com/nozzle/diffmap/nn"
	"github.com/nozzle/diffmap/pca"
	"github.com/nozzle/diffmap/spectral"
)

// Precomputed is a diffusion map from an earlier run.
type Precomputed struct {
	// Embedding holds the diffusion components without the stationary one.
	Embedding *mat.Dense
	// Stationary is the first eigenvector.
	Stationary []float64
	// Evals are the eigenvalues matching the Embedding columns.
	Evals []float64
	// Distances is the sparse squared-distance matrix over the kNN
	// support; only used in kNN mode.
	Distances *graph.CSRMatrix
}

// Input is the data a DataGraph is built from. Only X is required.
type Input struct {
	// X is the N×D point set; rows are samples. It is never modified.
	X *mat.Dense
	// PCA is a precomputed reduction of X with N rows.
	PCA *mat.Dense
	// Diffmap is a precomputed diffusion map of X.
	Diffmap *Precomputed
	// XRoot marks the root point, in the space of X or of the reduction.
	XRoot []float64
}

// DataGraph is a neighborhood graph with its diffusion operators, spectral
// basis and active derived distance. It is not safe for concurrent use.
type DataGraph struct {
	Config Config

	log *log.Logger
	x   *mat.Dense // coordinates the graph is built on

	neighbors *nn.KNNGraph
	dsq       *mat.Dense       // full squared distances, dense mode only
	sparseDsq *graph.CSRMatrix // precomputed squared distances

	w      graph.Operator
	tr     *graph.Transition
	ktilde graph.Operator
	lap    graph.Operator

	basis  *spectral.Basis
	engine *diffusion.Engine

	m       *mat.Dense
	lp      *mat.Dense
	dchosen diffusion.Rows
	iroot   int
}

// New builds a DataGraph. The graph coordinates are X itself when NPCs is 0
// or exceeds the number of features, the first NPCs columns of a
// precomputed reduction with enough columns, or else config.PCA(X, NPCs).
// A root vector is located in whichever of those spaces its length
// matches.
func New(in Input, config Config) (*DataGraph, error) {
	const op = "diffmap.New"
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if in.X == nil {
		return nil, errs.New(errs.KindConfiguration, op, "no data")
	}
	n, d := in.X.Dims()
	if n < 2 {
		return nil, errs.New(errs.KindConfiguration, op, "need at least 2 points, got %d", n)
	}

	g := &DataGraph{Config: config, log: config.logger(), iroot: -1}
	g.log.Debug("initializing data graph", "n", n, "features", d)

	var rootSpace *mat.Dense
	var root []float64
	switch {
	case config.NPCs == 0 || d < config.NPCs:
		g.log.Debug("using X for building graph")
		g.x = in.X
		rootSpace, root = in.X, in.XRoot

	case in.PCA != nil && !config.RecomputePCA && cols(in.PCA) >= config.NPCs:
		if r := rows(in.PCA); r != n {
			return nil, errs.New(errs.KindDimensionMismatch, op, "PCA has %d rows, data has %d", r, n)
		}
		g.log.Debug("using precomputed PCA for building graph", "n_pcs", config.NPCs)
		g.x = mat.DenseCopyOf(in.PCA.Slice(0, n, 0, config.NPCs))
		switch len(in.XRoot) {
		case 0:
		case d:
			rootSpace, root = in.X, in.XRoot
		case cols(in.PCA):
			rootSpace, root = g.x, in.XRoot[:config.NPCs]
		default:
			return nil, rootMismatch(len(in.XRoot), d, cols(in.PCA))
		}

	default:
		g.log.Debug("computing PCA for building graph", "n_pcs", config.NPCs)
		var x *mat.Dense
		var err error
		if config.PCA != nil {
			x, err = config.PCA(in.X, config.NPCs)
		} else {
			var vars []float64
			x, vars, err = pca.Fit(in.X, config.NPCs)
			if err == nil {
				g.log.Debug("computed PCA", "explained_variance", vars)
			}
		}
		if err != nil {
			kind := errs.KindOf(err)
			if kind == "" {
				kind = errs.KindConfiguration
			}
			return nil, errs.Wrap(kind, op, err, "PCA")
		}
		if r := rows(x); r != n {
			return nil, errs.New(errs.KindDimensionMismatch, op, "PCA returned %d rows for %d points", r, n)
		}
		g.x = x
		switch len(in.XRoot) {
		case 0:
		case d:
			rootSpace, root = in.X, in.XRoot
		case cols(x):
			rootSpace, root = x, in.XRoot
		default:
			return nil, rootMismatch(len(in.XRoot), d, cols(x))
		}
	}

	if root != nil {
		if _, err := g.setRoot(rootSpace, root); err != nil {
			return nil, err
		}
	}

	if in.Diffmap != nil && !config.RecomputeDiffmap {
		if err := g.usePrecomputed(in.Diffmap); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func rows(m mat.Matrix) int {
	r, _ := m.Dims()
	return r
}

func cols(m mat.Matrix) int {
	_, c := m.Dims()
	return c
}

func rootMismatch(got, d, reduced int) error {
	return errs.New(errs.KindDimensionMismatch, "diffmap.New",
		"root vector has %d entries, want %d (data) or %d (reduced data)", got, d, reduced)
}

// usePrecomputed installs an earlier diffusion map: the eigenvalues are
// prefixed with 1 and the stationary vector becomes column 0 of a
// symmetric basis.
func (g *DataGraph) usePrecomputed(p *Precomputed) error {
	const op = "diffmap.New"
	n := rows(g.x)
	if p.Embedding == nil {
		return errs.New(errs.KindConfiguration, op, "precomputed diffusion map has no embedding")
	}
	r, c := p.Embedding.Dims()
	switch {
	case r != n:
		return errs.New(errs.KindDimensionMismatch, op, "precomputed embedding has %d rows, data has %d", r, n)
	case len(p.Stationary) != n:
		return errs.New(errs.KindDimensionMismatch, op, "stationary component has %d entries, data has %d", len(p.Stationary), n)
	case len(p.Evals) != c:
		return errs.New(errs.KindDimensionMismatch, op, "%d eigenvalues for %d components", len(p.Evals), c)
	}
	g.log.Debug("using precomputed diffusion map for distance computations", "components", c)

	basis := mat.NewDense(n, c+1, nil)
	basis.SetCol(0, p.Stationary)
	basis.Slice(0, n, 1, c+1).(*mat.Dense).Copy(p.Embedding)
	evals := append([]float64{1}, p.Evals...)

	if g.Config.KNN && p.Distances != nil {
		if dr, dc := p.Distances.Dims(); dr != n || dc != n {
			return errs.New(errs.KindDimensionMismatch, op, "precomputed distances are %d×%d for %d points", dr, dc, n)
		}
		g.sparseDsq = p.Distances
	}
	return g.installBasis(&spectral.Basis{Evals: evals, R: basis, L: basis, Symmetric: true}, nil)
}

// ComputeTransitionMatrix finds neighbors and builds the kernel W, the
// density-normalized K, the transition matrix T and its symmetric
// conjugate Ktilde. Precomputed squared distances are reused in kNN mode.
// The unweighted flavor stops after W, which then serves as Ktilde.
func (g *DataGraph) ComputeTransitionMatrix() error {
	cfg := g.Config
	if err := g.computeNeighbors(); err != nil {
		return err
	}

	w, err := graph.Kernel(g.neighbors, g.dsq, graph.KernelConfig{
		Flavor:     cfg.Flavor,
		KNN:        cfg.KNN,
		NumWorkers: cfg.NumWorkers,
	})
	if err != nil {
		return err
	}
	g.w, g.tr, g.lap = w, nil, nil
	if cfg.Flavor == graph.FlavorUnweighted {
		g.ktilde = w
		g.log.Debug("computed unweighted adjacency")
		return nil
	}
	g.log.Debug("computed W (weight matrix)", "knn", cfg.KNN)

	tcfg := graph.DefaultTransitionConfig()
	tcfg.Alpha = cfg.Alpha
	tr, err := graph.NewTransition(w, tcfg)
	if err != nil {
		return err
	}
	g.tr, g.ktilde = tr, tr.Ktilde
	g.log.Debug("computed K (anisotropic kernel) and Ktilde", "alpha", cfg.Alpha)
	return nil
}

func (g *DataGraph) computeNeighbors() error {
	cfg := g.Config
	if g.sparseDsq != nil && cfg.KNN {
		kg, err := graph.NeighborsFromCSR(g.sparseDsq)
		if err != nil {
			return err
		}
		g.neighbors, g.dsq = kg, nil
		g.log.Debug("using precomputed distances", "k", kg.K+1)
		return nil
	}

	ncfg := nn.DefaultConfig()
	ncfg.K = cfg.K
	ncfg.Sparse = cfg.KNN
	ncfg.NumWorkers = cfg.NumWorkers
	ncfg.ChunkSize = cfg.ChunkSize
	ncfg.ApproxThreshold = cfg.NNThreshold
	ncfg.NNDescent.Seed = cfg.Seed
	res, err := nn.Neighbors(g.x, ncfg)
	if err != nil {
		return err
	}
	g.neighbors, g.dsq = res.Graph, res.Dsq
	g.log.Debug("determined nearest neighbors", "k", res.Graph.K+1, "approximate", res.Approximate)
	return nil
}

// ComputeLMatrix computes the graph Laplacian L = diag(z) − K.
func (g *DataGraph) ComputeLMatrix() error {
	if g.tr == nil {
		return errs.New(errs.KindConfiguration, "diffmap.ComputeLMatrix",
			"no degrees: compute the transition matrix with a weighted kernel first")
	}
	g.lap = graph.Laplacian(g.tr.K, g.tr.Z)
	g.log.Debug("computed graph Laplacian")
	return nil
}

// Matrix selects the operator Embed diagonalizes.
type Matrix int

const (
	// MatrixKtilde is the symmetric conjugate of the transition matrix.
	MatrixKtilde Matrix = iota
	// MatrixLaplacian is the graph Laplacian.
	MatrixLaplacian
)

// Embed computes nEvals eigenpairs of the selected operator in the given
// order (0 computes all of them) and installs the resulting basis. Any
// materialized M or derived distance is dropped and pseudotime is again
// generated on the fly.
func (g *DataGraph) Embed(matrix Matrix, nEvals int, order spectral.Order) error {
	const op = "diffmap.Embed"
	var a graph.Operator
	switch matrix {
	case MatrixKtilde:
		a = g.ktilde
	case MatrixLaplacian:
		a = g.lap
	default:
		return errs.New(errs.KindConfiguration, op, "unknown matrix %d", matrix)
	}
	if a == nil {
		return errs.New(errs.KindConfiguration, op, "operator not computed")
	}

	var sqrtz, z []float64
	if g.tr != nil {
		sqrtz, z = g.tr.SqrtZ, g.tr.Z
	} else if !g.Config.Symmetric {
		return errs.New(errs.KindConfiguration, op, "the unweighted kernel only supports symmetric bases")
	}

	opts := spectral.DefaultOptions()
	opts.NEvals = nEvals
	opts.Order = order
	opts.DenseThreshold = g.Config.DenseEigenThreshold
	opts.Seed = g.Config.Seed
	res, err := spectral.Decompose(a, opts)
	if err != nil {
		return err
	}
	g.log.Debug("computed eigenvalues", "order", order, "evals", res.Values)

	basis, err := spectral.NewBasis(res, sqrtz, g.Config.Symmetric)
	if err != nil {
		return err
	}
	return g.installBasis(basis, z)
}

// installBasis resets everything derived from an earlier basis. Nothing
// changes when the basis does not fit the configured component window.
func (g *DataGraph) installBasis(b *spectral.Basis, z []float64) error {
	engine := &diffusion.Engine{
		Basis:      b,
		Z:          z,
		DCStart:    g.Config.DCStart,
		DCEnd:      g.Config.DCEnd,
		NumWorkers: g.Config.NumWorkers,
	}
	var dchosen diffusion.Rows
	if b.Symmetric {
		var opts []lazy.Option
		if g.Config.RowCacheSize > 0 {
			opts = append(opts, lazy.WithLRU(g.Config.RowCacheSize))
		}
		d, err := engine.Lazy(opts...)
		if err != nil {
			return err
		}
		dchosen = d
	}

	g.basis, g.engine = b, engine
	g.m, g.lp, g.dchosen = nil, nil, dchosen
	return nil
}

// Diffmap returns the diffusion map: the right eigenbasis without the
// stationary component, and its eigenvalues. The transition matrix and
// nComps eigenpairs are computed unless a basis already exists.
func (g *DataGraph) Diffmap(nComps int) (*mat.Dense, []float64, error) {
	if g.basis == nil {
		g.log.Info("computing diffusion map", "n_comps", nComps)
		if err := g.ComputeTransitionMatrix(); err != nil {
			return nil, nil, err
		}
		if err := g.Embed(MatrixKtilde, nComps, spectral.Decrease); err != nil {
			return nil, nil, err
		}
	}
	return g.embedding()
}

// SpecLayout returns a spectral layout: the eigenvectors of the graph
// Laplacian for its nComps smallest eigenvalues, the constant one dropped.
func (g *DataGraph) SpecLayout(nComps int) (*mat.Dense, []float64, error) {
	if err := g.ComputeTransitionMatrix(); err != nil {
		return nil, nil, err
	}
	if err := g.ComputeLMatrix(); err != nil {
		return nil, nil, err
	}
	if err := g.Embed(MatrixLaplacian, nComps, spectral.Increase); err != nil {
		return nil, nil, err
	}
	return g.embedding()
}

func (g *DataGraph) embedding() (*mat.Dense, []float64, error) {
	y, evals := g.basis.Embedding()
	if y == nil {
		return nil, nil, errs.New(errs.KindConfiguration, "diffmap.Diffmap", "basis has no component besides the stationary one")
	}
	return y, evals, nil
}

// Export returns the current diffusion map in the form New accepts for
// reuse.
func (g *DataGraph) Export() (*Precomputed, error) {
	if g.basis == nil {
		return nil, errs.New(errs.KindConfiguration, "diffmap.Export", "no diffusion map computed")
	}
	y, evals, err := g.embedding()
	if err != nil {
		return nil, err
	}
	p := &Precomputed{
		Embedding:  y,
		Stationary: mat.Col(nil, 0, g.basis.R),
		Evals:      evals,
		Distances:  g.sparseDsq,
	}
	if p.Distances == nil && g.neighbors != nil && g.Config.KNN {
		p.Distances = graph.SparseDistanceMatrix(g.neighbors)
	}
	return p, nil
}

// SetRoot locates the point closest to xroot in the graph coordinates and
// makes it the root.
func (g *DataGraph) SetRoot(xroot []float64) (int, error) {
	return g.setRoot(g.x, xroot)
}

func (g *DataGraph) setRoot(space *mat.Dense, xroot []float64) (int, error) {
	i, dsq, err := nn.Nearest(space, xroot)
	if err != nil {
		return 0, err
	}
	g.iroot = i
	g.log.Debug("set iroot", "iroot", i, "dsq", dsq)
	return i, nil
}

// SetRootIndex makes point i the root.
func (g *DataGraph) SetRootIndex(i int) error {
	if n := rows(g.x); i < 0 || i >= n {
		return errs.New(errs.KindDimensionMismatch, "diffmap.SetRootIndex", "root %d out of range [0, %d)", i, n)
	}
	g.iroot = i
	return nil
}

// Root returns the root index, or -1 when none is set.
func (g *DataGraph) Root() int { return g.iroot }

// X returns the coordinates the graph is built on.
func (g *DataGraph) X() *mat.Dense { return g.x }

// Neighbors returns the neighbor graph, nil before ComputeTransitionMatrix.
func (g *DataGraph) Neighbors() *nn.KNNGraph { return g.neighbors }

// Kernel returns the weight matrix W.
func (g *DataGraph) Kernel() graph.Operator { return g.w }

// Transition returns the diffusion operators, nil before
// ComputeTransitionMatrix and for the unweighted flavor.
func (g *DataGraph) Transition() *graph.Transition { return g.tr }

// Basis returns the current spectral basis.
func (g *DataGraph) Basis() *spectral.Basis { return g.basis }
