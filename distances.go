package diffmap

import (
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/diffusion"
	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/spectral"
)

func (g *DataGraph) needBasis(op string) error {
	if g.engine == nil {
		return errs.New(errs.KindConfiguration, op, "no spectral basis: call Embed or Diffmap first")
	}
	return nil
}

// ComputeMMatrix materializes M, the sum over all powers of T outside the
// stationary eigenspace. When the matrix does not fit the memory budget, or
// enough workers are available to generate rows faster on demand, M stays
// unset and pseudotime keeps being computed on the fly.
func (g *DataGraph) ComputeMMatrix() error {
	if err := g.needBasis("diffmap.ComputeMMatrix"); err != nil {
		return err
	}
	g.log.Debug("trying to compute M", "max_memory", diffusion.MemoryLimit(g.Config.MaxMemory))
	m, err := g.engine.MMatrix(diffusion.MConfig{
		MaxMemory:  g.Config.MaxMemory,
		NumWorkers: g.Config.NumWorkers,
	})
	if errs.Is(err, errs.KindResourceExhaustion) {
		g.log.Info("not computing M, using on-the-fly computation", "reason", err)
		return nil
	}
	if err != nil {
		return err
	}
	g.m = m
	g.log.Debug("computed M")
	return nil
}

// ComputeDdiffMatrix makes the pairwise distances between the rows of M
// the active distance, computing M first if needed. Above a thousand
// points M is projected onto NPCsPost principal components beforehand,
// which only approximates pseudotime. Without M the on-the-fly pseudotime
// stays active.
func (g *DataGraph) ComputeDdiffMatrix() error {
	if g.m == nil {
		if err := g.ComputeMMatrix(); err != nil {
			return err
		}
		if g.m == nil {
			return nil
		}
	}
	d, reduced, err := diffusion.DdiffMatrix(g.m, g.Config.NPCsPost, g.Config.PCA)
	if err != nil {
		return err
	}
	if reduced {
		g.log.Warn("reduced M before computing distances, pseudotime is approximate", "n_pcs_post", g.Config.NPCsPost)
	}
	g.dchosen = diffusion.Dense{M: mat.DenseCopyOf(d)}
	g.log.Debug("computed Ddiff distance matrix")
	return nil
}

// ComputeLpMatrix computes the pseudoinverse of the graph Laplacian. The
// current basis must come from Embed(MatrixLaplacian, ...).
func (g *DataGraph) ComputeLpMatrix() error {
	if err := g.needBasis("diffmap.ComputeLpMatrix"); err != nil {
		return err
	}
	lp, err := g.engine.LaplacianPinv()
	if err != nil {
		return err
	}
	g.lp = lp
	g.log.Debug("computed pseudoinverse of Laplacian")
	return nil
}

func (g *DataGraph) needLp(op string) error {
	switch {
	case g.lp == nil:
		return errs.New(errs.KindConfiguration, op, "Laplacian pseudoinverse not computed")
	case g.tr == nil:
		return errs.New(errs.KindConfiguration, op, "no degrees: compute the transition matrix with a weighted kernel first")
	}
	return nil
}

// ComputeCMatrix makes the commute-time distance the active distance.
func (g *DataGraph) ComputeCMatrix() error {
	const op = "diffmap.ComputeCMatrix"
	if err := g.needLp(op); err != nil {
		return err
	}
	c, err := diffusion.CommuteTime(g.lp, g.tr.Z)
	if err != nil {
		return err
	}
	g.dchosen = diffusion.Dense{M: mat.DenseCopyOf(c)}
	g.log.Debug("computed commute distance matrix")
	return nil
}

// ComputeMFPMatrix makes the mean first passage times the active distance.
func (g *DataGraph) ComputeMFPMatrix() error {
	const op = "diffmap.ComputeMFPMatrix"
	if err := g.needLp(op); err != nil {
		return err
	}
	mfp, err := diffusion.MeanFirstPassage(g.lp, g.tr.Z)
	if err != nil {
		return err
	}
	g.dchosen = diffusion.Dense{M: mfp}
	g.log.Debug("computed mean first passage time matrix")
	return nil
}

// ComputeCAll runs the commute-time pipeline on an existing transition
// matrix: the Laplacian, its nEvals smallest eigenpairs, the pseudoinverse
// and the commute-time distance.
func (g *DataGraph) ComputeCAll(nEvals int) error {
	if err := g.ComputeLMatrix(); err != nil {
		return err
	}
	if err := g.Embed(MatrixLaplacian, nEvals, spectral.Increase); err != nil {
		return err
	}
	if err := g.ComputeLpMatrix(); err != nil {
		return err
	}
	return g.ComputeCMatrix()
}

// Pseudotime returns the active distance from the root to every point,
// divided by its maximum.
func (g *DataGraph) Pseudotime() ([]float64, error) {
	const op = "diffmap.Pseudotime"
	if g.dchosen == nil {
		return nil, errs.New(errs.KindConfiguration, op, "no distance computed: embed with a symmetric basis first")
	}
	if g.iroot < 0 {
		return nil, errs.New(errs.KindConfiguration, op, "no root set")
	}
	row, err := g.dchosen.Row(g.iroot)
	if err != nil {
		return nil, err
	}
	return diffusion.Normalize(row), nil
}

// Dchosen returns the active derived distance, nil before an embedding.
func (g *DataGraph) Dchosen() diffusion.Rows { return g.dchosen }

// M returns the materialized M matrix, nil when rows are generated on the
// fly.
func (g *DataGraph) M() *mat.Dense { return g.m }

// Lp returns the Laplacian pseudoinverse once computed.
func (g *DataGraph) Lp() *mat.Dense { return g.lp }
