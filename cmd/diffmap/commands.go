package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nozzle/diffmap"
	"github.com/nozzle/diffmap/graph"
)

const (
	kindDPT     = "dpt"     // diffusion pseudotime
	kindCommute = "commute" // commute-time distance
	kindMFP     = "mfp"     // mean first passage time
)

// graphOpts holds the flags shared by every command. Flags left unset keep
// the value from the config file, or the library default.
type graphOpts struct {
	input   string // CSV file with one point per row
	output  string // CSV file to write
	config  string // optional YAML config file
	k       int
	nPCs    int
	knn     bool
	workers int
	seed    int64
	flavor  string
}

func (o *graphOpts) register(cmd *cobra.Command, output string) {
	def := diffmap.DefaultConfig()
	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", "input CSV file (required)")
	f.StringVarP(&o.output, "output", "o", output, "output CSV file")
	f.StringVarP(&o.config, "config", "c", "", "YAML configuration file")
	f.IntVar(&o.k, "k", def.K, "neighborhood size, the point itself included")
	f.IntVar(&o.nPCs, "n-pcs", def.NPCs, "principal components to build the graph on (0 = raw data)")
	f.BoolVar(&o.knn, "knn", def.KNN, "restrict the kernel to the kNN graph")
	f.IntVar(&o.workers, "workers", def.NumWorkers, "parallel workers (0 = all cores)")
	f.Int64Var(&o.seed, "seed", def.Seed, "random seed")
	f.StringVar(&o.flavor, "flavor", string(def.Flavor), "kernel flavor: haghverdi16 or unweighted")
	_ = cmd.MarkFlagRequired("input")
}

// load reads the data and merges config file and flags. A root vector may
// be given in the space of the data or of its reduction.
func (o *graphOpts) load(cmd *cobra.Command, xroot []float64) (*diffmap.DataGraph, error) {
	logger := loggerFromContext(cmd.Context())
	cfg, err := loadConfig(o.config)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("k") {
		cfg.K = o.k
	}
	if f.Changed("n-pcs") {
		cfg.NPCs = o.nPCs
	}
	if f.Changed("knn") {
		cfg.KNN = o.knn
	}
	if f.Changed("workers") {
		cfg.NumWorkers = o.workers
	}
	if f.Changed("seed") {
		cfg.Seed = o.seed
	}
	if f.Changed("flavor") {
		cfg.Flavor = graph.Flavor(o.flavor)
	}
	cfg.Logger = logger

	x, err := loadCSV(o.input)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", o.input, err)
	}
	n, d := x.Dims()
	logger.Info("loaded data", "samples", n, "features", d)

	return diffmap.New(diffmap.Input{X: x, XRoot: xroot}, cfg)
}

func newEmbedCmd() *cobra.Command {
	var opts graphOpts
	var nComps int
	var evalsOutput string

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Compute the diffusion map of a data set",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			g, err := opts.load(cmd, nil)
			if err != nil {
				return err
			}
			prog := newProgress(logger)
			y, evals, err := g.Diffmap(nComps)
			if err != nil {
				return err
			}
			prog.done("computed diffusion map", "evals", evals)

			if err := saveCSV(opts.output, y); err != nil {
				return err
			}
			if evalsOutput != "" {
				if err := saveColumn(evalsOutput, evals); err != nil {
					return err
				}
			}
			logger.Info("saved embedding", "path", opts.output)
			return nil
		},
	}
	opts.register(cmd, "diffmap.csv")
	cmd.Flags().IntVarP(&nComps, "n-comps", "n", 10, "eigenpairs to compute, the stationary one included")
	cmd.Flags().StringVar(&evalsOutput, "evals-output", "", "also write the eigenvalues to this CSV file")
	return cmd
}

func newPseudotimeCmd() *cobra.Command {
	var opts graphOpts
	var (
		nEvals     int
		root       int
		rootVector string
		kind       string
		dense      bool
	)

	cmd := &cobra.Command{
		Use:   "pseudotime",
		Short: "Compute pseudotime from a root point",
		Long: `Computes the distance from a root point to every point, divided by its maximum.

The distance is diffusion pseudotime (dpt), the commute-time distance
(commute) or the mean first passage time (mfp). The root is given by index
or as a vector in the space of the input data or its PCA reduction.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			var xroot []float64
			if rootVector != "" {
				v, err := parseVector(rootVector)
				if err != nil {
					return fmt.Errorf("root vector: %w", err)
				}
				xroot = v
			}
			g, err := opts.load(cmd, xroot)
			if err != nil {
				return err
			}
			if xroot == nil {
				if err := g.SetRootIndex(root); err != nil {
					return err
				}
			}

			prog := newProgress(logger)
			switch kind {
			case kindDPT:
				if _, _, err := g.Diffmap(nEvals); err != nil {
					return err
				}
				if dense {
					if err := g.ComputeDdiffMatrix(); err != nil {
						return err
					}
				}
			case kindCommute, kindMFP:
				if err := g.ComputeTransitionMatrix(); err != nil {
					return err
				}
				if err := g.ComputeCAll(nEvals); err != nil {
					return err
				}
				if kind == kindMFP {
					if err := g.ComputeMFPMatrix(); err != nil {
						return err
					}
				}
			default:
				return fmt.Errorf("unknown distance %q: want %s, %s or %s", kind, kindDPT, kindCommute, kindMFP)
			}
			prog.done("computed distances", "kind", kind)

			pt, err := g.Pseudotime()
			if err != nil {
				return err
			}
			if err := saveColumn(opts.output, pt); err != nil {
				return err
			}
			logger.Info("saved pseudotime", "root", g.Root(), "path", opts.output)
			return nil
		},
	}
	opts.register(cmd, "pseudotime.csv")
	f := cmd.Flags()
	f.IntVarP(&nEvals, "n-evals", "n", 10, "eigenpairs to compute (0 = all)")
	f.IntVar(&root, "root", 0, "index of the root point")
	f.StringVar(&rootVector, "root-vector", "", "comma-separated coordinates of the root point")
	f.StringVar(&kind, "kind", kindDPT, "distance: dpt, commute or mfp")
	f.BoolVar(&dense, "dense", false, "materialize the pseudotime distance matrix when memory allows")
	return cmd
}

func newLayoutCmd() *cobra.Command {
	var opts graphOpts
	var nComps int

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Compute a spectral layout from the graph Laplacian",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			g, err := opts.load(cmd, nil)
			if err != nil {
				return err
			}
			prog := newProgress(logger)
			y, evals, err := g.SpecLayout(nComps)
			if err != nil {
				return err
			}
			prog.done("computed spectral layout", "evals", evals)
			if err := saveCSV(opts.output, y); err != nil {
				return err
			}
			logger.Info("saved layout", "path", opts.output)
			return nil
		},
	}
	opts.register(cmd, "layout.csv")
	cmd.Flags().IntVarP(&nComps, "n-comps", "n", 3, "eigenpairs to compute, the constant one included")
	return cmd
}
