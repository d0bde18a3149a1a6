package diffmap

import (
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/graph"
	"github.com/nozzle/diffmap/pca"
)

// Config configures graph construction, the diffusion map and the derived
// distances.
type Config struct {
	// K is the neighborhood size counting the point itself.
	// Default: 30
	K int `yaml:"k"`

	// KNN restricts the kernel to the symmetrized kNN support. When false
	// the full distance matrix is computed and weights below 1e-14 are cut.
	// Default: true
	KNN bool `yaml:"knn"`

	// NPCs is the number of principal components the graph is built on.
	// 0 uses the data as given, as does data with fewer features.
	// Default: 30
	NPCs int `yaml:"n_pcs"`

	// NPCsPost is the number of principal components M is projected onto
	// before pairwise distances are taken, above a thousand points.
	// 0 disables the projection.
	// Default: 30
	NPCsPost int `yaml:"n_pcs_post"`

	// RecomputePCA ignores a precomputed PCA reduction.
	// Default: false
	RecomputePCA bool `yaml:"recompute_pca"`

	// RecomputeDiffmap ignores a precomputed diffusion map.
	// Default: false
	RecomputeDiffmap bool `yaml:"recompute_diffmap"`

	// Alpha is the density normalization exponent. 1 removes the sampling
	// density so only the geometry of the data matters; 0 keeps W as is.
	// Default: 1.0
	Alpha float64 `yaml:"alpha"`

	// Flavor selects the kernel.
	// Options: "haghverdi16", "unweighted"
	// Default: "haghverdi16"
	Flavor graph.Flavor `yaml:"flavor"`

	// Symmetric uses the eigenvectors of Ktilde directly as both bases.
	// Diffusion pseudotime requires it.
	// Default: true
	Symmetric bool `yaml:"symmetric"`

	// NumWorkers for parallel processing.
	// 0 = auto-detect based on CPU cores.
	// Default: 0
	NumWorkers int `yaml:"num_workers"`

	// MaxMemory in bytes that the M matrix may bring usage up to (90% of).
	// 0 = the runtime memory limit, at most 4 GiB.
	// Default: 0
	MaxMemory uint64 `yaml:"max_memory"`

	// NNThreshold is the point count above which neighbors are searched
	// with the approximate index.
	// Default: 100000
	NNThreshold int `yaml:"nn_threshold"`

	// ChunkSize caps the number of distance rows held at once during the
	// exact neighbor search.
	// Default: 20000
	ChunkSize int `yaml:"chunk_size"`

	// DenseEigenThreshold is the point count up to which the full dense
	// eigendecomposition is used.
	// Default: 2000
	DenseEigenThreshold int `yaml:"dense_eigen_threshold"`

	// DCStart and DCEnd select the diffusion components [DCStart, DCEnd)
	// entering pseudotime. DCEnd <= 0 means all of them.
	// Default: 0, 0
	DCStart int `yaml:"dc_start"`
	DCEnd   int `yaml:"dc_end"`

	// RowCacheSize bounds the number of pseudotime rows kept in memory.
	// 0 keeps every generated row.
	// Default: 0
	RowCacheSize int `yaml:"row_cache_size"`

	// Seed for the partial eigensolver and the approximate neighbor index.
	// Default: 42
	Seed int64 `yaml:"seed"`

	// Verbose enables debug output when no Logger is set.
	// Default: false
	Verbose bool `yaml:"verbose"`

	// Logger receives progress messages. nil discards them unless Verbose
	// is set.
	// Default: nil
	Logger *log.Logger `yaml:"-"`

	// PCA reduces the data when no usable precomputed reduction exists.
	// Default: pca.Reduce
	PCA pca.Func `yaml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		K:                   30,
		KNN:                 true,
		NPCs:                30,
		NPCsPost:            30,
		Alpha:               1.0,
		Flavor:              graph.FlavorHaghverdi16,
		Symmetric:           true,
		NumWorkers:          0,
		NNThreshold:         100000,
		ChunkSize:           20000,
		DenseEigenThreshold: 2000,
		Seed:                42,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	const op = "diffmap.Config"
	switch {
	case c.K < 2:
		return errs.New(errs.KindConfiguration, op, "k must be at least 2, got %d", c.K)
	case c.NPCs < 0:
		return errs.New(errs.KindConfiguration, op, "n_pcs must be non-negative, got %d", c.NPCs)
	case c.NPCsPost < 0:
		return errs.New(errs.KindConfiguration, op, "n_pcs_post must be non-negative, got %d", c.NPCsPost)
	case !c.Flavor.Valid():
		return errs.New(errs.KindConfiguration, op, "unknown kernel flavor %q", c.Flavor)
	case c.DCStart < 0:
		return errs.New(errs.KindConfiguration, op, "dc_start must be non-negative, got %d", c.DCStart)
	case c.RowCacheSize < 0:
		return errs.New(errs.KindConfiguration, op, "row_cache_size must be non-negative, got %d", c.RowCacheSize)
	}
	return nil
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	if c.Verbose {
		return log.NewWithOptions(os.Stderr, log.Options{
			Level:  log.DebugLevel,
			Prefix: "diffmap",
		})
	}
	return log.New(io.Discard)
}
