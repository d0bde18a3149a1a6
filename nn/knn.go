// Package nn finds nearest neighbors for the diffusion-map graph.
//
// Neighbors is the entry point. It picks one of three strategies:
//   - dense: the full N×N squared-distance matrix is computed and kept,
//     used when the graph is not restricted to the kNN support
//   - exact: rows are processed in chunks, each chunk computing its block
//     of squared distances with one matrix multiplication and selecting the
//     k−1 smallest entries per row with a bounded max-heap
//   - approximate: above ApproxThreshold points an RP-forest seeded
//     NNDescent is used
//
// In every strategy a row never contains its own index, duplicates of the
// point are kept as regular neighbors, and neighbors are sorted by
// non-decreasing squared distance.
package nn

import (
	"gonum.org/v1/gonum/mat"

	"github.com/nozzle/diffmap/distance"
	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/internal/heap"
	"github.com/nozzle/diffmap/internal/parallel"
)

// KNNGraph represents a k-nearest neighbor graph.
type KNNGraph struct {
	Indices   [][]int32   // [n_samples][k] neighbor indices
	Distances [][]float32 // [n_samples][k] squared neighbor distances
	N         int         // number of samples
	K         int         // number of neighbors per sample (self excluded)
}

// Config configures the neighbor search.
type Config struct {
	// K is the neighborhood size counting the point itself; every row
	// receives K-1 neighbors.
	K int

	// Sparse restricts the output to neighbor lists. When false the full
	// squared-distance matrix is returned as well.
	Sparse bool

	// NumWorkers for parallel chunk processing (0 = auto, 1 = sequential).
	NumWorkers int

	// ChunkSize caps the number of points whose distance rows are held in
	// memory at once.
	ChunkSize int

	// ApproxThreshold is the sample count above which the approximate
	// index is used.
	ApproxThreshold int

	// NNDescent configures the approximate index.
	NNDescent NNDescentConfig
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		K:               30,
		Sparse:          true,
		NumWorkers:      0,
		ChunkSize:       20000,
		ApproxThreshold: 100000,
		NNDescent:       DefaultNNDescentConfig(),
	}
}

// Result holds the outcome of a neighbor search.
type Result struct {
	Graph *KNNGraph
	// Dsq is the full squared-distance matrix; only set in dense mode.
	Dsq *mat.Dense
	// Approximate reports whether the approximate index produced Graph.
	Approximate bool
}

// Neighbors computes the K-1 nearest neighbors of every row of x.
func Neighbors(x *mat.Dense, config Config) (*Result, error) {
	n, _ := x.Dims()
	if n < 2 {
		return nil, errs.New(errs.KindConfiguration, "nn.Neighbors", "need at least 2 points, got %d", n)
	}
	if config.K < 2 {
		return nil, errs.New(errs.KindConfiguration, "nn.Neighbors", "k must be at least 2, got %d", config.K)
	}
	k := min(config.K-1, n-1)
	numWorkers := parallel.Resolve(config.NumWorkers)

	switch {
	case !config.Sparse:
		g, dsq := DenseKNN(x, k)
		return &Result{Graph: g, Dsq: dsq}, nil
	case config.ApproxThreshold > 0 && n > config.ApproxThreshold:
		nd := config.NNDescent
		nd.K = k
		if nd.NumWorkers <= 0 {
			nd.NumWorkers = numWorkers
		}
		return &Result{Graph: NNDescent(toFloat32(x), nd), Approximate: true}, nil
	default:
		chunkSize := config.ChunkSize
		if chunkSize <= 0 {
			chunkSize = DefaultConfig().ChunkSize
		}
		return &Result{Graph: ExactKNN(x, k, chunkSize, numWorkers)}, nil
	}
}

// ExactKNN computes exact k-NN over row chunks. The chunk length is
// ceil(min(chunkSize, n) / numWorkers) so every worker gets work while the
// total number of distance rows held at once stays below chunkSize.
func ExactKNN(x *mat.Dense, k, chunkSize, numWorkers int) *KNNGraph {
	n, _ := x.Dims()
	k = min(k, n-1)
	numWorkers = max(numWorkers, 1)

	lenChunk := (min(chunkSize, n) + numWorkers - 1) / numWorkers
	chunks := parallel.Chunks(0, n, max(lenChunk, 1))
	norms := distance.SquaredNorms(x)

	results := parallel.ParallelMap(0, len(chunks), numWorkers, func(c int) *KNNGraph {
		return chunkKNN(x, norms, chunks[c][0], chunks[c][1], k)
	})

	g := &KNNGraph{
		Indices:   make([][]int32, n),
		Distances: make([][]float32, n),
		N:         n,
		K:         k,
	}
	for c, res := range results {
		start := chunks[c][0]
		copy(g.Indices[start:], res.Indices)
		copy(g.Distances[start:], res.Distances)
	}
	return g
}

// chunkKNN computes neighbors for rows [start, end) against all rows of x.
func chunkKNN(x *mat.Dense, norms []float64, start, end, k int) *KNNGraph {
	n, d := x.Dims()
	block := x.Slice(start, end, 0, d).(*mat.Dense)

	var dsq mat.Dense
	distance.SquaredCross(&dsq, block, x, norms[start:end], norms)

	g := &KNNGraph{
		Indices:   make([][]int32, end-start),
		Distances: make([][]float32, end-start),
		N:         n,
		K:         k,
	}
	for r := range end - start {
		g.Indices[r], g.Distances[r] = selectRow(dsq.RawRowView(r), start+r, k)
	}
	return g
}

// DenseKNN computes the full squared-distance matrix and the neighbor lists
// selected from it.
func DenseKNN(x *mat.Dense, k int) (*KNNGraph, *mat.Dense) {
	n, _ := x.Dims()
	k = min(k, n-1)

	norms := distance.SquaredNorms(x)
	var dsq mat.Dense
	distance.SquaredCross(&dsq, x, x, norms, norms)
	for i := range n {
		dsq.Set(i, i, 0)
	}

	g := &KNNGraph{
		Indices:   make([][]int32, n),
		Distances: make([][]float32, n),
		N:         n,
		K:         k,
	}
	for i := range n {
		g.Indices[i], g.Distances[i] = selectRow(dsq.RawRowView(i), i, k)
	}
	return g, &dsq
}

// selectRow picks the k smallest entries of row, skipping self, and returns
// them sorted ascending.
func selectRow(row []float64, self, k int) ([]int32, []float32) {
	indices := make([]int32, k)
	dists := make([]float32, k)
	heap.Init(indices, dists)

	for j, d := range row {
		if j == self {
			continue
		}
		heap.SimpleHeapPush(indices, dists, k, int32(j), float32(d))
	}
	heap.DeheapSort(indices, dists, k)
	return indices, dists
}

func toFloat32(x *mat.Dense) [][]float32 {
	n, d := x.Dims()
	out := make([][]float32, n)
	for i := range n {
		row := x.RawRowView(i)
		out[i] = make([]float32, d)
		for j, v := range row {
			out[i][j] = float32(v)
		}
	}
	return out
}
