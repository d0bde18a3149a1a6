package nn

import (
	"github.com/nozzle/diffmap/distance"
	"github.com/nozzle/diffmap/internal/heap"
	"github.com/nozzle/diffmap/internal/parallel"
	"github.com/nozzle/diffmap/internal/rand"
)

// NNDescentConfig configures the NNDescent algorithm.
type NNDescentConfig struct {
	// K is the number of neighbors to find (self excluded)
	K int

	// MaxIterations is the maximum number of NNDescent iterations
	MaxIterations int

	// Delta is the early termination threshold (fraction of updated edges)
	Delta float32

	// Rho is the sampling rate for candidate pairs
	Rho float32

	// Forest seeds the initial graph from RP-tree leaves; NumTrees = 0
	// falls back to random initial neighbors.
	Forest RPForestConfig

	// Seed for random number generation
	Seed int64

	// NumWorkers for parallel processing (0 = auto)
	NumWorkers int
}

// DefaultNNDescentConfig returns default configuration.
func DefaultNNDescentConfig() NNDescentConfig {
	return NNDescentConfig{
		K:             15,
		MaxIterations: 10,
		Delta:         0.001,
		Rho:           0.5,
		Forest:        DefaultRPForestConfig(),
		Seed:          42,
		NumWorkers:    0,
	}
}

// NNDescent builds an approximate k-NN graph under squared Euclidean
// distance. The initial graph comes from an RP-forest (or random neighbors),
// then neighbors of neighbors are explored until fewer than Delta·n·k
// entries change in an iteration.
//
// Each iteration first evaluates candidate pairs in parallel without
// touching the heaps, then applies the improvements sequentially, so no two
// workers ever write the same neighbor list.
func NNDescent(data [][]float32, config NNDescentConfig) *KNNGraph {
	n := len(data)
	k := min(config.K, n-1)
	distFunc := distance.SquaredEuclidean
	numWorkers := parallel.Resolve(config.NumWorkers)
	rng := rand.New(config.Seed)

	var g *KNNGraph
	if config.Forest.NumTrees > 0 {
		fc := config.Forest
		fc.Seed = config.Seed
		g = InitializeFromForest(data, k, BuildRPForest(data, fc), numWorkers)
	} else {
		g = randomGraph(data, k, distFunc, rng, numWorkers)
	}
	indices, distances := g.Indices, g.Distances

	flags := make([][]uint8, n)
	for i := range flags {
		flags[i] = make([]uint8, k)
		for j := range flags[i] {
			flags[i][j] = 1 // new
		}
		heap.Heapify(indices[i], distances[i], flags[i], k)
	}

	oldCandidates := make([][]int32, n)
	newCandidates := make([][]int32, n)
	for i := range oldCandidates {
		oldCandidates[i] = make([]int32, 0, k*2)
		newCandidates[i] = make([]int32, 0, k*2)
	}

	for iter := 0; iter < config.MaxIterations; iter++ {
		for i := range oldCandidates {
			oldCandidates[i] = oldCandidates[i][:0]
			newCandidates[i] = newCandidates[i][:0]
		}

		for i := range n {
			for j := 0; j < k; j++ {
				neighbor := indices[i][j]
				if neighbor < 0 {
					continue
				}
				if flags[i][j] == 1 {
					newCandidates[i] = append(newCandidates[i], neighbor)
					if len(newCandidates[neighbor]) < k*2 {
						newCandidates[neighbor] = append(newCandidates[neighbor], int32(i))
					}
				} else {
					oldCandidates[i] = append(oldCandidates[i], neighbor)
				}
			}
		}

		for i := range newCandidates {
			newCandidates[i] = sampleCandidates(newCandidates[i], config.Rho, &rng)
			oldCandidates[i] = sampleCandidates(oldCandidates[i], config.Rho, &rng)
		}

		for i := range n {
			for j := 0; j < k; j++ {
				flags[i][j] = 0
			}
		}

		proposals := parallel.ParallelMap(0, n, numWorkers, func(i int) []update {
			return candidateUpdates(data, distances, newCandidates[i], oldCandidates[i], distFunc)
		})

		updates := 0
		for _, batch := range proposals {
			for _, u := range batch {
				if heap.FlaggedHeapPush(indices[u.p], distances[u.p], flags[u.p], k, u.q, u.dist, 1) {
					updates++
				}
				if heap.FlaggedHeapPush(indices[u.q], distances[u.q], flags[u.q], k, u.p, u.dist, 1) {
					updates++
				}
			}
		}

		if float32(updates)/float32(n*k) < config.Delta {
			break
		}
	}

	for i := range n {
		heap.DeheapSort(indices[i], distances[i], k)
	}

	return &KNNGraph{
		Indices:   indices,
		Distances: distances,
		N:         n,
		K:         k,
	}
}

// update is a candidate edge p<->q found during one NNDescent round.
type update struct {
	p, q int32
	dist float32
}

// candidateUpdates evaluates new-new and new-old candidate pairs around one
// point. Heaps are only read here.
func candidateUpdates(
	data [][]float32,
	distances [][]float32,
	newCands, oldCands []int32,
	distFunc distance.Func,
) []update {
	var out []update
	try := func(p, q int32) {
		d := distFunc(data[p], data[q])
		if d < distances[p][0] || d < distances[q][0] {
			out = append(out, update{p, q, d})
		}
	}

	for _, p1 := range newCands {
		for _, p2 := range newCands {
			if p1 >= p2 {
				continue
			}
			try(p1, p2)
		}
		for _, p2 := range oldCands {
			if p1 == p2 {
				continue
			}
			try(p1, p2)
		}
	}
	return out
}

// randomGraph picks k distinct random neighbors for each point.
func randomGraph(data [][]float32, k int, distFunc distance.Func, rng rand.State, numWorkers int) *KNNGraph {
	n := len(data)
	indices := make([][]int32, n)
	distances := make([][]float32, n)

	parallel.ParallelFor(0, n, numWorkers, func(i int) {
		localRng := rand.New(int64(i) + rng[0])
		indices[i] = make([]int32, k)
		distances[i] = make([]float32, k)
		heap.Init(indices[i], distances[i])

		selected := make(map[int32]bool, k)
		for len(selected) < k {
			j := rand.Intn(&localRng, n)
			if j == i || selected[int32(j)] {
				continue
			}
			selected[int32(j)] = true
			idx := len(selected) - 1
			indices[i][idx] = int32(j)
			distances[i][idx] = distFunc(data[i], data[j])
		}
	})

	return &KNNGraph{Indices: indices, Distances: distances, N: n, K: k}
}

// sampleCandidates randomly samples a subset of candidates based on rho.
func sampleCandidates(candidates []int32, rho float32, rng *rand.State) []int32 {
	if rho >= 1.0 || len(candidates) == 0 {
		return candidates
	}

	targetSize := max(int(float32(len(candidates))*rho), 1)
	if targetSize >= len(candidates) {
		return candidates
	}

	rand.Shuffle(rng, candidates)
	return candidates[:targetSize]
}
