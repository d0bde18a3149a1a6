package nn

import (
	"github.com/nozzle/diffmap/distance"
	"github.com/nozzle/diffmap/internal/heap"
	"github.com/nozzle/diffmap/internal/parallel"
	"github.com/nozzle/diffmap/internal/rand"
)

// RPTree is a random projection tree. Each internal node splits its points
// by the hyperplane bisecting two randomly chosen members.
type RPTree struct {
	// Hyperplane normal for splits (nil for leaf nodes)
	Hyperplane []float32
	// Offset for the hyperplane decision
	Offset float32
	// Left and Right children (nil for leaves)
	Left  *RPTree
	Right *RPTree
	// Indices of points in this leaf (empty for internal nodes)
	Indices []int32
	// IsLeaf indicates if this is a leaf node
	IsLeaf bool
}

// RPForest is a collection of RP-trees over the same data.
type RPForest struct {
	Trees    []*RPTree
	LeafSize int
}

// RPForestConfig configures RP-forest construction.
type RPForestConfig struct {
	// NumTrees is the number of trees to build
	NumTrees int
	// LeafSize is the maximum number of points in a leaf
	LeafSize int
	// Seed for random number generation
	Seed int64
}

// DefaultRPForestConfig returns default configuration.
func DefaultRPForestConfig() RPForestConfig {
	return RPForestConfig{
		NumTrees: 8,
		LeafSize: 30,
		Seed:     42,
	}
}

// BuildRPForest builds a random projection forest from data.
func BuildRPForest(data [][]float32, config RPForestConfig) *RPForest {
	n := len(data)
	if n == 0 {
		return &RPForest{}
	}

	rng := rand.New(config.Seed)
	trees := make([]*RPTree, config.NumTrees)

	for t := range trees {
		indices := make([]int32, n)
		for i := range indices {
			indices[i] = int32(i)
		}
		trees[t] = buildRPTree(data, indices, max(config.LeafSize, 2), &rng)
	}

	return &RPForest{Trees: trees, LeafSize: config.LeafSize}
}

// buildRPTree recursively builds an RP-tree.
func buildRPTree(data [][]float32, indices []int32, leafSize int, rng *rand.State) *RPTree {
	if len(indices) <= leafSize {
		leafIndices := make([]int32, len(indices))
		copy(leafIndices, indices)
		return &RPTree{Indices: leafIndices, IsLeaf: true}
	}

	dim := len(data[0])
	i := rand.Intn(rng, len(indices))
	j := rand.Intn(rng, len(indices))
	for j == i {
		j = rand.Intn(rng, len(indices))
	}

	p1 := data[indices[i]]
	p2 := data[indices[j]]

	// Normal p2-p1 through the midpoint.
	hyperplane := make([]float32, dim)
	var offset float32
	for d := range dim {
		hyperplane[d] = p2[d] - p1[d]
		offset += (p1[d] + p2[d]) / 2 * hyperplane[d]
	}

	leftIndices := make([]int32, 0, len(indices)/2)
	rightIndices := make([]int32, 0, len(indices)/2)
	for _, idx := range indices {
		if side(data[idx], hyperplane) < offset {
			leftIndices = append(leftIndices, idx)
		} else {
			rightIndices = append(rightIndices, idx)
		}
	}

	// Duplicate points make the split degenerate; fall back to a random one.
	if len(leftIndices) == 0 || len(rightIndices) == 0 {
		rand.Shuffle(rng, indices)
		mid := len(indices) / 2
		leftIndices = indices[:mid]
		rightIndices = indices[mid:]
	}

	return &RPTree{
		Hyperplane: hyperplane,
		Offset:     offset,
		Left:       buildRPTree(data, leftIndices, leafSize, rng),
		Right:      buildRPTree(data, rightIndices, leafSize, rng),
	}
}

func side(point, hyperplane []float32) float32 {
	var s float32
	for d := range hyperplane {
		s += point[d] * hyperplane[d]
	}
	return s
}

// SearchTree finds the leaf containing a query point.
func (t *RPTree) SearchTree(query []float32) []int32 {
	for !t.IsLeaf {
		if side(query, t.Hyperplane) < t.Offset {
			t = t.Left
		} else {
			t = t.Right
		}
	}
	return t.Indices
}

// SearchForest collects the distinct leaf members of query over all trees.
func (f *RPForest) SearchForest(query []float32) []int32 {
	seen := make(map[int32]struct{})
	var result []int32
	for _, tree := range f.Trees {
		for _, idx := range tree.SearchTree(query) {
			if _, ok := seen[idx]; !ok {
				seen[idx] = struct{}{}
				result = append(result, idx)
			}
		}
	}
	return result
}

// InitializeFromForest builds a starting k-NN graph from RP-forest leaves,
// topping up rows with random points when the leaves are too small.
// Rows are sorted ascending by squared distance.
func InitializeFromForest(data [][]float32, k int, forest *RPForest, numWorkers int) *KNNGraph {
	n := len(data)
	k = min(k, n-1)

	indices := make([][]int32, n)
	dists := make([][]float32, n)

	parallel.ParallelFor(0, n, numWorkers, func(i int) {
		indices[i] = make([]int32, k)
		dists[i] = make([]float32, k)
		heap.Init(indices[i], dists[i])

		for _, cand := range forest.SearchForest(data[i]) {
			if int(cand) == i {
				continue
			}
			heap.SimpleHeapPush(indices[i], dists[i], k, cand, distance.SquaredEuclidean(data[i], data[cand]))
		}

		if countValidNeighbors(indices[i]) < k {
			rng := rand.New(int64(i) + 1)
			for countValidNeighbors(indices[i]) < k {
				j := rand.Intn(&rng, n)
				if j == i {
					continue
				}
				heap.SimpleHeapPush(indices[i], dists[i], k, int32(j), distance.SquaredEuclidean(data[i], data[j]))
			}
		}

		heap.DeheapSort(indices[i], dists[i], k)
	})

	return &KNNGraph{Indices: indices, Distances: dists, N: n, K: k}
}

// countValidNeighbors counts neighbors with valid indices
func countValidNeighbors(indices []int32) int {
	count := 0
	for _, idx := range indices {
		if idx >= 0 {
			count++
		}
	}
	return count
}
