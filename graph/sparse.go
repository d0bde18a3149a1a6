package graph

import (
	"sort"

	"github.com/nozzle/diffmap/errs"
	"github.com/nozzle/diffmap/nn"
)

// SparseDistanceMatrix lays the neighbor lists out as an N×N CSR matrix of
// squared distances. Every row holds exactly g.K entries, so the row
// pointer advances with stride g.K. Zero distances between duplicate
// points are stored explicitly.
func SparseDistanceMatrix(g *nn.KNNGraph) *CSRMatrix {
	n, k := g.N, g.K
	indptr := make([]int32, n+1)
	indices := make([]int32, n*k)
	data := make([]float64, n*k)

	order := make([]int, k)
	for i := range n {
		for j := range order {
			order[j] = j
		}
		row := g.Indices[i]
		sort.Slice(order, func(a, b int) bool { return row[order[a]] < row[order[b]] })

		base := i * k
		for p, j := range order {
			indices[base+p] = row[j]
			data[base+p] = float64(g.Distances[i][j])
		}
		indptr[i+1] = int32(base + k)
	}

	return &CSRMatrix{
		Indptr:  indptr,
		Indices: indices,
		Data:    data,
		NRows:   n,
		NCols:   n,
		NNZ:     n * k,
	}
}

// NeighborsFromCSR recovers neighbor lists from a precomputed squared
// distance graph. Every row must carry the same number of off-diagonal
// entries.
func NeighborsFromCSR(dsq *CSRMatrix) (*nn.KNNGraph, error) {
	n := dsq.NRows
	if n != dsq.NCols {
		return nil, errs.New(errs.KindDimensionMismatch, "graph.NeighborsFromCSR", "distance graph is %d×%d, want square", n, dsq.NCols)
	}

	g := &nn.KNNGraph{
		Indices:   make([][]int32, n),
		Distances: make([][]float32, n),
		N:         n,
		K:         -1,
	}
	for i := range n {
		cols, vals := dsq.GetRow(i)
		type nb struct {
			j int32
			d float64
		}
		row := make([]nb, 0, len(cols))
		for p, j := range cols {
			if int(j) != i {
				row = append(row, nb{j, vals[p]})
			}
		}
		if g.K == -1 {
			g.K = len(row)
		} else if len(row) != g.K {
			return nil, errs.New(errs.KindDimensionMismatch, "graph.NeighborsFromCSR", "row %d has %d neighbors, row 0 has %d", i, len(row), g.K)
		}
		sort.SliceStable(row, func(a, b int) bool { return row[a].d < row[b].d })

		g.Indices[i] = make([]int32, len(row))
		g.Distances[i] = make([]float32, len(row))
		for p, e := range row {
			g.Indices[i][p] = e.j
			g.Distances[i][p] = float32(e.d)
		}
	}
	if g.K < 1 {
		return nil, errs.New(errs.KindConfiguration, "graph.NeighborsFromCSR", "distance graph has no neighbors")
	}
	return g, nil
}
