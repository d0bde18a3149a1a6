// Package lazy provides a symmetric matrix whose rows are produced on first
// access by a generator function and cached afterwards.
//
// Restricted views share the generator and the cache with their parent, so
// a row generated through any view is never generated again by another.
// The cache is not synchronized: a Matrix and its views must be used from
// one goroutine at a time.
package lazy

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nozzle/diffmap/errs"
)

// RowFunc generates the full row i of an N×N matrix.
type RowFunc func(i int) ([]float64, error)

type rowCache interface {
	get(i int) ([]float64, bool)
	put(i int, row []float64)
	len() int
}

type mapCache map[int][]float64

func (c mapCache) get(i int) ([]float64, bool) {
	r, ok := c[i]
	return r, ok
}

func (c mapCache) put(i int, row []float64) { c[i] = row }
func (c mapCache) len() int                 { return len(c) }

type lruCache struct {
	*lru.Cache[int, []float64]
}

func (c lruCache) get(i int) ([]float64, bool) { return c.Get(i) }
func (c lruCache) put(i int, row []float64)    { c.Add(i, row) }
func (c lruCache) len() int                    { return c.Len() }

type options struct {
	lruSize int
}

// Option configures a Matrix.
type Option func(*options)

// WithLRU bounds the cache to size rows, evicting the least recently used.
// An evicted row is generated again on its next access.
func WithLRU(size int) Option {
	return func(o *options) { o.lruSize = size }
}

// Matrix is an N×N symmetric matrix backed by a row generator, or a
// restricted view of one.
type Matrix struct {
	gen   RowFunc
	cache rowCache
	n     int   // size of the full matrix
	index []int // global indices of this view; nil means identity
}

// New returns an n×n matrix whose row i is gen(i).
func New(gen RowFunc, n int, opts ...Option) (*Matrix, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if n < 0 {
		return nil, errs.New(errs.KindConfiguration, "lazy.New", "negative size %d", n)
	}

	var c rowCache = mapCache{}
	if o.lruSize > 0 {
		l, err := lru.New[int, []float64](o.lruSize)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfiguration, "lazy.New", err, "row cache")
		}
		c = lruCache{l}
	}
	return &Matrix{gen: gen, cache: c, n: n}, nil
}

// Dims returns the dimensions of the view.
func (m *Matrix) Dims() (int, int) {
	if m.index == nil {
		return m.n, m.n
	}
	return len(m.index), len(m.index)
}

// Cached returns the number of rows currently held by the shared cache.
func (m *Matrix) Cached() int { return m.cache.len() }

func (m *Matrix) global(i int) (int, error) {
	r, _ := m.Dims()
	if i < 0 || i >= r {
		return 0, errs.New(errs.KindDimensionMismatch, "lazy.Matrix", "index %d out of range [0, %d)", i, r)
	}
	if m.index == nil {
		return i, nil
	}
	return m.index[i], nil
}

// fullRow returns the cached global row g, generating it on first use.
func (m *Matrix) fullRow(g int) ([]float64, error) {
	if row, ok := m.cache.get(g); ok {
		return row, nil
	}
	row, err := m.gen(g)
	if err != nil {
		return nil, err
	}
	if len(row) != m.n {
		return nil, errs.New(errs.KindDimensionMismatch, "lazy.Matrix", "generator returned %d entries for row %d, want %d", len(row), g, m.n)
	}
	m.cache.put(g, row)
	return row, nil
}

// Row returns row i of the view. For the full matrix the cached slice is
// returned and must not be modified.
func (m *Matrix) Row(i int) ([]float64, error) {
	g, err := m.global(i)
	if err != nil {
		return nil, err
	}
	row, err := m.fullRow(g)
	if err != nil || m.index == nil {
		return row, err
	}
	out := make([]float64, len(m.index))
	for j, gj := range m.index {
		out[j] = row[gj]
	}
	return out, nil
}

// At returns element (i, j) of the view.
func (m *Matrix) At(i, j int) (float64, error) {
	gi, err := m.global(i)
	if err != nil {
		return 0, err
	}
	gj, err := m.global(j)
	if err != nil {
		return 0, err
	}
	row, err := m.fullRow(gi)
	if err != nil {
		return 0, err
	}
	return row[gj], nil
}

// Restrict returns the view on rows and columns indices of m. Indices are
// local to m; the view shares m's generator and cache.
func (m *Matrix) Restrict(indices []int) (*Matrix, error) {
	index := make([]int, len(indices))
	for k, i := range indices {
		g, err := m.global(i)
		if err != nil {
			return nil, err
		}
		index[k] = g
	}
	return &Matrix{gen: m.gen, cache: m.cache, n: m.n, index: index}, nil
}
