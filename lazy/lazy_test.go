package lazy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozzle/diffmap/errs"
)

// countingGen returns a generator of the symmetric matrix a[i][j] = i*j + i + j
// and a per-row call counter.
func countingGen(n int) (RowFunc, map[int]int) {
	calls := make(map[int]int)
	return func(i int) ([]float64, error) {
		calls[i]++
		row := make([]float64, n)
		for j := range row {
			row[j] = float64(i*j + i + j)
		}
		return row, nil
	}, calls
}

func TestMatrixGeneratesEachRowOnce(t *testing.T) {
	gen, calls := countingGen(5)
	m, err := New(gen, 5)
	require.NoError(t, err)

	first, err := m.Row(3)
	require.NoError(t, err)
	second, err := m.Row(3)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	v, err := m.At(3, 4)
	require.NoError(t, err)
	assert.Equal(t, 19.0, v)

	assert.Equal(t, 1, calls[3])
	assert.Equal(t, 1, m.Cached())
}

func TestMatrixSymmetricAccess(t *testing.T) {
	gen, _ := countingGen(6)
	m, err := New(gen, 6)
	require.NoError(t, err)

	for i := range 6 {
		for j := range 6 {
			a, err := m.At(i, j)
			require.NoError(t, err)
			b, err := m.At(j, i)
			require.NoError(t, err)
			assert.Equal(t, a, b)
		}
	}
}

func TestRestrictRemapsIndices(t *testing.T) {
	gen, calls := countingGen(8)
	m, err := New(gen, 8)
	require.NoError(t, err)

	view, err := m.Restrict([]int{7, 2, 5})
	require.NoError(t, err)
	r, c := view.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)

	v, err := view.At(0, 1)
	require.NoError(t, err)
	want, err := m.At(7, 2)
	require.NoError(t, err)
	assert.Equal(t, want, v)

	row, err := view.Row(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{5*7 + 5 + 7, 5*2 + 5 + 2, 5*5 + 5 + 5}, row)

	// Views of views compose and keep sharing the cache.
	inner, err := view.Restrict([]int{2, 0})
	require.NoError(t, err)
	v, err = inner.At(0, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(5*7+5+7), v)

	assert.Equal(t, 1, calls[5])
	assert.Equal(t, 1, calls[7])
	assert.Equal(t, 2, m.Cached())
}

func TestRestrictRejectsOutOfRange(t *testing.T) {
	gen, _ := countingGen(4)
	m, err := New(gen, 4)
	require.NoError(t, err)

	_, err = m.Restrict([]int{0, 4})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	view, err := m.Restrict([]int{1, 2})
	require.NoError(t, err)
	_, err = view.At(0, 2)
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestGeneratorErrorsAreNotCached(t *testing.T) {
	fail := true
	m, err := New(func(i int) ([]float64, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return []float64{1, 2}, nil
	}, 2)
	require.NoError(t, err)

	_, err = m.Row(0)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 0, m.Cached())

	fail = false
	row, err := m.Row(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, row)
}

func TestGeneratorRowLengthChecked(t *testing.T) {
	m, err := New(func(i int) ([]float64, error) { return []float64{1}, nil }, 3)
	require.NoError(t, err)

	_, err = m.Row(0)
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestWithLRUBoundsCache(t *testing.T) {
	gen, calls := countingGen(10)
	m, err := New(gen, 10, WithLRU(2))
	require.NoError(t, err)

	for _, i := range []int{0, 1, 2} {
		_, err := m.Row(i)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.Cached())

	// Row 0 was evicted and is generated again; row 2 is still cached.
	_, err = m.Row(0)
	require.NoError(t, err)
	_, err = m.Row(2)
	require.NoError(t, err)
	assert.Equal(t, 2, calls[0])
	assert.Equal(t, 1, calls[2])
}
