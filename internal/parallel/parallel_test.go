package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunks(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 4}, {4, 8}, {8, 10}}, Chunks(0, 10, 4))
	assert.Empty(t, Chunks(5, 5, 3))
}

func TestParallelForCoversRange(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		seen := make([]int32, 101)
		ParallelFor(0, len(seen), workers, func(i int) {
			atomic.AddInt32(&seen[i], 1)
		})
		for i, c := range seen {
			assert.Equal(t, int32(1), c, "index %d with %d workers", i, workers)
		}
	}
}

func TestParallelForChunkedCoversRange(t *testing.T) {
	var total int64
	ParallelForChunked(0, 1000, 64, 4, func(s, e int) {
		atomic.AddInt64(&total, int64(e-s))
	})
	assert.Equal(t, int64(1000), total)
}

func TestParallelMapKeepsOrder(t *testing.T) {
	got := ParallelMap(10, 20, 4, func(i int) int { return i * i })
	for i, v := range got {
		assert.Equal(t, (i+10)*(i+10), v)
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, NumWorkers(), Resolve(0))
	assert.Equal(t, 3, Resolve(3))
}
