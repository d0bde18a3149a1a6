package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimpleHeapPushKeepsSmallest(t *testing.T) {
	const k = 3
	indices := make([]int32, k)
	distances := make([]float32, k)
	Init(indices, distances)

	candidates := []float32{5, 1, 4, 2, 3, 0.5}
	for i, d := range candidates {
		SimpleHeapPush(indices, distances, k, int32(i), d)
	}
	DeheapSort(indices, distances, k)

	assert.Equal(t, []int32{5, 1, 3}, indices)
	assert.Equal(t, []float32{0.5, 1, 2}, distances)
}

func TestSimpleHeapPushRejectsDuplicates(t *testing.T) {
	const k = 2
	indices := make([]int32, k)
	distances := make([]float32, k)
	Init(indices, distances)

	assert.True(t, SimpleHeapPush(indices, distances, k, 7, 1.0))
	assert.False(t, SimpleHeapPush(indices, distances, k, 7, 0.5))
}

func TestFlaggedHeapPushMovesFlags(t *testing.T) {
	const k = 3
	indices := []int32{10, 11, 12}
	distances := []float32{1, 9, 4}
	flags := []uint8{0, 1, 0}
	Heapify(indices, distances, flags, k)

	assert.Equal(t, float32(9), distances[0])
	assert.Equal(t, uint8(1), flags[0])

	assert.True(t, FlaggedHeapPush(indices, distances, flags, k, 13, 2, 1))
	DeheapSort(indices, distances, k)
	assert.Equal(t, []int32{10, 13, 12}, indices)
}
