// Package heap provides array-backed max-heaps used to select the k nearest
// neighbors of a point without sorting the full candidate list.
//
// The heap arrays are plain slices owned by the caller. Slot 0 always holds
// the current worst (largest) distance, so a candidate is rejected with a
// single comparison once the heap is full.
package heap

// Sentinel values for empty heap slots.
const (
	EmptyIndex    int32   = -1
	EmptyDistance float32 = 1e30
)

// Init fills the heap arrays with sentinel values.
func Init(indices []int32, distances []float32) {
	for i := range indices {
		indices[i] = EmptyIndex
		distances[i] = EmptyDistance
	}
}

// Heapify restores the max-heap property over the first k slots of
// possibly unordered arrays. flags may be nil.
func Heapify(indices []int32, distances []float32, flags []uint8, k int) {
	for i := k/2 - 1; i >= 0; i-- {
		siftDown(indices, distances, flags, i, k)
	}
}

// SimpleHeapPush offers (idx, dist) to a heap of size k.
// Returns true if the candidate replaced the current worst entry.
// Candidates already present in the heap are ignored.
func SimpleHeapPush(
	indices []int32,
	distances []float32,
	k int,
	idx int32,
	dist float32,
) bool {
	if dist >= distances[0] {
		return false
	}
	for i := 0; i < k; i++ {
		if indices[i] == idx {
			return false
		}
	}

	distances[0] = dist
	indices[0] = idx
	siftDown(indices, distances, nil, 0, k)
	return true
}

// FlaggedHeapPush is SimpleHeapPush with a per-slot flag that travels with
// the entry (used by NNDescent to mark new vs. old neighbors).
func FlaggedHeapPush(
	indices []int32,
	distances []float32,
	flags []uint8,
	k int,
	idx int32,
	dist float32,
	flag uint8,
) bool {
	if dist >= distances[0] {
		return false
	}
	for i := 0; i < k; i++ {
		if indices[i] == idx {
			return false
		}
	}

	distances[0] = dist
	indices[0] = idx
	flags[0] = flag
	siftDown(indices, distances, flags, 0, k)
	return true
}

// DeheapSort sorts heap arrays in place, ascending by distance.
func DeheapSort(indices []int32, distances []float32, k int) {
	for i := k - 1; i > 0; i-- {
		distances[0], distances[i] = distances[i], distances[0]
		indices[0], indices[i] = indices[i], indices[0]
		siftDown(indices, distances, nil, 0, i)
	}
}

// siftDown moves the entry at i down until both children are not larger.
// Only the first n slots are considered.
func siftDown(indices []int32, distances []float32, flags []uint8, i, n int) {
	for {
		left := 2*i + 1
		right := 2*i + 2

		if left >= n {
			return
		}

		swap := i
		if distances[left] > distances[swap] {
			swap = left
		}
		if right < n && distances[right] > distances[swap] {
			swap = right
		}
		if swap == i {
			return
		}

		distances[i], distances[swap] = distances[swap], distances[i]
		indices[i], indices[swap] = indices[swap], indices[i]
		if flags != nil {
			flags[i], flags[swap] = flags[swap], flags[i]
		}
		i = swap
	}
}
