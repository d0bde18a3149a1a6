// Package parallel provides fork-join helpers over index ranges.
//
// Every helper blocks until all work is done. Workers own disjoint index
// ranges, so results written by index come back in input order no matter
// which goroutine finishes first. With n <= 1 the same code runs inline.
package parallel

import (
	"runtime"
	"sync"
)

// NumWorkers returns the default number of workers for parallel operations.
func NumWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// Resolve maps a configured worker count to an effective one (0 = auto).
func Resolve(n int) int {
	if n <= 0 {
		return NumWorkers()
	}
	return n
}

// Chunks splits [start, end) into consecutive ranges of at most size.
func Chunks(start, end, size int) [][2]int {
	if size <= 0 {
		size = 1
	}
	var out [][2]int
	for s := start; s < end; s += size {
		out = append(out, [2]int{s, min(s+size, end)})
	}
	return out
}

// ParallelFor executes fn for indices [start, end) using n workers.
func ParallelFor(start, end, n int, fn func(i int)) {
	if n <= 1 {
		for i := start; i < end; i++ {
			fn(i)
		}
		return
	}

	total := end - start
	if total <= 0 {
		return
	}

	var wg sync.WaitGroup
	chunkSize := (total + n - 1) / n

	for w := 0; w < n; w++ {
		chunkStart := start + w*chunkSize
		chunkEnd := min(chunkStart+chunkSize, end)
		if chunkStart >= chunkEnd {
			break
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				fn(i)
			}
		}(chunkStart, chunkEnd)
	}

	wg.Wait()
}

// ParallelForChunked executes fn for chunks of indices.
// fn receives (chunkStart, chunkEnd) for each chunk.
func ParallelForChunked(start, end, chunkSize, n int, fn func(chunkStart, chunkEnd int)) {
	chunks := Chunks(start, end, chunkSize)
	if n <= 1 {
		for _, c := range chunks {
			fn(c[0], c[1])
		}
		return
	}

	var wg sync.WaitGroup
	work := make(chan [2]int, n)

	for w := 0; w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range work {
				fn(c[0], c[1])
			}
		}()
	}

	for _, c := range chunks {
		work <- c
	}
	close(work)

	wg.Wait()
}

// ParallelMap applies fn to each index and collects results in index order.
func ParallelMap[T any](start, end, n int, fn func(i int) T) []T {
	results := make([]T, end-start)
	ParallelFor(start, end, n, func(i int) {
		results[i-start] = fn(i)
	})
	return results
}
