package render

import (
	"runtime"
	"sync"
)

// chunkRange is a half-open slice [Start, End) of the ray batch,
// processed as one unit.
type chunkRange struct {
	Start, End int
}

// splitChunks partitions n rays into ranges of at most size rays.
// size <= 0 yields a single range.
func splitChunks(n, size int) []chunkRange {
	if size <= 0 || size >= n {
		return []chunkRange{{0, n}}
	}
	chunks := make([]chunkRange, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		chunks = append(chunks, chunkRange{start, min(start+size, n)})
	}
	return chunks
}

// chunkTask pairs a chunk with its index so results can be accounted
// for deterministically.
type chunkTask struct {
	ID    int
	Range chunkRange
}

// chunkResult reports completion of one chunk.
type chunkResult struct {
	ID  int
	Err error
}

// workerPool fans chunk tasks out across a fixed set of goroutines.
// Chunk outputs land in a shared, index-addressed result owned by the
// caller (chunks never overlap), so the pool itself only carries
// completion and errors back.
type workerPool struct {
	tasks   chan chunkTask
	results chan chunkResult
	run     func(chunkTask) error
	wg      sync.WaitGroup
	workers int
}

// newWorkerPool creates a pool with the given number of workers;
// numWorkers <= 0 uses the CPU count. queue bounds both channels and
// should hold all tasks so submission never blocks.
func newWorkerPool(numWorkers, queue int, run func(chunkTask) error) *workerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &workerPool{
		tasks:   make(chan chunkTask, queue),
		results: make(chan chunkResult, queue),
		run:     run,
		workers: numWorkers,
	}
}

// start launches the workers.
func (wp *workerPool) start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

func (wp *workerPool) worker() {
	defer wp.wg.Done()
	for task := range wp.tasks {
		wp.results <- chunkResult{ID: task.ID, Err: wp.run(task)}
	}
}

// submit queues a task for execution.
func (wp *workerPool) submit(task chunkTask) {
	wp.tasks <- task
}

// getResult blocks for the next completed chunk.
func (wp *workerPool) getResult() chunkResult {
	return <-wp.results
}

// stop closes the task queue and waits for the workers to drain it.
func (wp *workerPool) stop() {
	close(wp.tasks)
	wp.wg.Wait()
	close(wp.results)
}
