package engine

import (
	"context"
	"runtime"
	"sync"
)

// Func analyses one path. It returns a nil report when there is nothing
// to emit.
type Func func(ctx context.Context, path string) (*Report, error)

// Pool runs a Func over many paths on a fixed number of workers.
type Pool struct {
	// Workers is the number of concurrent analyses. Zero or less means
	// one per CPU.
	Workers int
}

func (p Pool) workers(n int) int {
	w := p.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Run calls fn for every path and hands each report to emit. Reports
// arrive in completion order, and emit is only ever called from the
// goroutine that called Run.
//
// When ctx is cancelled, no further paths are dispatched and any report
// produced after the cancellation was observed is dropped, so emit never
// sees a result from an interrupted analysis. Run then returns ctx.Err().
func (p Pool) Run(ctx context.Context, paths []string, fn Func, emit func(*Report)) error {
	if len(paths) == 0 {
		return ctx.Err()
	}

	jobs := make(chan string)
	results := make(chan *Report)

	var wg sync.WaitGroup
	for i := 0; i < p.workers(len(paths)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				rep, _ := fn(ctx, path)
				if rep == nil || ctx.Err() != nil {
					continue
				}
				select {
				case results <- rep:
				case <-ctx.Done():
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, path := range paths {
			select {
			case jobs <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for rep := range results {
		// A worker may have won the race against cancellation.
		if ctx.Err() != nil {
			continue
		}
		emit(rep)
	}
	return ctx.Err()
}
