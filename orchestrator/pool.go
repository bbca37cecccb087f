package orchestrator

import (
	"context"
	"sync"
)

// forEach calls fn(i) for i in [0, n) on a fixed number of workers. Each call
// must only write state owned by index i. Once ctx is done no further indices
// are dispatched; calls already running finish and ctx.Err() is returned.
func forEach(ctx context.Context, workers, n int, bar *progress, fn func(i int)) error {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
				bar.Increment()
			}
		}()
	}

	var err error
dispatch:
	for i := 0; i < n; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return err
}
