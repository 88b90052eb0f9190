package concurrency

import (
	"context"
	"sync"
)

// WorkerFn handles the task at index.
type WorkerFn func(ctx context.Context, index int)

// SimpleWorkerPool runs fn for every index in [0, tasks) on at most
// concurrency goroutines and returns once all started tasks are done.
// Indexes not yet handed out when ctx is cancelled are skipped.
func SimpleWorkerPool(ctx context.Context, concurrency int, tasks int, fn WorkerFn) {
	if tasks <= 0 {
		return
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > tasks {
		concurrency = tasks
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				fn(ctx, idx)
			}
		}()
	}

feed:
	for i := 0; i < tasks; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
}
