// Package worker runs jobs with bounded parallelism. Results always come
// back in the order the jobs were given.
package worker

import (
	"context"
	"sync"
	"time"
)

// Job is one unit of work.
type Job[T any] struct {
	Name string
	Fn   func(ctx context.Context) (T, error)
}

// Result holds the outcome of a single job.
type Result[T any] struct {
	Name     string
	Value    T
	Duration time.Duration
	Err      error
}

// Pool bounds how many jobs run at once.
type Pool struct {
	maxWorkers int
}

// NewPool creates a pool running at most maxWorkers jobs concurrently.
// Values below 1 mean sequential execution.
func NewPool(maxWorkers int) *Pool {
	return &Pool{maxWorkers: maxWorkers}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int {
	if p.maxWorkers < 1 {
		return 1
	}
	return p.maxWorkers
}

// Run executes all jobs (up to the pool limit at a time) and returns
// their results. Jobs not yet started when ctx is cancelled report
// ctx.Err() without running.
func Run[T any](ctx context.Context, p *Pool, jobs []Job[T]) []Result[T] {
	if p.Workers() <= 1 || len(jobs) <= 1 {
		return runSequential(ctx, jobs)
	}
	return runParallel(ctx, p.Workers(), jobs)
}

func runSequential[T any](ctx context.Context, jobs []Job[T]) []Result[T] {
	results := make([]Result[T], 0, len(jobs))
	for _, job := range jobs {
		results = append(results, execute(ctx, job))
	}
	return results
}

func runParallel[T any](ctx context.Context, workers int, jobs []Job[T]) []Result[T] {
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	results := make([]Result[T], len(jobs))

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			results[i] = Result[T]{Name: job.Name, Err: err}
			continue
		}

		wg.Add(1)
		sem <- struct{}{} // Acquire worker slot.

		go func(idx int, j Job[T]) {
			defer wg.Done()
			defer func() { <-sem }() // Release worker slot.
			results[idx] = execute(ctx, j)
		}(i, job)
	}

	wg.Wait()
	return results
}

func execute[T any](ctx context.Context, job Job[T]) Result[T] {
	if err := ctx.Err(); err != nil {
		return Result[T]{Name: job.Name, Err: err}
	}
	start := time.Now()
	v, err := job.Fn(ctx)
	return Result[T]{Name: job.Name, Value: v, Duration: time.Since(start), Err: err}
}
