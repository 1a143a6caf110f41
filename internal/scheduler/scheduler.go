// Package scheduler runs independent jobs on a fixed set of workers.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Job is one independent unit of work.
type Job func() error

// JobFailure records the error returned by the job at Index.
type JobFailure struct {
	Index int
	Err   error
}

// BatchError lists every failed job of a batch, ordered by job index.
type BatchError struct {
	Failures []JobFailure
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		f := e.Failures[0]
		return fmt.Sprintf("job %d failed: %v", f.Index, f.Err)
	}

	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("job %d: %v", f.Index, f.Err))
	}
	return fmt.Sprintf("%d jobs failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Partition assigns job indices [0, n) to workers round-robin:
// worker i gets i, i+w, i+2w, ... The worker count is clamped to n.
func Partition(n, workers int) [][]int {
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	parts := make([][]int, workers)
	for i := 0; i < n; i++ {
		parts[i%workers] = append(parts[i%workers], i)
	}
	return parts
}

// RunSequential runs every job in order on the calling goroutine.
// A failure does not stop later jobs; all failures are returned together.
func RunSequential(jobs []Job) error {
	var failures []JobFailure
	for i, job := range jobs {
		if err := runJob(job); err != nil {
			failures = append(failures, JobFailure{Index: i, Err: err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &BatchError{Failures: failures}
}

// RunParallel spreads jobs over workers goroutines and returns once every
// job has run. Failures are collected and reported after all workers finish.
func RunParallel(jobs []Job, workers int) error {
	parts := Partition(len(jobs), workers)
	if len(parts) == 1 {
		return RunSequential(jobs)
	}

	var (
		mu       sync.Mutex
		failures []JobFailure
		wg       sync.WaitGroup
	)

	for _, indices := range parts {
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()

			share := make([]Job, len(indices))
			for k, idx := range indices {
				share[k] = jobs[idx]
			}

			be, ok := RunSequential(share).(*BatchError)
			if !ok {
				return
			}

			mu.Lock()
			for _, f := range be.Failures {
				failures = append(failures, JobFailure{Index: indices[f.Index], Err: f.Err})
			}
			mu.Unlock()
		}(indices)
	}

	wg.Wait()

	if len(failures) == 0 {
		return nil
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Index < failures[j].Index
	})
	return &BatchError{Failures: failures}
}

// runJob turns a panicking job into a failure of that job.
func runJob(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	if job == nil {
		return errors.New("nil job")
	}
	return job()
}
