package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Stats is a snapshot of executor counters
type Stats struct {
	TotalJobs     int64 `json:"total_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	ActiveWorkers int64 `json:"active_workers"`
}

// Executor runs submitted jobs one at a time on a single worker, in
// submission order.
type Executor struct {
	jobQueue chan func()
	wg       sync.WaitGroup
	once     sync.Once

	mu     sync.RWMutex
	closed bool

	totalJobs     atomic.Int64
	completedJobs atomic.Int64
	activeWorkers atomic.Int64
}

var (
	sharedOnce     sync.Once
	sharedExecutor *Executor
)

// SharedExecutor returns the process-wide executor every Runtime uses by
// default. It is started on first use and never closed.
func SharedExecutor() *Executor {
	sharedOnce.Do(func() {
		sharedExecutor = NewExecutor(16)
		sharedExecutor.Start()
	})
	return sharedExecutor
}

// NewExecutor creates an executor with a queue of the given depth
func NewExecutor(queue int) *Executor {
	if queue < 0 {
		queue = 0
	}
	return &Executor{
		jobQueue: make(chan func(), queue),
	}
}

// Start launches the worker; further calls do nothing
func (e *Executor) Start() {
	e.once.Do(func() {
		go e.worker()
	})
}

func (e *Executor) worker() {
	drained := false
	defer func() {
		if !drained {
			// a job called runtime.Goexit and took this goroutine with it
			go e.worker()
		}
	}()
	for job := range e.jobQueue {
		e.run(job)
	}
	drained = true
}

func (e *Executor) run(job func()) {
	e.activeWorkers.Add(1)
	defer func() {
		// a panicking job must not stop the worker
		_ = recover()
		e.activeWorkers.Add(-1)
		e.completedJobs.Add(1)
		e.wg.Done()
	}()
	job()
}

// Submit queues a job. It reports false once the executor is closed.
func (e *Executor) Submit(job func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	e.totalJobs.Add(1)
	e.jobQueue <- job
	return true
}

// Do runs fn on the worker and waits for it. A panic in fn is returned as
// an error wrapping ErrPanic, and fn calling runtime.Goexit as ErrJobExited.
func (e *Executor) Do(fn func() error) error {
	done := make(chan error, 1)
	ok := e.Submit(func() {
		err := ErrJobExited
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
			done <- err
		}()
		err = fn()
	})
	if !ok {
		return ErrExecutorClosed
	}
	return <-done
}

// Wait blocks until every submitted job has completed
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Close stops accepting jobs; queued jobs still run
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.jobQueue)
}

// Stats returns the current counters
func (e *Executor) Stats() Stats {
	return Stats{
		TotalJobs:     e.totalJobs.Load(),
		CompletedJobs: e.completedJobs.Load(),
		ActiveWorkers: e.activeWorkers.Load(),
	}
}
