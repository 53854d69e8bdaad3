package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"sneakpeak/pkg/logger"
)

// Handler processes job index on behalf of worker workerID.
type Handler func(ctx context.Context, workerID, index int) error

// PanicError is returned for a job whose handler panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Stats summarises a Process call.
type Stats struct {
	Succeeded int
	Failed    int
	// Errors holds the handler error for each job index, nil on success.
	Errors []error
}

// Manager manages workers and distributes jobs to them
type Manager struct {
	workerCount int
	log         logger.Logger
}

// NewManager creates a new manager. workerCount below 1 is treated as 1.
func NewManager(workerCount int, log logger.Logger) *Manager {
	if workerCount < 1 {
		workerCount = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		workerCount: workerCount,
		log:         log,
	}
}

// WorkerCount is the number of concurrent workers.
func (m *Manager) WorkerCount() int {
	return m.workerCount
}

// Process runs handle for every index in [0, count) and waits for all of
// them. Each index is handled exactly once. Once ctx is done, remaining jobs
// are not started and report ctx.Err().
func (m *Manager) Process(ctx context.Context, count int, handle Handler) Stats {
	stats := Stats{Errors: make([]error, count)}
	if count == 0 {
		return stats
	}

	// Create job channel
	jobChan := make(chan int, count)
	for i := 0; i < count; i++ {
		jobChan <- i
	}
	close(jobChan)

	type result struct {
		index    int
		workerID int
		err      error
	}
	resultsChan := make(chan result, count)

	workers := m.workerCount
	if workers > count {
		workers = count
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for index := range jobChan {
				var err error
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				} else {
					err = m.run(ctx, handle, workerID, index)
				}
				resultsChan <- result{index: index, workerID: workerID, err: err}
			}
		}(i)
	}

	// Close results channel when all workers finish
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Aggregate results in a single goroutine
	for res := range resultsChan {
		stats.Errors[res.index] = res.err
		if res.err == nil {
			stats.Succeeded++
			continue
		}
		stats.Failed++
		m.log.Debug("Job failed",
			logger.Int("worker", res.workerID),
			logger.Int("job", res.index),
			logger.Error(res.err),
		)
	}

	return stats
}

// run invokes handle and converts a panic into a *PanicError.
func (m *Manager) run(ctx context.Context, handle Handler, workerID, index int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return handle(ctx, workerID, index)
}
