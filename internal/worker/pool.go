// Package worker provides the bounded pool that drives batch ingestion.
package worker

import (
	"context"
	"sync"
)

// Task is a unit of ingestion work executed by the pool
type Task func(ctx context.Context) Outcome

// Outcome is what a task produced; the pool treats it opaquely
type Outcome struct {
	Ref string // caller-chosen reference, e.g. input line number or claim id
	Err error
}

// Pool executes tasks concurrently with a fixed number of workers
type Pool struct {
	workers   int
	tasks     chan Task
	outcomes  chan Outcome
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPool creates a pool with the given worker count
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:  workers,
		tasks:    make(chan Task, workers*2),
		outcomes: make(chan Outcome, workers*2),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			outcome := task(p.ctx)
			select {
			case p.outcomes <- outcome:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a task; it is dropped if the pool is shut down
func (p *Pool) Submit(task Task) {
	select {
	case <-p.ctx.Done():
	case p.tasks <- task:
	}
}

// Wait closes the queue, waits for the workers, and returns all outcomes
func (p *Pool) Wait() []Outcome {
	close(p.tasks)
	go func() {
		p.wg.Wait()
		p.closeOutcomes()
	}()

	var all []Outcome
	for outcome := range p.outcomes {
		all = append(all, outcome)
	}
	return all
}

// Shutdown cancels in-flight tasks and stops the pool
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.closeOutcomes()
}

func (p *Pool) closeOutcomes() {
	p.closeOnce.Do(func() {
		close(p.outcomes)
	})
}
