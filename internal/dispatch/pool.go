// Package dispatch is the processing core: a single-threaded loop that
// classifies gateway events and a bounded worker pool that performs the
// venue calls so the loop never blocks on the terminal.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is one unit of venue work. The context carries the pool's
// per-task deadline.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of workers with a bounded backlog.
// Submission is non-blocking: a saturated pool rejects rather than
// stalls the dispatch loop.
type Pool struct {
	tasks   chan Task
	timeout time.Duration
	workers int
	log     zerolog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewPool(workers, backlog int, timeout time.Duration, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if backlog < 1 {
		backlog = workers
	}
	return &Pool{
		tasks:   make(chan Task, backlog),
		timeout: timeout,
		workers: workers,
		log:     logger,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().Int("workers", p.workers).Int("backlog", cap(p.tasks)).Msg("Worker pool started")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		task(ctx)
		cancel()
	}
	p.log.Debug().Int("worker", id).Msg("Worker stopped")
}

// Submit queues a task. It returns false when the backlog is full.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		p.log.Warn().Msg("Worker pool backlog full, task rejected")
		return false
	}
}

// Stop drains the backlog and waits for running tasks to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}
