// Package worker runs blocking jobs on a bounded set of goroutines so a slow
// outbound call never stalls inbound message handling.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pacifica-bot/internal/metrics"
)

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Job is one unit of work. Run receives the pool's context.
type Job struct {
	Name   string
	UserID int64
	Run    func(ctx context.Context)
}

// Pool is a fixed-size worker pool fed by a buffered queue.
type Pool struct {
	ctx      context.Context
	logger   *slog.Logger
	jobChan  chan Job
	workerWg sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewPool starts size workers. Jobs run with ctx, which should live as long
// as the process.
func NewPool(ctx context.Context, size, queueSize int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		ctx:     ctx,
		logger:  logger,
		jobChan: make(chan Job, queueSize),
	}

	for i := 0; i < size; i++ {
		p.workerWg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.workerWg.Done()

	for job := range p.jobChan {
		metrics.WorkerQueueDepth.Set(float64(len(p.jobChan)))
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker job panicked", "job", job.Name, "user_id", job.UserID, "panic", r)
		}
	}()

	job.Run(p.ctx)
	p.logger.Debug("Worker job finished", "job", job.Name, "user_id", job.UserID, "duration", time.Since(start))
}

// Submit queues job without blocking. It fails with ErrQueueFull when the
// queue is at capacity.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobChan <- job:
		metrics.WorkerQueueDepth.Set(float64(len(p.jobChan)))
		return nil
	default:
		metrics.WorkerRejected.Inc()
		p.logger.Warn("Worker queue full, rejecting job", "job", job.Name, "user_id", job.UserID)
		return ErrQueueFull
	}
}

// Stop refuses new jobs and waits for queued ones to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobChan)
	p.mu.Unlock()

	p.workerWg.Wait()
}
