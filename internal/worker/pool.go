// Package worker runs reconciliation batches on a bounded goroutine pool so
// the API can accept runs without blocking the request.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrQueueFull  = errors.New("worker queue is full")
)

// Config sizes the pool. Zero values are replaced by defaults.
type Config struct {
	Workers         int
	QueueSize       int
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
}

// Pool executes submitted jobs on a fixed set of workers. Panics in a job
// are recovered and logged; they never take a worker down.
type Pool struct {
	config Config
	logger *slog.Logger

	jobs   chan func() error
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	closed atomic.Bool

	completed atomic.Int64
	panicked  atomic.Int64
}

// NewPool starts the workers immediately.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config: cfg,
		logger: logger,
		jobs:   make(chan func() error, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(job)
		}
	}
}

func (p *Pool) run(job func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.Error("worker job panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
		p.completed.Add(1)
	}()

	if err := job(); err != nil {
		p.logger.Error("worker job failed", "error", err)
	}
}

// Submit enqueues a job without blocking. ErrQueueFull is returned when the
// queue has no room, so callers can shed load instead of stalling.
func (p *Pool) Submit(job func() error) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	select {
	case <-p.ctx.Done():
		return ErrPoolClosed
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains in-flight jobs, waiting up to the configured shutdown timeout.
func (p *Pool) Stop() error {
	var err error
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.jobs)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(p.config.ShutdownTimeout):
			p.cancel()
			err = errors.New("worker pool shutdown timed out")
		}
		p.cancel()
	})
	return err
}

// Stats reports current pool activity.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.config.Workers,
		Queued:    len(p.jobs),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}
