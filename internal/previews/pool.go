package previews

import (
	"context"
	"errors"
	"sync"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/logging"
)

var (
	ErrQueueFull  = errors.New("thumbnail queue full")
	ErrPoolClosed = errors.New("thumbnail pool stopped")
)

// Handler processes one task. Errors are logged by the pool.
type Handler func(ctx context.Context, t Task) error

// Pool is a bounded in-process worker pool for thumbnail tasks.
type Pool struct {
	tasks   chan Task
	workers int
	log     logging.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(workers, queueSize int, log logging.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Pool{
		tasks:   make(chan Task, queueSize),
		workers: workers,
		log:     log.With("component", "thumbnail-pool"),
	}
}

// Start launches the workers. ctx is passed to every handler call.
func (p *Pool) Start(ctx context.Context, h Handler) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for t := range p.tasks {
				if err := h(ctx, t); err != nil {
					p.log.Warn(ctx, "thumbnail task failed", "storage_name", t.StorageName, "error", err)
				}
			}
		}()
	}
}

// Dispatch queues t without blocking.
func (p *Pool) Dispatch(_ context.Context, t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new tasks, drains the queue and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
