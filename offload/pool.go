package offload

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/wudi/pdfedit/observability"
)

type PoolConfig struct {
	// Workers is the number of goroutines; zero means GOMAXPROCS.
	Workers int
	// Queue is the number of tasks that may wait for a worker; zero means
	// four per worker.
	Queue  int
	Logger observability.Logger
}

type job struct {
	task  Task
	h     Handler
	reply chan Reply
}

// WorkerPool runs tasks on a fixed set of goroutines.
type WorkerPool struct {
	log    observability.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	handlers map[Kind]Handler
	closed   bool
	jobs     chan job
	wg       sync.WaitGroup
}

func NewWorkerPool(cfg PoolConfig) *WorkerPool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}
	queue := cfg.Queue
	if queue <= 0 {
		queue = 4 * workers
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		log:      observability.OrNop(cfg.Logger),
		ctx:      ctx,
		cancel:   cancel,
		handlers: map[Kind]Handler{},
		jobs:     make(chan job, queue),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *WorkerPool) Handle(kind Kind, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

// Submit queues t. It fails without blocking when the pool is closed, has
// no handler for the task's kind or its queue is full.
func (p *WorkerPool) Submit(t Task) (<-chan Reply, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	h, ok := p.handlers[t.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, t.Kind)
	}
	j := job{task: t, h: h, reply: make(chan Reply, 1)}
	select {
	case p.jobs <- j:
		return j.reply, nil
	default:
		return nil, ErrQueueFull
	}
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for j := range p.jobs {
		r := run(p.ctx, j.h, j.task)
		if r.Err != nil {
			p.log.Debug("offloaded task failed",
				observability.String("task", j.task.ID),
				observability.Error("error", r.Err))
		}
		j.reply <- r
	}
}

// Close stops accepting tasks, lets queued tasks finish and waits for the
// workers to exit.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
	p.cancel()
}
