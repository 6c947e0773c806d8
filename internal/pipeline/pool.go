package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Handler runs one task. It must return promptly once ctx is done.
type Handler func(ctx context.Context, t Task)

// Config configures a Pool.
type Config struct {
	Name       string
	NumWorkers int // default 1
	Logger     zerolog.Logger
	Handle     Handler
}

// Pool is a fixed set of workers draining one PriorityQueue.
type Pool struct {
	cfg   Config
	log   zerolog.Logger
	queue *PriorityQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cond    *sync.Cond
	paused  bool
	busy    int
	started bool
	stopped bool

	processed int64
	submitted int64
	requeued  int64
}

// NewPool creates a pool. Workers do not run until Start.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Handle == nil {
		return nil, fmt.Errorf("pool %q: handler required", cfg.Name)
	}
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = 1
	}
	if cfg.NumWorkers < 0 {
		return nil, fmt.Errorf("pool %q: negative worker count %d", cfg.Name, cfg.NumWorkers)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		log:    cfg.Logger.With().Str("pool", cfg.Name).Logger(),
		queue:  NewPriorityQueue(),
		ctx:    ctx,
		cancel: cancel,
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.cfg.NumWorkers; i++ {
		workerID := i
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(workerID)
		}()
	}
	p.log.Info().Int("num_workers", p.cfg.NumWorkers).Msg("pool started")
}

// Queue exposes the pool's queue for reprioritization and introspection.
func (p *Pool) Queue() *PriorityQueue { return p.queue }

// Submit queues a task. Tasks submitted after Shutdown are dropped.
func (p *Pool) Submit(t Task) bool {
	if t.Kind == KindShutdown {
		panic("pipeline: submit Shutdown through Pool.Shutdown")
	}
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return false
	}
	atomic.AddInt64(&p.submitted, 1)
	p.queue.Put(t)
	return true
}

// Pause stops workers from taking new tasks and waits for running tasks to
// finish.
func (p *Pool) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	for p.busy > 0 {
		p.cond.Wait()
	}
	p.log.Debug().Msg("pool paused")
}

func (p *Pool) Resume() {
	p.mu.Lock()
	p.paused = false
	p.cond.Broadcast()
	p.mu.Unlock()
	p.log.Debug().Msg("pool resumed")
}

// Shutdown puts one Shutdown sentinel per worker ahead of any queued work and
// waits up to timeout for the workers to exit. Running tasks are not
// interrupted before the timeout; after it the pool's context is cancelled
// and Shutdown returns false without waiting further. Queued work stays in
// the queue.
func (p *Pool) Shutdown(timeout time.Duration) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return true
	}
	p.stopped = true
	started := p.started
	p.paused = false
	p.cond.Broadcast()
	p.mu.Unlock()

	if !started {
		p.cancel()
		return true
	}
	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.queue.Put(Shutdown())
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		p.log.Info().
			Int64("processed", atomic.LoadInt64(&p.processed)).
			Int("left_queued", p.queue.Len()).
			Msg("pool stopped")
		return true
	case <-time.After(timeout):
		p.cancel()
		p.log.Warn().Dur("timeout", timeout).Msg("workers did not stop in time")
		return false
	}
}

// PoolStatus reports a pool's state.
type PoolStatus struct {
	Name      string         `json:"name"`
	Workers   int            `json:"workers"`
	Busy      int            `json:"busy"`
	Paused    bool           `json:"paused"`
	Stopped   bool           `json:"stopped"`
	QueueLen  int            `json:"queue_len"`
	Queued    map[string]int `json:"queued"`
	Submitted int64          `json:"submitted"`
	Processed int64          `json:"processed"`
	Requeued  int64          `json:"requeued"`
}

// GetStatus returns the current status of the pool.
func (p *Pool) GetStatus() PoolStatus {
	p.mu.Lock()
	busy, paused, stopped := p.busy, p.paused, p.stopped
	p.mu.Unlock()
	queued := make(map[string]int)
	for k, n := range p.queue.Counts() {
		queued[k.String()] = n
	}
	return PoolStatus{
		Name:      p.cfg.Name,
		Workers:   p.cfg.NumWorkers,
		Busy:      busy,
		Paused:    paused,
		Stopped:   stopped,
		QueueLen:  p.queue.Len(),
		Queued:    queued,
		Submitted: atomic.LoadInt64(&p.submitted),
		Processed: atomic.LoadInt64(&p.processed),
		Requeued:  atomic.LoadInt64(&p.requeued),
	}
}

func (p *Pool) runWorker(workerID int) {
	log := p.log.With().Int("worker_id", workerID).Logger()
	log.Debug().Msg("worker started")

	for {
		p.mu.Lock()
		for p.paused {
			p.cond.Wait()
		}
		p.mu.Unlock()

		t, err := p.queue.Take(p.ctx)
		if err != nil {
			log.Debug().Msg("worker stopping (context cancelled)")
			return
		}
		if t.Kind == KindShutdown {
			log.Debug().Msg("worker stopping (shutdown)")
			return
		}

		p.mu.Lock()
		if p.paused {
			p.mu.Unlock()
			atomic.AddInt64(&p.requeued, 1)
			p.queue.Put(t)
			continue
		}
		p.busy++
		p.mu.Unlock()

		p.cfg.Handle(p.ctx, t)

		p.mu.Lock()
		p.busy--
		if p.busy == 0 {
			p.cond.Broadcast()
		}
		p.mu.Unlock()
		atomic.AddInt64(&p.processed, 1)
	}
}
