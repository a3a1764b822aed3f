// Package dispatch provides per-device ordered task queues backed by a
// shared pool of workers.
//
// Each device gets one Serializer: a bounded FIFO consumed by exactly
// one worker, so tasks for a device execute strictly in submission
// order, at most one at a time, while different devices run in
// parallel. The queue length is exposed so callers can treat a
// configured high-water mark as a congestion signal without the queue
// rejecting work before its hard capacity.
package dispatch

import (
	"fmt"
	"sync"
)

// DefaultQueueCapacity is the hard bound of a serializer queue. It is
// deliberately above any congestion threshold callers may watch: the
// high-water mark is a signal, running into the hard capacity is not.
const DefaultQueueCapacity = 1024

// Task is a unit of work executed on a serializer's worker.
type Task func()

// Pool owns the workers behind all serializers and joins them on
// shutdown.
type Pool struct {
	mu          sync.Mutex
	serializers map[string]*Serializer
	wg          sync.WaitGroup
	closed      bool
	queueCap    int
}

// NewPool creates an empty pool. queueCap bounds each serializer's
// queue; zero or negative selects DefaultQueueCapacity.
func NewPool(queueCap int) *Pool {
	if queueCap <= 0 {
		queueCap = DefaultQueueCapacity
	}
	return &Pool{
		serializers: make(map[string]*Serializer),
		queueCap:    queueCap,
	}
}

// Serializer returns a new ordered queue for the named device, spawning
// its worker from the pool. It fails if the pool is shut down or the
// name is already taken by a live serializer.
func (p *Pool) Serializer(name string) (*Serializer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if _, ok := p.serializers[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrSerializerExists, name)
	}

	s := &Serializer{
		name:  name,
		pool:  p,
		tasks: make(chan Task, p.queueCap),
		quit:  make(chan struct{}),
	}
	p.serializers[name] = s

	p.wg.Add(1)
	go s.run()

	return s, nil
}

// Shutdown suspends every serializer and waits for all workers to drain
// their queues and exit.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	serializers := make([]*Serializer, 0, len(p.serializers))
	for _, s := range p.serializers {
		serializers = append(serializers, s)
	}
	p.mu.Unlock()

	for _, s := range serializers {
		s.Close()
	}
	p.wg.Wait()
}

// remove detaches a closed serializer so its name can be reused. The
// identity check keeps a drained worker from evicting a successor
// already registered under the same name.
func (p *Pool) remove(s *Serializer) {
	p.mu.Lock()
	if p.serializers[s.name] == s {
		delete(p.serializers, s.name)
	}
	p.mu.Unlock()
}

// Serializer is a bounded single-consumer task queue for one device.
type Serializer struct {
	name  string
	pool  *Pool
	tasks chan Task

	mu        sync.Mutex
	suspended bool
	quit      chan struct{}
}

// Submit enqueues a task for ordered execution. It never blocks:
// a suspended serializer rejects with ErrSuspended, a queue at hard
// capacity rejects with ErrQueueFull.
func (s *Serializer) Submit(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.suspended {
		return ErrSuspended
	}
	select {
	case s.tasks <- task:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrQueueFull, s.name)
	}
}

// Len returns the number of queued tasks. Callers compare it against
// their congestion threshold.
func (s *Serializer) Len() int { return len(s.tasks) }

// Suspended reports whether the serializer no longer accepts tasks.
func (s *Serializer) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Name returns the device identifier the serializer was built for.
func (s *Serializer) Name() string { return s.name }

// Close suspends the serializer and signals its worker to exit after
// draining already-queued tasks. The name becomes reusable
// immediately; the worker finishes in the background. Close is
// idempotent.
func (s *Serializer) Close() {
	s.mu.Lock()
	if s.suspended {
		s.mu.Unlock()
		return
	}
	s.suspended = true
	close(s.quit)
	s.mu.Unlock()

	s.pool.remove(s)
}

func (s *Serializer) run() {
	defer s.pool.wg.Done()
	defer s.pool.remove(s)

	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.quit:
			// Drain what was accepted before suspension; ordering
			// holds because this is still the only consumer.
			for {
				select {
				case task := <-s.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}
