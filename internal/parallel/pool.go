// Package parallel runs background jobs on a fixed set of goroutines.
//
// Devices use a WorkerPool for asynchronous pipeline creation: shader
// compilation and backend pipeline creation run on a worker, and the
// result is handed back through an event.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgcore/internal/logging"
)

// WorkerPool is a pool of goroutines with per-worker queues. Idle workers
// steal from the other queues so one slow job does not stall the rest.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()

	// mu orders Submit against Close so no job is queued after the
	// workers drained.
	mu      sync.RWMutex
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// next picks the queue for the next Submit.
	next atomic.Uint32
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case job := <-own:
			run(job)
			continue
		default:
		}

		if job := p.steal(id); job != nil {
			run(job)
			continue
		}

		select {
		case <-p.done:
			p.drain(own)
			return
		case job := <-own:
			run(job)
		}
	}
}

// run executes one job. A panicking job is logged and does not take the
// worker down.
func run(job func()) {
	if job == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Logger().Error("parallel: job panicked", "panic", r)
		}
	}()
	job()
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case job := <-queue:
			run(job)
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case job := <-p.queues[i]:
			return job
		default:
		}
	}
	return nil
}

// Submit queues fn and reports whether it was accepted. A closed pool
// rejects work, and the caller must then run or fail the job itself.
func (p *WorkerPool) Submit(fn func()) bool {
	if fn == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		return false
	}
	p.queues[int(p.next.Add(1)%uint32(p.workers))] <- fn
	return true
}

// Close stops accepting work, finishes queued jobs and stops the workers.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}
