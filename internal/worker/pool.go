package worker

import (
	"context"
	"sync"
)

// Task is one unit of pool work producing an R
type Task[R any] func(ctx context.Context) R

// Pool runs tasks on a fixed set of goroutines and streams their results
// in completion order. Cancelling the parent context stops workers after
// their current task; queued tasks are dropped. Every task that ran has its
// result delivered unless Stop abandons the pool.
type Pool[R any] struct {
	size    int
	tasks   chan Task[R]
	results chan R
	onPanic func(any) R

	ctx  context.Context
	stop context.CancelFunc

	// closed by Stop; workers give up on undelivered results
	abandoned   chan struct{}
	abandonOnce sync.Once

	running    sync.WaitGroup
	closeTasks sync.Once
	closeOut   sync.Once
}

// NewPool creates a pool of size workers. onPanic turns a recovered task
// panic into a result; when nil, task panics are not recovered.
func NewPool[R any](parent context.Context, size int, onPanic func(any) R) *Pool[R] {
	if size <= 0 {
		size = 1
	}

	ctx, stop := context.WithCancel(parent)

	return &Pool[R]{
		size:    size,
		tasks:   make(chan Task[R], size*2),
		results: make(chan R, size*2),
		onPanic: onPanic,
		ctx:       ctx,
		stop:      stop,
		abandoned: make(chan struct{}),
	}
}

// Size returns the number of workers
func (p *Pool[R]) Size() int {
	return p.size
}

// Start launches the workers
func (p *Pool[R]) Start() {
	p.running.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.loop()
	}
}

func (p *Pool[R]) loop() {
	defer p.running.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			if p.ctx.Err() != nil {
				return
			}
			r := p.run(task)
			select {
			case p.results <- r:
			case <-p.abandoned:
				return
			}
		}
	}
}

func (p *Pool[R]) run(task Task[R]) (r R) {
	if p.onPanic != nil {
		defer func() {
			if v := recover(); v != nil {
				r = p.onPanic(v)
			}
		}()
	}
	return task(p.ctx)
}

// Submit queues a task, blocking while the queue is full.
// It reports false once the pool is stopped.
func (p *Pool[R]) Submit(task Task[R]) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.tasks <- task:
		return true
	}
}

// Results streams results as tasks finish. Read it or call Collect, not both.
func (p *Pool[R]) Results() <-chan R {
	return p.results
}

// Close stops accepting tasks. Results closes after the last worker exits.
func (p *Pool[R]) Close() {
	p.closeTasks.Do(func() { close(p.tasks) })
	go func() {
		p.running.Wait()
		p.closeResults()
	}()
}

// Collect closes the pool and gathers every remaining result
func (p *Pool[R]) Collect() []R {
	p.Close()

	var out []R
	for r := range p.results {
		out = append(out, r)
	}
	return out
}

// Stop cancels in-flight work and waits for the workers to exit.
// Results not yet read may be discarded.
func (p *Pool[R]) Stop() {
	p.abandonOnce.Do(func() { close(p.abandoned) })
	p.stop()
	p.running.Wait()
	p.closeResults()
}

func (p *Pool[R]) closeResults() {
	p.closeOut.Do(func() { close(p.results) })
}
