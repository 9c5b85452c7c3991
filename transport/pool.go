package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("transport: pool closed")

// Resource is anything a Pool can hand out exclusively: a Handle, or a
// session that owns one.
type Resource interface {
	Usable() bool
	Close() error
}

// Pool manages reusable exclusive resources for a single device address.
//
// Pool design: uses a buffered channel as a natural FIFO queue. Buffered
// channels are concurrency-safe, and blocking on empty is built-in.
// Resources are created lazily; the pool starts empty and grows on demand.
type Pool[T Resource] struct {
	mu      sync.Mutex
	idle    chan T                          // Buffered channel as pool: FIFO, goroutine-safe
	max     int                             // Maximum number of live resources
	live    int                             // Currently created resources (may be < max)
	closed  bool
	factory func(ctx context.Context) (T, error)
}

// NewPool creates a pool of at most max resources built by factory.
func NewPool[T Resource](max int, factory func(ctx context.Context) (T, error)) *Pool[T] {
	if max < 1 {
		max = 1
	}
	return &Pool[T]{
		idle:    make(chan T, max),
		max:     max,
		factory: factory,
	}
}

// Get retrieves a resource.
// Strategy:
//  1. Take an idle resource if one is queued, discarding unusable ones
//  2. If none is idle but under limit, create a new one
//  3. If at limit, block until one is returned or ctx is done
func (p *Pool[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		select {
		case r, ok := <-p.idle:
			if !ok {
				return zero, ErrPoolClosed
			}
			if r.Usable() {
				return r, nil
			}
			p.discard(r)
			continue
		default:
		}

		if r, created, err := p.tryCreate(ctx); created || err != nil {
			return r, err
		}

		// At capacity: wait for a return
		select {
		case r, ok := <-p.idle:
			if !ok {
				return zero, ErrPoolClosed
			}
			if r.Usable() {
				return r, nil
			}
			p.discard(r)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Put returns a resource to the pool.
// If the resource is no longer usable, it's closed and discarded.
func (p *Pool[T]) Put(r T) {
	p.mu.Lock()
	if p.closed || !r.Usable() {
		p.mu.Unlock()
		p.discard(r)
		return
	}
	// Never blocks: the buffer holds max and at most max resources are live.
	p.idle <- r
	p.mu.Unlock()
}

// Len returns the number of live resources, idle or in use.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Close shuts down the pool and closes all idle resources. Resources still
// in use are closed when they are Put back.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.idle)
	p.mu.Unlock()

	var errs []error
	for r := range p.idle {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
		p.release()
	}
	return errors.Join(errs...)
}

// tryCreate builds a new resource when under the limit. The slot is reserved
// before the factory runs so concurrent callers cannot exceed max.
func (p *Pool[T]) tryCreate(ctx context.Context) (T, bool, error) {
	var zero T

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, false, ErrPoolClosed
	}
	if p.live >= p.max {
		p.mu.Unlock()
		return zero, false, nil
	}
	p.live++
	p.mu.Unlock()

	r, err := p.factory(ctx)
	if err != nil {
		p.release()
		return zero, false, err
	}
	return r, true, nil
}

func (p *Pool[T]) discard(r T) {
	r.Close()
	p.release()
}

func (p *Pool[T]) release() {
	p.mu.Lock()
	p.live--
	p.mu.Unlock()
}
