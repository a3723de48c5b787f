package eventpublisher

import (
	"context"
	"sync"

	eventv1 "github.com/clobcore/matching-engine/internal/domain/event/v1"
)

// Ring is the bounded single-producer/multi-consumer buffer spec §4.2
// describes between a symbol's hot path and its event sinks. It holds
// no slice-growth logic on purpose: the depth is fixed at construction
// and a full buffer is a signal, not something to absorb by growing.
type Ring struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []*eventv1.Event
	head     int
	tail     int
	size     int
	closed   bool
}

// NewRing builds a ring of the given depth.
func NewRing(depth int) *Ring {
	r := &Ring{buf: make([]*eventv1.Event, depth)}
	r.notEmpty = sync.NewCond(&r.mu)
	r.notFull = sync.NewCond(&r.mu)
	return r
}

// TryPush attempts a non-blocking enqueue, returning false if the ring
// is full. Best-effort consumers use this to drop under pressure.
func (r *Ring) TryPush(e *eventv1.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == len(r.buf) {
		return false
	}
	r.push(e)
	return true
}

// Push blocks until space is available or ctx is done. The mandatory
// audit path uses this: a consumer that never drains halts the
// producer, which is the intended backpressure signal for the symbol
// to halt.
func (r *Ring) Push(ctx context.Context, e *eventv1.Event) error {
	// sync.Cond cannot select on ctx, so wake waiters when it is done.
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.notFull.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	for r.size == len(r.buf) && !r.closed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.notFull.Wait()
	}
	if r.closed {
		return context.Canceled
	}
	r.push(e)
	return nil
}

func (r *Ring) push(e *eventv1.Event) {
	r.buf[r.tail] = e
	r.tail = (r.tail + 1) % len(r.buf)
	r.size++
	r.notEmpty.Signal()
}

// Pop blocks until an event is available or the ring is closed.
func (r *Ring) Pop() (*eventv1.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.size == 0 && !r.closed {
		r.notEmpty.Wait()
	}
	if r.size == 0 {
		return nil, false
	}
	e := r.buf[r.head]
	r.buf[r.head] = nil
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	r.notFull.Signal()
	return e, true
}

// Close wakes all blocked producers and consumers.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.notEmpty.Broadcast()
	r.notFull.Broadcast()
}
