package chanx

import (
	"context"
	"iter"
	"sync"

	"github.com/baxromumarov/conduit/internal/ringbuffer"
)

// Channel is a closable FIFO queue connecting any number of senders to any
// number of receivers.
//
// Unlike a native Go channel, sending on a closed Channel returns [ErrClosed]
// instead of panicking, Close is idempotent and may carry a cause, and every
// blocking operation honours a context. Items buffered before Close are
// still delivered; receivers observe [ErrClosed] only once the queue is empty.
type Channel[T any] struct {
	mu       sync.Mutex
	queue    ringbuffer.Buffer[T]
	capacity int
	changed  signal

	// sent and received count queued and dequeued items; a rendezvous sender
	// waits until received catches up with its ticket.
	sent, received uint64
	waiting        int // receivers parked in Receive

	closed bool
	cause  error
	done   chan struct{}

	opts options
}

// NewChannel creates a Channel. capacity is [Rendezvous], [Unlimited],
// [Conflated] or a positive buffer size; any other value panics with an
// error wrapping [ErrInvalidCapacity].
func NewChannel[T any](capacity int, opts ...Option) *Channel[T] {
	if capacity < Conflated {
		panic(invalidCapacity(capacity))
	}
	return &Channel[T]{
		capacity: capacity,
		done:     make(chan struct{}),
		opts:     buildOptions(opts),
	}
}

// hasRoom reports whether a send can enqueue without waiting.
func (c *Channel[T]) hasRoom() bool {
	switch c.capacity {
	case Unlimited, Conflated:
		return true
	case Rendezvous:
		return c.queue.Len() == 0
	default:
		return c.queue.Len() < c.capacity
	}
}

// enqueue must be called with mu held and room available. It returns the
// overwritten item, if any.
func (c *Channel[T]) enqueue(v T) (T, bool) {
	var (
		old         T
		overwritten bool
	)
	if c.capacity == Conflated && c.queue.Len() > 0 {
		old, overwritten = c.queue.PopTail()
		c.sent--
	}
	c.queue.Push(v)
	c.sent++
	c.changed.broadcast()
	return old, overwritten
}

// Send enqueues v. It waits while the buffer is full, or for a [Rendezvous]
// channel until a receiver has taken v. It returns [ErrClosed] if the
// channel is or becomes closed before v is accepted, and [ErrCancelled] if
// ctx is done first.
func (c *Channel[T]) Send(ctx context.Context, v T) error {
	if ctx.Err() != nil {
		return cancelledError(ctx)
	}

	c.mu.Lock()
	for !c.hasRoom() {
		if c.closed {
			break
		}
		wait := c.changed.wait()
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return cancelledError(ctx)
		}
		c.mu.Lock()
	}
	if c.closed {
		err := closedError(c.cause)
		c.mu.Unlock()
		return err
	}

	old, overwritten := c.enqueue(v)
	if c.capacity != Rendezvous {
		c.mu.Unlock()
		if overwritten {
			c.opts.emit(Event{Kind: EventConflated, Value: old})
		}
		c.opts.emit(Event{Kind: EventSent, Value: v})
		return nil
	}

	ticket := c.sent
	for c.received < ticket {
		if c.closed {
			c.withdraw()
			err := closedError(c.cause)
			c.mu.Unlock()
			return err
		}
		wait := c.changed.wait()
		c.mu.Unlock()

		select {
		case <-wait:
			c.mu.Lock()
		case <-ctx.Done():
			c.mu.Lock()
			if c.received >= ticket {
				// taken while we were being cancelled
				c.mu.Unlock()
				c.opts.emit(Event{Kind: EventSent, Value: v})
				return nil
			}
			c.withdraw()
			c.mu.Unlock()
			return cancelledError(ctx)
		}
	}
	c.mu.Unlock()
	c.opts.emit(Event{Kind: EventSent, Value: v})
	return nil
}

// withdraw takes back the single pending rendezvous item. Must be called
// with mu held.
func (c *Channel[T]) withdraw() {
	c.queue.PopTail()
	c.sent--
	c.changed.broadcast()
}

// TrySend enqueues v if that is possible without waiting. For a
// [Rendezvous] channel this requires a receiver already parked in Receive.
func (c *Channel[T]) TrySend(v T) error {
	c.mu.Lock()
	if c.closed {
		err := closedError(c.cause)
		c.mu.Unlock()
		return err
	}

	room := c.hasRoom()
	if c.capacity == Rendezvous {
		room = c.waiting > c.queue.Len()
	}
	if !room {
		c.mu.Unlock()
		return ErrFull
	}

	old, overwritten := c.enqueue(v)
	c.mu.Unlock()

	if overwritten {
		c.opts.emit(Event{Kind: EventConflated, Value: old})
	}
	c.opts.emit(Event{Kind: EventSent, Value: v})
	return nil
}

// dequeue must be called with mu held and a non-empty queue.
func (c *Channel[T]) dequeue() T {
	v, _ := c.queue.Pop()
	c.received++
	c.changed.broadcast()
	return v
}

// Receive returns the next item in FIFO order, waiting while the channel is
// empty and open. Once the channel is closed and drained it returns
// [ErrClosed], wrapping the close cause if there is one.
func (c *Channel[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, cancelledError(ctx)
	}

	c.mu.Lock()
	for c.queue.Len() == 0 {
		if c.closed {
			err := closedError(c.cause)
			c.mu.Unlock()
			return zero, err
		}

		c.waiting++
		wait := c.changed.wait()
		c.mu.Unlock()

		select {
		case <-wait:
			c.mu.Lock()
			c.waiting--
		case <-ctx.Done():
			c.mu.Lock()
			c.waiting--
			c.mu.Unlock()
			return zero, cancelledError(ctx)
		}
	}

	v := c.dequeue()
	c.mu.Unlock()

	c.opts.emit(Event{Kind: EventReceived, Value: v})
	return v, nil
}

// TryReceive returns the next item without waiting. ok is false when
// nothing is pending; err is non-nil only when the channel is closed and
// drained.
func (c *Channel[T]) TryReceive() (T, bool, error) {
	var zero T

	c.mu.Lock()
	if c.queue.Len() == 0 {
		var err error
		if c.closed {
			err = closedError(c.cause)
		}
		c.mu.Unlock()
		return zero, false, err
	}

	v := c.dequeue()
	c.mu.Unlock()

	c.opts.emit(Event{Kind: EventReceived, Value: v})
	return v, true, nil
}

// All returns a single-pass iterator over received items. Iteration stops
// when the channel is closed and drained or ctx is done; use
// [Channel.ConsumeEach] to learn which.
func (c *Channel[T]) All(ctx context.Context) iter.Seq[T] {
	return receiveAll(ctx, c.Receive)
}

// ConsumeEach calls fn for every item until the channel is closed and
// drained. It returns nil after a clean close, the close cause after
// [Channel.CloseWithCause], the first error returned by fn, or an
// [ErrCancelled] error if ctx is done.
func (c *Channel[T]) ConsumeEach(ctx context.Context, fn func(T) error) error {
	return consumeEach[T](ctx, c, fn)
}

// Close closes the channel without a cause. See [Channel.CloseWithCause].
func (c *Channel[T]) Close() bool {
	return c.CloseWithCause(nil)
}

// CloseWithCause closes the channel. Blocked senders fail with [ErrClosed];
// blocked receivers drain what is buffered and then fail with [ErrClosed]
// wrapping cause. Only the first call has an effect; it reports whether this
// call closed the channel.
func (c *Channel[T]) CloseWithCause(cause error) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.cause = cause
	c.changed.broadcast()
	close(c.done)
	c.mu.Unlock()

	c.opts.emit(Event{Kind: EventClosed, Err: cause})
	return true
}

// Done returns a channel that is closed when the Channel is closed.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.done
}

// Cause returns the error passed to [Channel.CloseWithCause], or nil.
func (c *Channel[T]) Cause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// IsClosedForSend reports whether the channel has been closed.
func (c *Channel[T]) IsClosedForSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsClosedForReceive reports whether the channel is closed and drained.
func (c *Channel[T]) IsClosedForReceive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed && c.queue.Len() == 0
}

// Len returns the number of buffered items.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Cap returns the capacity the channel was created with.
func (c *Channel[T]) Cap() int {
	return c.capacity
}

// Name returns the name set with [WithName].
func (c *Channel[T]) Name() string {
	return c.opts.name
}
