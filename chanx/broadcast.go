package chanx

import (
	"context"
	"iter"
	"sync"

	"github.com/baxromumarov/conduit/internal/ringbuffer"
)

// Broadcast delivers every item to every active [Subscription].
//
// Items live once in a shared log; each subscription keeps its own read
// cursor into it. A subscription only sees items sent after it subscribed.
//
// With a positive capacity, Send waits while any subscriber is that many
// items behind, so delivery is paced by the slowest subscriber. With
// [Unlimited] capacity Send never waits. With [Conflated] capacity only the
// latest item is retained and a slow subscriber observes just the most
// recent value.
type Broadcast[T any] struct {
	mu       sync.Mutex
	capacity int
	changed  signal

	log  ringbuffer.Buffer[T]
	head uint64 // sequence number of log.At(0)
	tail uint64 // sequence number of the next item

	subs   map[*Subscription[T]]struct{}
	nextID uint64

	closed bool
	cause  error
	done   chan struct{}

	opts options
}

// NewBroadcast creates a Broadcast. capacity is a positive per-subscriber
// buffer size, [Unlimited] or [Conflated]; any other value panics with an
// error wrapping [ErrInvalidCapacity].
func NewBroadcast[T any](capacity int, opts ...Option) *Broadcast[T] {
	if capacity == Rendezvous || capacity < Conflated {
		panic(invalidCapacity(capacity))
	}
	return &Broadcast[T]{
		capacity: capacity,
		subs:     make(map[*Subscription[T]]struct{}),
		done:     make(chan struct{}),
		opts:     buildOptions(opts),
	}
}

// maxLag returns how far the slowest subscriber is behind. Must be called
// with mu held.
func (b *Broadcast[T]) maxLag() uint64 {
	var lag uint64
	for s := range b.subs {
		if d := b.tail - s.cursor; d > lag {
			lag = d
		}
	}
	return lag
}

func (b *Broadcast[T]) hasRoom() bool {
	if b.capacity == Unlimited || b.capacity == Conflated {
		return true
	}
	return b.maxLag() < uint64(b.capacity)
}

// trim drops log entries every subscriber has read. Must be called with mu
// held.
func (b *Broadcast[T]) trim() {
	low := b.tail
	for s := range b.subs {
		if s.cursor < low {
			low = s.cursor
		}
	}
	if low > b.head {
		b.head += uint64(b.log.Drop(int(low - b.head)))
	}
}

// Send delivers v to all current subscribers. In bounded mode it waits
// until every subscriber has room. It returns [ErrClosed] if the broadcast
// is closed and [ErrCancelled] if ctx is done first. An item sent while
// nobody is subscribed is delivered to nobody.
func (b *Broadcast[T]) Send(ctx context.Context, v T) error {
	if ctx.Err() != nil {
		return cancelledError(ctx)
	}

	b.mu.Lock()
	for !b.closed && !b.hasRoom() {
		wait := b.changed.wait()
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return cancelledError(ctx)
		}
		b.mu.Lock()
	}
	if b.closed {
		err := closedError(b.cause)
		b.mu.Unlock()
		return err
	}

	overwrote := b.deliver(v)
	b.mu.Unlock()

	b.emitSent(v, overwrote)
	return nil
}

// deliver appends v to the log and returns the ids of subscribers whose
// pending conflated value was overwritten. Must be called with mu held.
func (b *Broadcast[T]) deliver(v T) []uint64 {
	if len(b.subs) == 0 {
		return nil
	}

	var overwrote []uint64
	if b.capacity == Conflated {
		for s := range b.subs {
			if s.cursor < b.tail {
				overwrote = append(overwrote, s.id)
			}
		}
		b.log.Reset()
		b.head = b.tail
	}
	b.log.Push(v)
	b.tail++
	b.changed.broadcast()
	return overwrote
}

func (b *Broadcast[T]) emitSent(v T, overwrote []uint64) {
	for _, id := range overwrote {
		b.opts.emit(Event{Kind: EventConflated, Subscriber: id})
	}
	b.opts.emit(Event{Kind: EventSent, Value: v})
}

// TrySend delivers v if that is possible without waiting.
func (b *Broadcast[T]) TrySend(v T) error {
	b.mu.Lock()
	if b.closed {
		err := closedError(b.cause)
		b.mu.Unlock()
		return err
	}
	if !b.hasRoom() {
		b.mu.Unlock()
		return ErrFull
	}
	overwrote := b.deliver(v)
	b.mu.Unlock()

	b.emitSent(v, overwrote)
	return nil
}

// Subscribe returns a new subscription that observes items sent from now
// on. Subscribing to a closed broadcast returns an already closed
// subscription.
func (b *Broadcast[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	b.nextID++
	s := &Subscription[T]{
		b:      b,
		id:     b.nextID,
		cursor: b.tail,
	}
	if b.closed {
		s.cancelled = true
		b.mu.Unlock()
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	b.opts.emit(Event{Kind: EventSubscribed, Subscriber: s.id})
	return s
}

// ConsumeEach subscribes, calls fn for every item the subscription receives
// until the broadcast is closed, then unsubscribes.
func (b *Broadcast[T]) ConsumeEach(ctx context.Context, fn func(T) error) error {
	s := b.Subscribe()
	defer s.Cancel()
	return s.ConsumeEach(ctx, fn)
}

// Close closes the broadcast without a cause. See [Broadcast.CloseWithCause].
func (b *Broadcast[T]) Close() bool {
	return b.CloseWithCause(nil)
}

// CloseWithCause closes the broadcast and all of its subscriptions.
// Subscribers still receive items they had not read yet. Only the first
// call has an effect.
func (b *Broadcast[T]) CloseWithCause(cause error) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.closed = true
	b.cause = cause
	b.changed.broadcast()
	close(b.done)
	b.mu.Unlock()

	b.opts.emit(Event{Kind: EventClosed, Err: cause})
	return true
}

// Done returns a channel that is closed when the broadcast is closed.
func (b *Broadcast[T]) Done() <-chan struct{} {
	return b.done
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcast[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcast[T]) IsClosedForSend() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Cap returns the capacity the broadcast was created with.
func (b *Broadcast[T]) Cap() int {
	return b.capacity
}

// Subscription is one subscriber's view of a [Broadcast]. It implements
// [Receiver].
type Subscription[T any] struct {
	b         *Broadcast[T]
	id        uint64
	cursor    uint64 // guarded by b.mu
	cancelled bool   // guarded by b.mu
}

// ID returns the subscription id reported in events.
func (s *Subscription[T]) ID() uint64 {
	return s.id
}

// next must be called with b.mu held.
func (s *Subscription[T]) next() (T, bool) {
	b := s.b
	if s.cancelled || s.cursor >= b.tail {
		var zero T
		return zero, false
	}
	if b.capacity == Conflated || s.cursor < b.head {
		s.cursor = b.tail - 1
	}
	v := b.log.At(int(s.cursor - b.head))
	s.cursor++
	b.trim()
	b.changed.broadcast()
	return v, true
}

// Receive returns the next item for this subscriber, waiting while none is
// pending. After the broadcast is closed and the subscriber has read
// everything, or after [Subscription.Cancel], it returns [ErrClosed].
func (s *Subscription[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, cancelledError(ctx)
	}

	b := s.b
	b.mu.Lock()
	for {
		if v, ok := s.next(); ok {
			b.mu.Unlock()
			b.opts.emit(Event{Kind: EventReceived, Subscriber: s.id, Value: v})
			return v, nil
		}
		if s.cancelled || b.closed {
			err := closedError(b.cause)
			b.mu.Unlock()
			return zero, err
		}

		wait := b.changed.wait()
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, cancelledError(ctx)
		}
		b.mu.Lock()
	}
}

// TryReceive returns the next pending item without waiting.
func (s *Subscription[T]) TryReceive() (T, bool, error) {
	b := s.b
	b.mu.Lock()
	if v, ok := s.next(); ok {
		b.mu.Unlock()
		b.opts.emit(Event{Kind: EventReceived, Subscriber: s.id, Value: v})
		return v, true, nil
	}

	var (
		zero T
		err  error
	)
	if s.cancelled || b.closed {
		err = closedError(b.cause)
	}
	b.mu.Unlock()
	return zero, false, err
}

// All returns a single-pass iterator over the items this subscriber
// receives.
func (s *Subscription[T]) All(ctx context.Context) iter.Seq[T] {
	return receiveAll(ctx, s.Receive)
}

// ConsumeEach calls fn for each received item until the broadcast is closed.
// Items are passed in the order this subscriber received them.
func (s *Subscription[T]) ConsumeEach(ctx context.Context, fn func(T) error) error {
	return consumeEach[T](ctx, s, fn)
}

// Cancel unsubscribes. Pending items are discarded and a sender waiting on
// this subscriber is released. Cancel is idempotent.
func (s *Subscription[T]) Cancel() {
	b := s.b
	b.mu.Lock()
	if s.cancelled {
		b.mu.Unlock()
		return
	}
	s.cancelled = true
	delete(b.subs, s)
	b.trim()
	b.changed.broadcast()
	b.mu.Unlock()

	b.opts.emit(Event{Kind: EventUnsubscribed, Subscriber: s.id})
}

// IsClosedForReceive reports whether nothing more will ever be received.
func (s *Subscription[T]) IsClosedForReceive() bool {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	return s.cancelled || (b.closed && s.cursor >= b.tail)
}

// Cause returns the error the broadcast was closed with, or nil.
func (s *Subscription[T]) Cause() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.b.cause
}
