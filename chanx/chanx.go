package chanx

import (
	"context"
	"iter"
)

// Capacity values with special meaning. Any positive capacity creates a
// bounded buffer of that size.
const (
	// Rendezvous makes every send wait until a receiver takes the item.
	Rendezvous = 0

	// Unlimited creates a buffer that never makes senders wait.
	Unlimited = -1

	// Conflated keeps only the most recent unreceived item; sends never wait
	// and overwrite whatever is pending.
	Conflated = -2
)

// Sender is the send-only view of a channel.
type Sender[T any] interface {
	// Send delivers v, waiting for buffer space or a receiver if needed.
	Send(ctx context.Context, v T) error
	// TrySend delivers v only if it can do so without waiting.
	TrySend(v T) error
	IsClosedForSend() bool
}

// Receiver is the receive-only view of a channel or subscription.
type Receiver[T any] interface {
	// Receive returns the next item, waiting while none is available.
	Receive(ctx context.Context) (T, error)
	// TryReceive returns the next item if one is immediately available.
	// ok is false with a nil error when nothing is pending.
	TryReceive() (v T, ok bool, err error)
	// All yields items until the source is closed and drained or ctx is done.
	All(ctx context.Context) iter.Seq[T]
	// ConsumeEach calls fn for each item until the source is closed.
	ConsumeEach(ctx context.Context, fn func(T) error) error
	IsClosedForReceive() bool
	// Cause returns the error the source was closed with, if any.
	Cause() error
}

// signal wakes every goroutine parked on it. It is guarded by the owning
// structure's mutex.
type signal struct {
	ch chan struct{}
}

func (s *signal) wait() <-chan struct{} {
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	return s.ch
}

func (s *signal) broadcast() {
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
}

// receiveAll adapts a receive function into a single-pass iterator.
func receiveAll[T any](ctx context.Context, recv func(context.Context) (T, error)) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := recv(ctx)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// consumeEach drives recv until it fails. A clean close ends with nil; a
// close with a cause ends with that cause.
func consumeEach[T any](ctx context.Context, r Receiver[T], fn func(T) error) error {
	for {
		v, err := r.Receive(ctx)
		if err != nil {
			if IsCancelled(err) {
				return err
			}
			return r.Cause()
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// Drain receives and discards items until r is closed or ctx is done. It
// returns the number of discarded items. Use it to unblock a producer during
// shutdown.
func Drain[T any](ctx context.Context, r Receiver[T]) int {
	n := 0
	for range r.All(ctx) {
		n++
	}
	return n
}
