package chanx

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by send operations on a closed channel and by
	// receive operations on a closed channel with nothing left to drain.
	ErrClosed = errors.New("chanx: channel closed")

	// ErrCancelled is returned when the context of a channel operation is
	// done before the operation could complete.
	ErrCancelled = errors.New("chanx: operation cancelled")

	// ErrFull is returned by TrySend when the send would have to wait.
	ErrFull = errors.New("chanx: buffer is full")

	// ErrInvalidCapacity is the panic value (wrapped) raised by constructors
	// that receive a capacity they do not support.
	ErrInvalidCapacity = errors.New("chanx: invalid capacity")
)

// closedError returns ErrClosed, wrapping cause when the channel was closed
// with one.
func closedError(cause error) error {
	if cause == nil {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, cause)
}

// cancelledError wraps the context's cause so that both ErrCancelled and
// e.g. context.Canceled match with errors.Is.
func cancelledError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

func invalidCapacity(capacity int) error {
	return fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
}

// IsCancelled reports whether err is a cancellation outcome: either
// [ErrCancelled] or a context cancellation error.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
