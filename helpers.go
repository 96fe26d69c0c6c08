package conduit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baxromumarov/conduit/chanx"
)

// LaunchTimeout launches a task whose context is cancelled after d. A body
// that stops because of the deadline fails with [context.DeadlineExceeded].
func LaunchTimeout(sp Spawner, name string, d time.Duration, fn TaskFunc) *Task {
	return sp.Launch(name, func(ctx context.Context, sp Spawner) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		err := fn(ctx, sp)
		if err != nil && errors.Is(context.Cause(ctx), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("conduit: task %s timed out after %s: %w", name, d, context.DeadlineExceeded)
		}
		return err
	})
}

// ConsumeN launches n competing consumers over the same receiver, named
// name-0 through name-(n-1). Each item is handled by exactly one of them.
// It panics if n < 1.
//
//	conduit.ConsumeN(sc, "worker", 4, orders, func(ctx context.Context, o Order) error {
//	    return ship(ctx, o)
//	})
func ConsumeN[T any](sp Spawner, name string, n int, in chanx.Receiver[T], fn func(ctx context.Context, v T) error) []*Task {
	if n < 1 {
		panic("conduit: ConsumeN requires n >= 1")
	}
	tasks := make([]*Task, n)
	for i := range n {
		tasks[i] = Consume(sp, fmt.Sprintf("%s-%d", name, i), in, fn)
	}
	return tasks
}

// Merge launches a producer that forwards every item from each input
// (fan-in). Each input is drained by its own forwarding sub-task, named
// name-in-0 through name-in-(n-1), so a panic in one is captured by the
// scope like in any task. Items of one input keep their order; the
// interleaving of different inputs is arbitrary. The output closes once
// every input is closed, with the joined close causes of the inputs that
// had one.
func Merge[T any](sp Spawner, name string, capacity int, inputs ...chanx.Receiver[T]) *Producer[T] {
	body := func(ctx context.Context, sp Spawner, out chanx.Sender[T]) error {
		forwarders := make([]*Task, len(inputs))
		for i, in := range inputs {
			forwarders[i] = Consume(sp, fmt.Sprintf("%s-in-%d", name, i), in, func(ctx context.Context, v T) error {
				return out.Send(ctx, v)
			})
		}

		var errs []error
		for _, f := range forwarders {
			if err := f.Join(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return produce(sp, name, capacity, body, producerOpts{
		release: func(err error) {
			for _, in := range inputs {
				abandon(in, err)
			}
		},
	}, nil)
}

// ToSlice receives everything from in until it is closed. It returns the
// items received so far together with the close cause or the cancellation
// error.
func ToSlice[T any](ctx context.Context, in chanx.Receiver[T]) ([]T, error) {
	var out []T
	err := in.ConsumeEach(ctx, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}
