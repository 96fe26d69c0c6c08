package conduit

import (
	"context"

	"github.com/baxromumarov/conduit/chanx"
)

// Producer is the receive-only view of a channel owned by a producer task.
// The channel is closed when the task ends, so consumers always observe
// termination.
type Producer[T any] struct {
	chanx.Receiver[T]
	task *Task
}

// Task returns the producing task.
func (p *Producer[T]) Task() *Task {
	return p.task
}

// Produce launches a task named name that has exclusive send access to a
// new channel of the given capacity and returns the channel's receive-only
// view.
//
// The channel is closed when body returns: cleanly on success, with the
// body's error (or the cancellation) as close cause otherwise. Channel
// options such as [chanx.WithObserver] apply to the created channel; its
// name defaults to the task name.
//
//	fruits := conduit.Produce(sc, "fruits", 3, func(ctx context.Context, out chanx.Sender[string]) error {
//	    for _, f := range []string{"Apple", "Pear", "Plum"} {
//	        if err := out.Send(ctx, f); err != nil {
//	            return err
//	        }
//	    }
//	    return nil
//	})
func Produce[T any](
	sp Spawner,
	name string,
	capacity int,
	body func(ctx context.Context, out chanx.Sender[T]) error,
	opts ...chanx.Option,
) *Producer[T] {
	return produce(sp, name, capacity, func(ctx context.Context, _ Spawner, out chanx.Sender[T]) error {
		return body(ctx, out)
	}, producerOpts{}, opts)
}

// producerOpts links a producer to the channel it reads from, if any.
type producerOpts struct {
	upstream *Task
	// release runs with the task's error once it ends.
	release func(err error)
}

func produce[T any](
	sp Spawner,
	name string,
	capacity int,
	body func(ctx context.Context, sp Spawner, out chanx.Sender[T]) error,
	po producerOpts,
	opts []chanx.Option,
) *Producer[T] {
	ch := chanx.NewChannel[T](capacity, append([]chanx.Option{chanx.WithName(name)}, opts...)...)

	t := sp.launch(name, func(ctx context.Context, sp Spawner) error {
		return body(ctx, sp, ch)
	}, launchOpts{
		upstream: po.upstream,
		finalize: func(err error) {
			ch.CloseWithCause(err)
			if po.release != nil {
				po.release(err)
			}
		},
	})

	return &Producer[T]{Receiver: ch, task: t}
}

// Stage launches a pipeline stage: a producer whose body receives every
// item from upstream, applies fn and sends the result downstream in arrival
// order. The stage closes its output exactly when upstream closes, with
// upstream's close cause if it had one, so closure propagates along the
// pipeline. An error from fn, or a downstream that stopped receiving, ends
// the stage, closes its output with that error and releases upstream.
func Stage[In, Out any](
	sp Spawner,
	name string,
	capacity int,
	upstream chanx.Receiver[In],
	fn func(ctx context.Context, v In) (Out, error),
	opts ...chanx.Option,
) *Producer[Out] {
	body := func(ctx context.Context, _ Spawner, out chanx.Sender[Out]) error {
		return upstream.ConsumeEach(ctx, func(v In) error {
			r, err := fn(ctx, v)
			if err != nil {
				return err
			}
			return out.Send(ctx, r)
		})
	}
	return produce(sp, name, capacity, body, producerOpts{
		upstream: upstreamTask(upstream),
		release: func(err error) {
			abandon(upstream, err)
		},
	}, opts)
}

// Relay is a [Stage] that re-sends every upstream item unchanged.
func Relay[T any](sp Spawner, name string, capacity int, upstream chanx.Receiver[T], opts ...chanx.Option) *Producer[T] {
	return Stage(sp, name, capacity, upstream, func(_ context.Context, v T) (T, error) {
		return v, nil
	}, opts...)
}

// upstreamTask returns the producing task behind r, if r is a *Producer.
func upstreamTask[T any](r chanx.Receiver[T]) *Task {
	if p, ok := r.(*Producer[T]); ok {
		return p.task
	}
	return nil
}

// abandon releases whatever feeds in after its reader ended with err. A
// producer task is cancelled, a plain channel is closed with err as cause
// and a broadcast subscription is cancelled, so no sender stays parked on a
// channel nobody reads. A nil err means in was drained to a clean close and
// nothing is released.
func abandon[T any](in chanx.Receiver[T], err error) {
	if err == nil {
		return
	}
	switch r := in.(type) {
	case *Producer[T]:
		r.task.Cancel()
	case interface{ CloseWithCause(error) bool }:
		r.CloseWithCause(err)
	case interface{ Cancel() }:
		r.Cancel()
	}
}
