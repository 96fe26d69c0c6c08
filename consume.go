package conduit

import (
	"context"

	"github.com/baxromumarov/conduit/chanx"
)

// Consume launches a task that calls fn for every item received from in
// until in is closed. The task completes normally on a clean close, fails
// with the close cause if in was closed with one, and fails with fn's error
// if fn returns one.
//
// A consumer that ends before in is closed, by failing or by being
// cancelled, releases its upstream: a [Producer] is cancelled and a plain
// channel is closed with the consumer's error, so the sender never stays
// parked and [Scope.Wait] returns.
func Consume[T any](sp Spawner, name string, in chanx.Receiver[T], fn func(ctx context.Context, v T) error) *Task {
	return sp.launch(name, func(ctx context.Context, _ Spawner) error {
		return in.ConsumeEach(ctx, func(v T) error {
			return fn(ctx, v)
		})
	}, launchOpts{
		upstream: upstreamTask(in),
		finalize: func(err error) {
			abandon(in, err)
		},
	})
}

// Observe subscribes to b immediately and launches a task that calls fn
// for every item the subscription receives until b is closed. Because the
// subscription is taken before Observe returns, the observer sees every item
// sent after the call. The subscription is cancelled when the task ends.
func Observe[T any](sp Spawner, name string, b *chanx.Broadcast[T], fn func(ctx context.Context, v T) error) *Task {
	sub := b.Subscribe()
	return sp.launch(name, func(ctx context.Context, _ Spawner) error {
		return sub.ConsumeEach(ctx, func(v T) error {
			return fn(ctx, v)
		})
	}, launchOpts{
		finalize: func(error) {
			sub.Cancel()
		},
	})
}
