// Package chanx provides closable, context-aware channels and broadcast
// fan-out for building concurrent pipelines.
//
// Native Go channels panic on send-after-close and double close, cannot carry
// a close reason, and offer no fan-out. chanx fills those gaps:
//
//   - [Channel]: a FIFO queue with [Rendezvous], bounded, [Unlimited] or
//     [Conflated] capacity. [Channel.Send] and [Channel.Receive] suspend
//     the calling goroutine and unblock on context cancellation.
//     [Channel.Close] is idempotent and never discards buffered items.
//   - [Broadcast]: fan-out where every [Subscription] sees every item sent
//     after it subscribed. Bounded broadcasts are paced by the slowest
//     subscriber; conflated broadcasts deliver only the latest value.
//   - [Sender] and [Receiver]: send-only and receive-only views so that a
//     producer can hand out its channel without giving away send access.
//
// Failures are reported with sentinel errors: [ErrClosed] once a channel is
// closed (wrapping the close cause, if any), [ErrCancelled] when the context
// of a blocked operation is done, [ErrFull] from non-blocking sends and
// [ErrInvalidCapacity] (as a panic) for bad construction parameters.
//
// Channels and broadcasts report sent, received, closed and subscription
// events to an observer registered with [WithObserver]; [LogEvents] adapts a
// [log/slog.Logger] to that hook.
package chanx
