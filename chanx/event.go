package chanx

import (
	"context"
	"log/slog"
)

// EventKind identifies what happened on a channel.
type EventKind int

const (
	EventSent EventKind = iota
	EventReceived
	EventClosed
	EventSubscribed
	EventUnsubscribed
	// EventConflated reports that a pending value was overwritten before
	// anyone received it.
	EventConflated
)

func (k EventKind) String() string {
	switch k {
	case EventSent:
		return "sent"
	case EventReceived:
		return "received"
	case EventClosed:
		return "closed"
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventConflated:
		return "conflated"
	default:
		return "unknown"
	}
}

// Event is passed to the observer registered with [WithObserver].
type Event struct {
	Kind    EventKind
	Channel string

	// Subscriber is the subscription id for broadcast receive and
	// subscription events, zero otherwise.
	Subscriber uint64

	// Value is the item for sent, received and conflated events.
	Value any

	// Err is the close cause for closed events.
	Err error
}

// LogEvents returns an observer that writes every event to logger at debug
// level. Close events carrying a cause are logged at warn level.
func LogEvents(logger *slog.Logger) func(Event) {
	return func(e Event) {
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("channel", e.Channel),
		}
		if e.Subscriber != 0 {
			attrs = append(attrs, slog.Uint64("subscriber", e.Subscriber))
		}
		if e.Value != nil {
			attrs = append(attrs, slog.Any("value", e.Value))
		}
		if e.Err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.Any("cause", e.Err))
		}
		logger.LogAttrs(context.Background(), level, "channel "+e.Kind.String(), attrs...)
	}
}
