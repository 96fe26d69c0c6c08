package conduit

import "time"

// EventKind identifies a task lifecycle transition.
type EventKind int

const (
	EventStarted EventKind = iota
	EventDone
	EventFailed
	EventPanicked
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	case EventPanicked:
		return "panicked"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TaskEvent is delivered to the hook registered with [WithOnEvent].
type TaskEvent struct {
	Kind EventKind
	Task TaskInfo
	// Err is the task's error for terminal events.
	Err error
	// Duration is the body's wall-clock time for terminal events.
	Duration time.Duration
}
