package conduit

import (
	"log/slog"
	"time"
)

// Policy determines how a [Scope] handles failures of child tasks.
type Policy int

const (
	// Collect gathers every failure without cancelling siblings.
	// [Scope.Wait] returns all of them joined via [errors.Join] once every
	// task has reached a terminal state.
	Collect Policy = iota

	// FailFast cancels all tasks when the first failure occurs.
	// [Scope.Wait] returns that first failure.
	FailFast
)

func (p Policy) String() string {
	switch p {
	case Collect:
		return "collect"
	case FailFast:
		return "fail-fast"
	default:
		return "unknown"
	}
}

type config struct {
	policy     Policy
	limit      int
	maxErrors  int
	panicAsErr bool
	logger     *slog.Logger
	onStart    func(TaskInfo)
	onDone     func(TaskInfo, error, time.Duration)
	onEvent    func(TaskEvent)
}

// Option configures a [Scope].
type Option func(*config)

func defaultConfig() config {
	return config{
		policy: Collect,
	}
}

// WithPolicy sets the failure handling policy for the scope.
// It panics if p is not a known Policy value.
func WithPolicy(p Policy) Option {
	return func(c *config) {
		switch p {
		case FailFast, Collect:
			c.policy = p
		default:
			panic("conduit: invalid policy")
		}
	}
}

// WithLimit sets the maximum number of task bodies executing concurrently
// within the scope. Tasks beyond the limit wait for a slot; a task cancelled
// while waiting never runs its body. A body keeps its slot while parked in
// a channel operation, so a producer and its consumer need two slots. The
// slot is given back when the body returns, before the task waits for its
// sub-tasks.
//
// A limit of zero (the default) means unlimited concurrency.
// WithLimit panics if n is negative.
func WithLimit(n int) Option {
	return func(c *config) {
		if n < 0 {
			panic("conduit: limit must be non-negative")
		}
		c.limit = n
	}
}

// WithMaxErrors caps how many failures a [Collect] scope keeps. Failures
// beyond the cap are counted in [Scope.DroppedErrors]. Zero means no cap.
func WithMaxErrors(n int) Option {
	return func(c *config) {
		if n < 0 {
			panic("conduit: max errors must be non-negative")
		}
		c.maxErrors = n
	}
}

// WithPanicAsError converts panics in tasks to [*PanicError] failures
// instead of re-raising them in [Scope.Wait].
func WithPanicAsError() Option {
	return func(c *config) {
		c.panicAsErr = true
	}
}

// WithLogger makes the scope log task lifecycle transitions to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithOnStart registers a hook invoked when each task body begins.
// The hook runs inside the task's goroutine before the body.
func WithOnStart(fn func(TaskInfo)) Option {
	return func(c *config) {
		c.onStart = fn
	}
}

// WithOnDone registers a hook invoked when each task reaches a terminal
// state, with the task's error (nil on success) and wall-clock duration.
func WithOnDone(fn func(TaskInfo, error, time.Duration)) Option {
	return func(c *config) {
		c.onDone = fn
	}
}

// WithOnEvent registers a hook receiving a [TaskEvent] for every task state
// change.
func WithOnEvent(fn func(TaskEvent)) Option {
	return func(c *config) {
		c.onEvent = fn
	}
}
