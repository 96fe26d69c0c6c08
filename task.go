package conduit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/baxromumarov/conduit/chanx"
)

// TaskState is the lifecycle state of a [Task].
type TaskState int32

const (
	TaskActive TaskState = iota
	TaskCompleted
	// TaskFailed means the body returned an error or panicked.
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskActive:
		return "active"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is a final state.
func (s TaskState) IsTerminal() bool {
	return s != TaskActive
}

// TaskInfo identifies a task in hooks, events and errors.
type TaskInfo struct {
	ID   uuid.UUID
	Name string
}

// Task is a handle to a unit of work launched in a [Scope].
type Task struct {
	info     TaskInfo
	parent   *Task
	upstream *Task

	ctx    context.Context
	cancel context.CancelCauseFunc

	state    atomic.Int32
	err      error // written once before done is closed
	done     chan struct{}
	children sync.WaitGroup

	finalize func(error)
}

func newTask(parentCtx context.Context, name string, parent *Task, lo launchOpts) *Task {
	ctx, cancel := context.WithCancelCause(parentCtx)
	return &Task{
		info:     TaskInfo{ID: uuid.New(), Name: name},
		parent:   parent,
		upstream: lo.upstream,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		finalize: lo.finalize,
	}
}

func (t *Task) ID() uuid.UUID { return t.info.ID }

func (t *Task) Name() string { return t.info.Name }

func (t *Task) Info() TaskInfo { return t.info }

// State returns the current lifecycle state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Parent returns the task that launched t, or nil for tasks launched
// directly on the [Scope].
func (t *Task) Parent() *Task { return t.parent }

// Upstream returns the task producing the channel t reads from, if t was
// created by [Stage], [Relay] or [Consume] over a [Producer].
func (t *Task) Upstream() *Task { return t.upstream }

// Done returns a channel closed once t has reached a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the error the task body ended with. It is nil while the task
// is active.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Cancel requests cancellation. The task is flagged [TaskCancelled] at once
// and any channel operation it is blocked in fails with
// [chanx.ErrCancelled]. Cancel does not wait for the task to finish.
func (t *Task) Cancel() {
	t.state.CompareAndSwap(int32(TaskActive), int32(TaskCancelled))
	t.cancel(ErrTaskCancelled)
}

// Join waits until t is terminal or ctx is done. It returns nil if t
// completed normally, the body's error if it failed, and a cancellation
// error if it was cancelled.
func (t *Task) Join(ctx context.Context) error {
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if t.State() == TaskCompleted {
		return nil
	}
	if t.err != nil {
		return t.err
	}
	return ErrTaskCancelled
}

// settle records err and moves t to its terminal state. A task already
// flagged by [Task.Cancel] stays cancelled.
func (t *Task) settle(err error) TaskState {
	var st TaskState
	switch {
	case err == nil:
		st = TaskCompleted
	case errors.As(err, new(*PanicError)):
		st = TaskFailed
	case chanx.IsCancelled(err), errors.Is(err, ErrTaskCancelled):
		st = TaskCancelled
	case t.ctx.Err() != nil && (errors.Is(err, t.ctx.Err()) || errors.Is(err, context.Cause(t.ctx))):
		st = TaskCancelled
	default:
		st = TaskFailed
	}

	t.err = err
	if !t.state.CompareAndSwap(int32(TaskActive), int32(st)) {
		st = t.State()
	}
	return st
}

// close runs the finalizer, releases the task context and publishes the
// terminal state.
func (t *Task) close() {
	if t.finalize != nil {
		t.finalize(t.err)
	}
	t.cancel(nil)
	close(t.done)
}
