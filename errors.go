package conduit

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrTaskCancelled is the cancellation cause used by [Task.Cancel] and
// [Scope.CancelChildren]. Channel operations interrupted by it fail with
// [chanx.ErrCancelled] wrapping ErrTaskCancelled.
var ErrTaskCancelled = errors.New("conduit: task cancelled")

// TaskError attributes a failure to the task that produced it. Every
// failure a [Scope] aggregates is wrapped in a TaskError.
//
// In a pipeline one failing producer closes its channel with its error,
// and every stage and consumer downstream then fails with that same cause.
// Those follow-on failures name the producer they read from in Upstream
// and report Propagated; [RootCauses] filters them out.
type TaskError struct {
	Task TaskInfo
	// Upstream is the producer the task read from; zero if it had none.
	Upstream TaskInfo
	Err      error

	propagated bool
}

func newTaskError(t *Task, err error) *TaskError {
	te := &TaskError{Task: t.info, Err: err}
	if up := t.upstream; up != nil {
		te.Upstream = up.info
		// up.err is published before its state.
		te.propagated = up.State() == TaskFailed && up.err != nil && errors.Is(err, up.err)
	}
	return te
}

func (e *TaskError) Error() string {
	if e.propagated {
		return fmt.Sprintf("task %q failed: %v (closed by upstream %q)", e.Task.Name, e.Err, e.Upstream.Name)
	}
	return fmt.Sprintf("task %q failed: %v", e.Task.Name, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Propagated reports whether the task failed only because its upstream
// producer failed and closed the channel with that failure.
func (e *TaskError) Propagated() bool {
	return e.propagated
}

// IsTaskError reports whether err (or any error in its chain) is a [*TaskError].
func IsTaskError(err error) bool {
	var te *TaskError
	return errors.As(err, &te)
}

// TaskOf extracts the [TaskInfo] from the first [*TaskError] in err's chain.
func TaskOf(err error) (TaskInfo, bool) {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Task, true
	}
	return TaskInfo{}, false
}

// CauseOf returns the underlying cause of the first [*TaskError] in err's
// chain, or err itself if there is none.
func CauseOf(err error) error {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Err
	}
	return err
}

// AllTaskErrors collects every [*TaskError] reachable from err, including
// errors combined with [errors.Join], in order. A TaskError's own cause is
// not searched. It returns nil if there are none.
func AllTaskErrors(err error) []*TaskError {
	var out []*TaskError
	walkTaskErrors(err, func(te *TaskError) {
		out = append(out, te)
	})
	return out
}

// RootCauses is [AllTaskErrors] without the failures that only repeat an
// upstream producer's error, leaving the tasks where each failure started.
func RootCauses(err error) []*TaskError {
	var out []*TaskError
	walkTaskErrors(err, func(te *TaskError) {
		if !te.propagated {
			out = append(out, te)
		}
	})
	return out
}

func walkTaskErrors(err error, visit func(*TaskError)) {
	switch e := err.(type) {
	case nil:
	case *TaskError:
		visit(e)
	case interface{ Unwrap() []error }:
		for _, sub := range e.Unwrap() {
			walkTaskErrors(sub, visit)
		}
	case interface{ Unwrap() error }:
		walkTaskErrors(e.Unwrap(), visit)
	}
}

// PanicError carries a value recovered from a panicking task body, the
// task it came from and the goroutine stack at the point of recovery.
//
// With [WithPanicAsError] the task fails with the *PanicError like with any
// other error, and a producer closes its channel with it. Otherwise
// [Scope.Wait] re-raises it.
type PanicError struct {
	Task  TaskInfo
	Value any
	Stack string
}

func newPanicError(t *Task, v any) *PanicError {
	// runtime.Stack truncates if the buffer is too small.
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Task:  t.info,
		Value: v,
		Stack: string(buf[:n]),
	}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in task %q: %v\n\n%s", e.Task.Name, e.Value, e.Stack)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
