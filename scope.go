// Scope supervises a group of tasks with a shared lifecycle. Every task is
// launched explicitly through the Scope or through the child Spawner handed
// to a running task; there is no implicit global scope.
//
// A Scope tracks its live children, supports bulk cancellation via
// CancelChildren, and joins everything in Wait, which reports the aggregated
// failures once all tasks are terminal.
//
// Example usage:
//
//	sc := New(context.Background())
//	sc.Launch("child", func(ctx context.Context, sp Spawner) error {
//	    return work(ctx)
//	})
//	err := sc.Wait()
package conduit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TaskFunc is the body of a task. It receives the task's context, cancelled
// when the task or its scope is cancelled, and a Spawner for sub-tasks.
type TaskFunc func(ctx context.Context, sp Spawner) error

// scope maintains the state shared by a Scope and all of its spawners.
type scope struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	cfg    config

	wg sync.WaitGroup

	errMu         sync.Mutex
	firstErr      *TaskError
	errs          []*TaskError
	droppedErrors int // failures exceeding the maxErrors cap

	panicMu sync.Mutex
	panics  []*PanicError

	// slots bounds running task bodies when WithLimit is set.
	slots chan struct{}

	tasksMu  sync.Mutex
	live     map[*Task]struct{}
	children []*Task

	finOnce  sync.Once
	finErr   error
	finPanic *PanicError

	totalSpawned atomic.Int64
	activeTasks  atomic.Int64
}

// Run creates a [Scope], invokes fn with it, then waits for every launched
// task to reach a terminal state. It returns the aggregated error according
// to the configured [Policy] (default [Collect]).
func Run(parent context.Context, fn func(sc *Scope), opts ...Option) (err error) {
	sc := New(parent, opts...)

	defer func() {
		// A panic in fn takes priority over task panics.
		runPanic := recover()

		sc.root.close()
		waitErr, waitPanic := sc.s.finalize()

		if runPanic != nil {
			panic(runPanic)
		}
		if waitPanic != nil {
			panic(waitPanic)
		}
		err = waitErr
	}()

	fn(sc)
	return nil
}

// finalize waits for all tasks to complete and returns the aggregated error.
func (s *scope) finalize() (error, *PanicError) {
	s.finOnce.Do(func() {
		s.wg.Wait()

		ctxWasCancelled := s.ctx.Err() != nil
		s.cancel(nil)

		if !s.cfg.panicAsErr {
			s.panicMu.Lock()
			if len(s.panics) > 0 {
				s.finPanic = s.panics[0]
			}
			s.panicMu.Unlock()
		}

		s.errMu.Lock()
		switch s.cfg.policy {
		case FailFast:
			if s.firstErr != nil {
				s.finErr = s.firstErr
			}
		case Collect:
			if len(s.errs) > 0 {
				errs := make([]error, 0, len(s.errs))
				for _, te := range s.errs {
					errs = append(errs, te)
				}
				s.finErr = errors.Join(errs...)
			}
		}
		s.errMu.Unlock()

		// Cancelled from outside with nothing else to report.
		if s.finErr == nil && ctxWasCancelled {
			s.finErr = context.Cause(s.ctx)
		}
	})

	return s.finErr, s.finPanic
}

// exec runs fn for t with panic recovery. A recovered panic is always
// returned as a *PanicError naming t; unless panicAsErr is set it is also
// kept for Wait to re-raise and the scope is cancelled.
func (s *scope) exec(t *Task, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := newPanicError(t, r)
			err = pe
			if !s.cfg.panicAsErr {
				s.panicMu.Lock()
				s.panics = append(s.panics, pe)
				s.panicMu.Unlock()
				s.cancel(pe)
			}
		}
	}()
	return fn(t.ctx)
}

// acquire takes a body slot for t. Without a limit it always succeeds.
func (s *scope) acquire(t *Task) error {
	if s.slots == nil {
		return nil
	}
	if err := t.ctx.Err(); err != nil {
		return err
	}
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

func (s *scope) release() {
	if s.slots != nil {
		<-s.slots
	}
}

// run executes t on the calling goroutine.
func (s *scope) run(t *Task, fn TaskFunc) {
	defer s.wg.Done()
	if t.parent != nil {
		defer t.parent.children.Done()
	}

	if err := s.acquire(t); err != nil {
		s.complete(t, err, 0)
		return
	}

	if t.ctx.Err() != nil {
		s.release()
		s.complete(t, canceledBeforeStart(t.ctx), 0)
		return
	}

	child := newSpawner(s, t.ctx, t)

	s.activeTasks.Add(1)
	s.emitEvent(TaskEvent{Kind: EventStarted, Task: t.info})
	s.logDebug("task started", t)

	start := time.Now()
	err := s.exec(t, func(ctx context.Context) error {
		if s.cfg.onStart != nil {
			s.cfg.onStart(t.info)
		}
		return fn(ctx, child)
	})
	// The slot covers the body only; sub-tasks waited on below need it.
	s.release()

	// Sub-tasks are part of this task's lifetime.
	child.close()
	t.children.Wait()
	elapsed := time.Since(start)

	s.activeTasks.Add(-1)
	s.complete(t, err, elapsed)
}

// complete settles t, reports it and publishes its terminal state.
func (s *scope) complete(t *Task, err error, d time.Duration) {
	state := t.settle(err)

	s.tasksMu.Lock()
	delete(s.live, t)
	s.tasksMu.Unlock()

	if s.cfg.onDone != nil {
		// onDone runs outside exec; a panicking hook is not recovered.
		s.cfg.onDone(t.info, err, d)
	}
	s.emitCompletionEvent(t.info, state, err, d)
	s.logCompletion(t, state, d)

	if state == TaskFailed {
		var pe *PanicError
		if s.cfg.panicAsErr || !errors.As(err, &pe) {
			s.recordError(newTaskError(t, err))
		}
	}

	t.close()
}

// emitEvent calls the onEvent hook if registered.
func (s *scope) emitEvent(e TaskEvent) {
	if s.cfg.onEvent != nil {
		s.cfg.onEvent(e)
	}
}

// emitCompletionEvent maps a terminal state to its EventKind and emits it.
func (s *scope) emitCompletionEvent(info TaskInfo, state TaskState, err error, d time.Duration) {
	if s.cfg.onEvent == nil {
		return
	}

	var kind EventKind
	switch {
	case state == TaskCompleted:
		kind = EventDone
	case state == TaskCancelled:
		kind = EventCancelled
	case errors.As(err, new(*PanicError)):
		kind = EventPanicked
	default:
		kind = EventFailed
	}

	s.cfg.onEvent(TaskEvent{
		Kind:     kind,
		Task:     info,
		Err:      err,
		Duration: d,
	})
}

func (s *scope) logDebug(msg string, t *Task) {
	if s.cfg.logger == nil {
		return
	}
	s.cfg.logger.Debug(msg, slog.String("task", t.info.Name), slog.String("id", t.info.ID.String()))
}

func (s *scope) logCompletion(t *Task, state TaskState, d time.Duration) {
	if s.cfg.logger == nil {
		return
	}
	level := slog.LevelDebug
	if state == TaskFailed {
		level = slog.LevelError
	}
	s.cfg.logger.LogAttrs(s.ctx, level, "task finished",
		slog.String("task", t.info.Name),
		slog.String("id", t.info.ID.String()),
		slog.String("state", state.String()),
		slog.Duration("elapsed", d),
		slog.Any("err", t.err),
	)
}

// recordError records a failure according to the configured policy.
func (s *scope) recordError(te *TaskError) {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	switch s.cfg.policy {
	case FailFast:
		if s.firstErr == nil {
			s.firstErr = te
			s.cancel(te)
		}
	case Collect:
		if s.cfg.maxErrors > 0 && len(s.errs) >= s.cfg.maxErrors {
			s.droppedErrors++
		} else {
			s.errs = append(s.errs, te)
		}
	}
}

// Scope supervises tasks. Create one via [New] or [Run]; finalize with
// [Scope.Wait]. A Scope is itself a [Spawner] for top-level tasks.
type Scope struct {
	s        *scope
	root     *spawner
	once     sync.Once
	result   error
	panicVal *PanicError
}

// New creates a [Scope] whose tasks inherit parent's cancellation.
// The caller must call [Scope.Wait] to finalize the scope.
func New(parent context.Context, opts ...Option) *Scope {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancelCause(parent)
	s := &scope{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		live:   make(map[*Task]struct{}),
	}
	if cfg.limit > 0 {
		s.slots = make(chan struct{}, cfg.limit)
	}

	return &Scope{
		s:    s,
		root: newSpawner(s, ctx, nil),
	}
}

// Launch starts a top-level task. It panics if called after [Scope.Wait].
func (sc *Scope) Launch(name string, fn TaskFunc) *Task {
	return sc.root.Launch(name, fn)
}

func (sc *Scope) launch(name string, fn TaskFunc, lo launchOpts) *Task {
	return sc.root.launch(name, fn, lo)
}

// CancelChildren cancels every live task, including nested ones. Each is
// flagged [TaskCancelled] immediately and any channel operation it is
// blocked in fails. It does not wait for the tasks to finish, and the scope
// itself stays usable.
func (sc *Scope) CancelChildren() {
	sc.s.tasksMu.Lock()
	live := make([]*Task, 0, len(sc.s.live))
	for t := range sc.s.live {
		live = append(live, t)
	}
	sc.s.tasksMu.Unlock()

	for _, t := range live {
		t.Cancel()
	}
}

// Wait stops accepting new top-level tasks, waits for all tasks to reach a
// terminal state, and returns the aggregated failures. If a task panicked
// and [WithPanicAsError] was not set, Wait re-panics with the captured
// [*PanicError].
//
// Wait is idempotent; subsequent calls return the same result.
func (sc *Scope) Wait() error {
	sc.once.Do(func() {
		sc.root.close()
		sc.result, sc.panicVal = sc.s.finalize()
	})

	if sc.panicVal != nil {
		panic(sc.panicVal)
	}
	return sc.result
}

// WaitTimeout is like [Scope.Wait] but gives up after d, returning
// [context.DeadlineExceeded] and leaving the scope open. Wait may be called
// afterwards.
func (sc *Scope) WaitTimeout(d time.Duration) error {
	done := make(chan struct{})
	go func() {
		sc.s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return sc.Wait()
	case <-timer.C:
		return context.DeadlineExceeded
	}
}

// Cancel cancels the scope's context with the given cause, signaling all
// tasks to stop.
func (sc *Scope) Cancel(cause error) {
	sc.s.cancel(cause)
}

// Context returns the scope's context, which is cancelled when the scope
// finalizes or is cancelled.
func (sc *Scope) Context() context.Context {
	return sc.s.ctx
}

// Children returns every top-level and nested task launched so far, in
// launch order.
func (sc *Scope) Children() []*Task {
	sc.s.tasksMu.Lock()
	defer sc.s.tasksMu.Unlock()
	return append([]*Task(nil), sc.s.children...)
}

// ActiveTasks returns the number of task bodies currently executing.
func (sc *Scope) ActiveTasks() int64 {
	return sc.s.activeTasks.Load()
}

// TotalSpawned returns the number of tasks launched in the scope,
// including finished ones.
func (sc *Scope) TotalSpawned() int64 {
	return sc.s.totalSpawned.Load()
}

// DroppedErrors returns the number of failures not stored because the
// [WithMaxErrors] cap was reached.
func (sc *Scope) DroppedErrors() int {
	sc.s.errMu.Lock()
	defer sc.s.errMu.Unlock()
	return sc.s.droppedErrors
}
