// Package conduit runs channel-based concurrent pipelines under an explicit
// supervisor.
//
// # Scopes and Tasks
//
// A [Scope] owns a set of tasks. Tasks are launched explicitly with
// [Scope.Launch], or with the child [Spawner] every task body receives;
// there is no process-wide default scope:
//
//	sc := conduit.New(ctx)
//	sc.Launch("fetch", func(ctx context.Context, sp conduit.Spawner) error {
//	    sp.Launch("step-1", step1)
//	    return fetch(ctx)
//	})
//	err := sc.Wait()
//
// [Run] wraps New and Wait for the common case. Each launch returns a
// [*Task] with an id, a [TaskState] (active, completed, failed, cancelled),
// and [Task.Join] to wait for it. A task only finishes after its sub-tasks.
//
// [Scope.CancelChildren] cancels every live task without waiting: each is
// flagged cancelled at once, and any channel operation it is blocked in fails
// with [chanx.ErrCancelled]. [Scope.Wait] joins all tasks and reports the
// failures once every task is terminal. Cancellation is not a failure.
//
// # Error Policies
//
//   - [Collect] (default): all failures are kept and returned joined via
//     [errors.Join]. [WithMaxErrors] caps how many are stored.
//   - [FailFast]: the first failure cancels the scope and is returned alone.
//
// Failures are wrapped in [*TaskError]; use [IsTaskError], [TaskOf],
// [CauseOf] and [AllTaskErrors] to inspect them, and [RootCauses] to drop
// the failures that only repeat a failed upstream producer. Panics are
// captured as [*PanicError] and re-raised in Wait unless [WithPanicAsError]
// is set.
//
// # Pipelines
//
// [Produce] launches a task owning a new [chanx.Channel] and hands back its
// receive-only view as a [Producer]. The channel is always closed when the
// task ends, with the task's error as cause if it failed, so consumers never
// hang. [Stage] and [Relay] chain producers: a stage reads its upstream,
// re-sends in arrival order and closes exactly when the upstream closes.
// [Consume] drains a receiver in a task; [Observe] does the same for a
// [chanx.Broadcast] subscription taken at call time. A consumer or stage
// that stops before its input is closed cancels the producer feeding it. [Async] runs a one-shot
// computation such as a bulk fetch and returns a [Deferred] to await.
// [ConsumeN] fans one receiver out to competing workers and [Merge] fans
// several in.
//
// # Observability
//
//   - [WithLogger]: log task lifecycle through [log/slog].
//   - [WithOnStart], [WithOnDone]: per-task hooks.
//   - [WithOnEvent]: a [TaskEvent] for every state change.
//
// Channel-level events (sent, received, closed) are reported by the chanx
// package through [chanx.WithObserver].
package conduit
