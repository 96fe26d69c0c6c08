package conduit

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/baxromumarov/conduit/chanx"
)

// Spawner launches tasks into a scope. The [Scope] itself is the root
// Spawner; every running task receives a child Spawner whose tasks become
// its sub-tasks.
type Spawner interface {
	// Launch starts a new concurrent task with the given name.
	Launch(name string, fn TaskFunc) *Task

	launch(name string, fn TaskFunc, lo launchOpts) *Task
}

// launchOpts carries the wiring used by Produce, Stage, Consume and Observe.
type launchOpts struct {
	upstream *Task
	// finalize runs once the task is terminal, even if its body never ran.
	finalize func(err error)
}

// spawner implements Spawner for one level of the task tree.
type spawner struct {
	s      *scope
	ctx    context.Context
	parent *Task
	open   atomic.Bool
}

func newSpawner(s *scope, ctx context.Context, parent *Task) *spawner {
	sp := &spawner{
		s:      s,
		ctx:    ctx,
		parent: parent,
	}
	sp.open.Store(true)
	return sp
}

// Launch implements Spawner.Launch.
func (sp *spawner) Launch(name string, fn TaskFunc) *Task {
	return sp.launch(name, fn, launchOpts{})
}

func (sp *spawner) launch(name string, fn TaskFunc, lo launchOpts) *Task {
	// Check open BEFORE wg.Add to avoid racing finalize()'s wg.Wait().
	if !sp.open.Load() {
		panic("conduit: Launch called after scope shutdown")
	}

	s := sp.s
	t := newTask(sp.ctx, name, sp.parent, lo)

	s.wg.Add(1)
	if sp.parent != nil {
		sp.parent.children.Add(1)
	}

	s.tasksMu.Lock()
	s.live[t] = struct{}{}
	s.children = append(s.children, t)
	s.tasksMu.Unlock()
	s.totalSpawned.Add(1)

	go s.run(t, fn)
	return t
}

// close marks the spawner as closed, preventing further Launch calls.
func (sp *spawner) close() {
	sp.open.Store(false)
}

// canceledBeforeStart is the outcome of a task whose context was done
// before its body could run.
func canceledBeforeStart(ctx context.Context) error {
	return fmt.Errorf("%w: %w", chanx.ErrCancelled, context.Cause(ctx))
}
