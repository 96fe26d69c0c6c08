package conduit

import "context"

// Deferred is the pending result of a task started with [Async].
type Deferred[T any] struct {
	task *Task
	val  T // written before task.done is closed
}

// Async launches a task that computes a value, such as a bulk fetch from
// an upstream source, and returns a handle to await it.
//
//	d := conduit.Async(sc, "fetch", func(ctx context.Context) ([]catalog.Product, error) {
//	    return src.Fetch(ctx)
//	})
//	products, err := d.Await(ctx)
func Async[T any](sp Spawner, name string, fn func(ctx context.Context) (T, error)) *Deferred[T] {
	d := &Deferred[T]{}
	d.task = sp.Launch(name, func(ctx context.Context, _ Spawner) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		d.val = v
		return nil
	})
	return d
}

// Await waits for the value. It returns the task's error if it failed or
// was cancelled, or ctx.Err() if ctx is done first.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	if err := d.task.Join(ctx); err != nil {
		var zero T
		return zero, err
	}
	return d.val, nil
}

// Task returns the computing task.
func (d *Deferred[T]) Task() *Task {
	return d.task
}
