package conduit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettleKeepsCancelledFlag(t *testing.T) {
	task := newTask(context.Background(), "flagged", nil, launchOpts{})
	task.Cancel()

	assert.Equal(t, TaskCancelled, task.settle(nil))
	assert.Equal(t, TaskCancelled, task.State())
}

func TestSettleIsFinal(t *testing.T) {
	task := newTask(context.Background(), "failing", nil, launchOpts{})
	errBoom := errors.New("boom")

	assert.Equal(t, TaskFailed, task.settle(errBoom))
	task.Cancel()
	assert.Equal(t, TaskFailed, task.State(), "Cancel does not move a terminal task")
}

func TestCancelRacingCompletionNeverReverts(t *testing.T) {
	sc := New(context.Background())

	for range 500 {
		task := sc.Launch("quick", func(context.Context, Spawner) error { return nil })

		task.Cancel()
		observed := task.State()
		<-task.Done()

		if observed == TaskCancelled {
			assert.Equal(t, TaskCancelled, task.State(), "a task flagged cancelled completed anyway")
		} else {
			assert.Equal(t, TaskCompleted, task.State())
		}
	}

	assert.NoError(t, sc.Wait())
}
