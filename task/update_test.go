package task_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry/task"
	"github.com/quarrydb/quarry/task/tasktest"
)

func TestUpdate_ExecutionFactoryFatalErrorIsRethrownAfterMarkingFailed(t *testing.T) {
	factory := tasktest.NewExecutionFactory()
	underlying := errors.New("runtime unavailable")
	factory.NewFn = func(task.PlanFragment) (*tasktest.Execution, error) {
		return nil, &task.FatalError{Cause: underlying}
	}

	id, err := task.NewID("q1", "stage-0", 0, 0)
	require.NoError(t, err)

	c := task.NewCoordinator(task.CoordinatorConfig{
		ID:               id,
		ExecutionFactory: factory,
		NewOutputBuffer:  func(task.BufferLimits) task.OutputBuffer { return tasktest.NewOutputBuffer() },
		Logger:           hclog.NewNullLogger(),
	})

	info, updateErr := c.Update(context.Background(), task.Session{}, &task.PlanFragment{}, nil, nil, nil)
	require.Error(t, updateErr)

	var fatal *task.FatalError
	require.ErrorAs(t, updateErr, &fatal)
	require.ErrorIs(t, updateErr, underlying)
	require.Equal(t, task.Failed, info.State)
}

func TestUpdate_OutputBufferErrorMarksFailedButReturnsNormally(t *testing.T) {
	buf := tasktest.NewOutputBuffer()
	buf.SetErr = errors.New("unknown buffer type")

	id, err := task.NewID("q1", "stage-0", 0, 0)
	require.NoError(t, err)

	c := task.NewCoordinator(task.CoordinatorConfig{
		ID:               id,
		ExecutionFactory: tasktest.NewExecutionFactory(),
		NewOutputBuffer:  func(task.BufferLimits) task.OutputBuffer { return buf },
		Logger:           hclog.NewNullLogger(),
	})

	desc := task.OutputBufferDescriptor{Type: "bogus"}
	info, updateErr := c.Update(context.Background(), task.Session{}, nil, nil, &desc, nil)

	require.NoError(t, updateErr, "a recoverable execution failure must not propagate out of Update")
	require.Equal(t, task.Failed, info.State)
	require.Len(t, info.FailureCauses, 1)

	var execErr *task.ExecutionFailureError
	require.ErrorAs(t, info.FailureCauses[0], &execErr)
}

func TestUpdate_LateUpdateAfterTerminalIsIgnored(t *testing.T) {
	factory := tasktest.NewExecutionFactory()
	id, err := task.NewID("q1", "stage-0", 0, 0)
	require.NoError(t, err)

	done := make(chan *task.Coordinator, 1)
	c := task.NewCoordinator(task.CoordinatorConfig{
		ID:               id,
		ExecutionFactory: factory,
		NewOutputBuffer:  func(task.BufferLimits) task.OutputBuffer { return tasktest.NewOutputBuffer() },
		OnDone:           func(c *task.Coordinator) { done <- c },
		Logger:           hclog.NewNullLogger(),
	})

	c.Cancel()
	<-done // wait for terminal cleanup to finalize the holder before racing an update against it

	info, updateErr := c.Update(context.Background(), task.Session{}, &task.PlanFragment{}, nil, nil, nil)
	require.NoError(t, updateErr)
	require.Equal(t, task.Canceled, info.State)
	require.Equal(t, 0, factory.CreatedCount(), "a fragment arriving after cancellation must never install an execution")
}
