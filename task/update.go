package task

import (
	"context"
	"errors"
)

// Update implements the protocol in spec.md §4.4. It is the one operation
// allowed to observe and recover from collaborator errors: an
// ExecutionFailureError-class problem marks the task Failed and returns
// normally with the post-failure TaskInfo; a FatalError does the same and
// is additionally rethrown. A precondition error (ErrInvalidArgument,
// ErrInvalidState) is neither: it means the request itself was malformed,
// so it is returned to the caller as-is, per spec.md §9, without touching
// the task's state.
func (c *Coordinator) Update(
	ctx context.Context,
	session Session,
	fragment *PlanFragment,
	splits []SplitAssignment,
	outputDesc *OutputBufferDescriptor,
	domains []Domain,
) (TaskInfo, error) {
	if err := c.doUpdate(ctx, session, fragment, splits, outputDesc, domains); err != nil {
		var fatal *FatalError
		if errors.As(err, &fatal) {
			c.Failed(fatal)
			return c.Info(), fatal
		}
		var execErr *ExecutionFailureError
		if errors.As(err, &execErr) {
			c.Failed(execErr)
			return c.Info(), nil
		}
		return c.Info(), err
	}
	return c.Info(), nil
}

func (c *Coordinator) doUpdate(
	ctx context.Context,
	session Session,
	fragment *PlanFragment,
	splits []SplitAssignment,
	outputDesc *OutputBufferDescriptor,
	domains []Domain,
) error {
	// Step 1: record the trace token. First non-empty write wins.
	c.recordTraceToken(session.TraceToken)

	// Step 2: apply the output-buffer descriptor before the execution can
	// exist, since execution may publish results immediately once
	// installed.
	changed := false
	if outputDesc != nil {
		if err := c.buffer.SetOutputBuffers(*outputDesc); err != nil {
			return &ExecutionFailureError{Cause: err}
		}
		changed = true
	}

	// Step 3: under the coordinator lock, resolve or install the
	// execution.
	exec, created, err := c.installExecution(ctx, session, fragment)
	if err != nil {
		return err
	}
	if exec == nil {
		// Holder was already Final (or raced to Final concurrently):
		// late-arriving update is ignored.
		if changed {
			c.beacon.NotifyStatusChanged()
		}
		return nil
	}
	if created {
		c.sm.TransitionToRunning()
		changed = true
	}

	// Step 4: outside the lock, forward splits and dynamic-filter domains.
	if len(splits) > 0 {
		exec.AddSplitAssignments(splits)
		changed = true
	}
	if len(domains) > 0 {
		exec.AddDynamicFilterDomains(domains)
		changed = true
	}

	if changed {
		c.beacon.NotifyStatusChanged()
	}
	return nil
}

// installExecution resolves step 3 of the update protocol: reuse a Live
// execution, install a new one from Empty, or report that the holder is
// already Final (nil, false, nil) so the caller treats this as a no-op.
func (c *Coordinator) installExecution(ctx context.Context, session Session, fragment *PlanFragment) (Execution, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.holder.Final(); ok {
		return nil, false, nil
	}
	if exec, ok := c.holder.Live(); ok {
		return exec, false, nil
	}

	if fragment == nil {
		return nil, false, ErrInvalidState
	}

	exec, err := c.cfg.ExecutionFactory.New(
		ctx,
		session,
		c.cfg.QueryContext,
		c.sm,
		c.buffer,
		*fragment,
		func() { c.beacon.NotifyStatusChanged() },
	)
	if err != nil {
		var fatal *FatalError
		if errors.As(err, &fatal) {
			return nil, false, fatal
		}
		return nil, false, &ExecutionFailureError{Cause: err}
	}

	if !c.holder.SetLive(exec) {
		// Lost a race to a concurrent finalize: treat like the Final
		// check above, a no-op.
		return nil, false, nil
	}

	return exec, true, nil
}
