package task

import "github.com/hashicorp/go-hclog"

// CoordinatorConfig wires a Coordinator to its collaborators. None of these
// fields are owned by this package; they are the out-of-scope collaborators
// named in spec.md §1/§6.
type CoordinatorConfig struct {
	ID       ID
	Location string
	NodeID   string

	QueryContext     QueryContext
	ExecutionFactory ExecutionFactory
	Notifier         Notifier

	BufferLimits   BufferLimits
	NewOutputBuffer func(BufferLimits) OutputBuffer

	// OnDone is invoked exactly once, after terminal cleanup, with the
	// coordinator that just finished. Any panic it raises is recovered and
	// logged, never propagated.
	OnDone func(*Coordinator)

	FailedTaskCounter FailedTaskCounter

	// FinalizedCache, if set, receives a copy of this task's TaskInfo once
	// it reaches a terminal state. Safe to share across many Coordinators.
	FinalizedCache *FinalizedCache

	Logger hclog.Logger
}
