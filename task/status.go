package task

import "time"

// TaskStatus is the lightweight, frequently-polled projection of a task's
// lifecycle: state, version, and IO/memory/GC counters, without the
// failure-cause detail or the no-more-splits set carried by TaskInfo.
type TaskStatus struct {
	ID            ID
	State         State
	Version       int64
	Self          string
	LastHeartbeat time.Time
	Stats         IoStats
}

// TaskInfo is the full status snapshot, including failure causes and the
// set of plan nodes that will receive no further splits.
type TaskInfo struct {
	ID            ID
	State         State
	Version       int64
	Self          string
	LastHeartbeat time.Time
	CreatedTime   time.Time
	FailureCauses []error
	NoMoreSplits  []string
	NeedsPlan     bool
	TraceToken    string
	Stats         IoStats
}

// BufferLimits carries the byte quantities passed at construction time that
// bound a task's output buffer (spec.md §6, Environment/config).
type BufferLimits struct {
	MaxBufferSize          int64
	MaxBroadcastBufferSize int64
}
