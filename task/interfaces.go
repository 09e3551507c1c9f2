package task

import (
	"context"

	"github.com/hashicorp/go-set/v3"
)

// Session carries the per-request session properties handed down from the
// coordinator node. Its contents are opaque to this package.
type Session struct {
	ID         string
	Properties map[string]string

	// TraceToken is an optional opaque string used for failure-injection
	// routing. Only the first non-empty value a task ever observes is
	// retained (spec.md §3).
	TraceToken string
}

// QueryContext is the query-level memory accounting context. It is a
// collaborator owned outside this package (see spec.md §1, out of scope).
type QueryContext struct {
	QueryID string
}

// PlanFragment is the portion of the physical plan assigned to this task.
// Its internal shape is owned by the plan-fragment package, out of scope
// here.
type PlanFragment struct {
	StageID string
	Root    string
}

// SplitAssignment is a unit of input-data assignment delivered to a task
// after creation.
type SplitAssignment struct {
	PlanNodeID string
	SplitID    string
	Data       any
}

// OutputBufferDescriptor configures how a task's output buffer partitions
// and addresses its downstream consumers.
type OutputBufferDescriptor struct {
	Type      string
	BufferIDs []string
}

// ResultsPage is a page of serialized result rows fetched from the output
// buffer.
type ResultsPage struct {
	Token       int64
	Data        [][]byte
	BufferedBytes int64
	NextToken   int64
	Complete    bool
}

// OutputBufferInfo reports the output buffer's own lifecycle snapshot.
type OutputBufferInfo struct {
	Type            string
	State           string
	TotalBufferedBytes int64
	TotalRowsSent   int64
}

// PipelineStatus summarizes one pipeline's driver accounting, aggregated by
// the IO/stats view while the task is Live.
type PipelineStatus struct {
	QueuedDrivers       int
	QueuedPartitionedSplitsWeight  int64
	RunningDrivers      int
	RunningPartitionedSplitsWeight int64
	PhysicalWrittenDataSize int64
}

// Domain is a single dynamic-filter predicate refinement produced at
// runtime, stamped with the version it was produced at.
type Domain struct {
	SourceID string
	Version  int64
	Values   any
}

// VersionedDomains is a delta batch of Domain values plus the new
// high-water version those domains bring the caller to.
type VersionedDomains struct {
	Domains []Domain
	Version int64
}

// TaskContext exposes the memory, GC, and pipeline accounting the IO/stats
// view reads while the task is Live. Owned by the execution runtime,
// out of scope here.
type TaskContext interface {
	MemoryReservation() (user, peak, revocable int64)
	FullGCStats() (count int64, timeMillis int64)
	PipelineStatuses() []PipelineStatus
}

// Execution is the operator-runtime handle installed into the task holder
// once a plan fragment arrives. Out of scope here; this package only calls
// through the interface.
type Execution interface {
	AddSplitAssignments(assignments []SplitAssignment)
	// AddDynamicFilterDomains forwards domains delivered alongside an update
	// call (e.g. broadcast from another stage's build side) so this
	// execution can apply them to its own operators. This supplements the
	// read-only accessor below, which exposes domains *produced* by this
	// execution to other stages.
	AddDynamicFilterDomains(domains []Domain)
	TaskContext() TaskContext
	NoMoreSplits() *set.Set[string]
	AcknowledgeAndGetNewDynamicFilterDomains(callerVersion int64) (VersionedDomains, error)
}

// ExecutionFactory constructs an Execution the first time a plan fragment
// arrives for a task.
type ExecutionFactory interface {
	New(ctx context.Context, session Session, queryCtx QueryContext, sm *StateMachine, buf OutputBuffer, fragment PlanFragment, notifyChanged func()) (Execution, error)
}

// OutputBuffer is the ring-buffered pipelined output subsystem. Out of
// scope here; the coordinator only invokes well-defined lifecycle points.
type OutputBuffer interface {
	SetOutputBuffers(desc OutputBufferDescriptor) error
	Get(ctx context.Context, bufferID string, startingSequence int64, maxSize int64) (ResultsPage, error)
	Acknowledge(bufferID string, sequence int64)
	Destroy(bufferID string)
	// DestroyAll tears the whole buffer down cleanly, for clean terminals
	// (Finished/Canceled).
	DestroyAll() error
	// Abort tears the buffer down so upstream producers observe an error,
	// for failure terminals (Failed/Aborted).
	Abort() error
	Info() OutputBufferInfo
	IsOverutilized() bool
}

// FailedTaskCounter is the process-wide counter incremented once per task
// that terminates in Failed.
type FailedTaskCounter interface {
	Increment()
}
