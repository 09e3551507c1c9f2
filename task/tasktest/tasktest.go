// Package tasktest provides hand-written fakes for the collaborator
// interfaces task.Coordinator depends on, in the spirit of nomad's own
// nomad/mock package: plain constructors and plain structs, no mocking
// framework.
package tasktest

import (
	"context"
	"sync"

	"github.com/hashicorp/go-set/v3"

	"github.com/quarrydb/quarry/task"
)

// Execution is a fake task.Execution. Every method is safe for concurrent
// use. Tests configure behavior by setting the exported fields directly
// before handing the fake to a factory, or by mutating them under Lock/
// Unlock afterward.
type Execution struct {
	mu sync.Mutex

	Splits          []task.SplitAssignment
	InboundDomains  []task.Domain
	OutboundDomains []task.Domain
	OutboundVersion int64
	NoMoreSplitIDs  *set.Set[string]

	NotifyChanged func()

	MemUser, MemPeak, MemRevocable int64
	GCCount, GCTimeMillis          int64
	Pipelines                      []task.PipelineStatus

	AckErr error
}

// NewExecution returns an Execution fake with an empty no-more-splits set.
func NewExecution() *Execution {
	return &Execution{NoMoreSplitIDs: set.New[string](0)}
}

func (e *Execution) Lock()   { e.mu.Lock() }
func (e *Execution) Unlock() { e.mu.Unlock() }

func (e *Execution) AddSplitAssignments(assignments []task.SplitAssignment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Splits = append(e.Splits, assignments...)
}

func (e *Execution) AddDynamicFilterDomains(domains []task.Domain) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.InboundDomains = append(e.InboundDomains, domains...)
}

func (e *Execution) TaskContext() task.TaskContext {
	return (*executionContext)(e)
}

func (e *Execution) NoMoreSplits() *set.Set[string] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.NoMoreSplitIDs
}

func (e *Execution) AcknowledgeAndGetNewDynamicFilterDomains(callerVersion int64) (task.VersionedDomains, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.AckErr != nil {
		return task.VersionedDomains{}, e.AckErr
	}
	var fresh []task.Domain
	for _, d := range e.OutboundDomains {
		if d.Version > callerVersion {
			fresh = append(fresh, d)
		}
	}
	return task.VersionedDomains{Domains: fresh, Version: e.OutboundVersion}, nil
}

// PublishDomain appends a domain to the set this execution reports to
// callers, bumping the outbound high-water version and firing NotifyChanged
// if set, mirroring what a real operator pipeline does when it produces a
// new predicate refinement.
func (e *Execution) PublishDomain(d task.Domain) {
	e.mu.Lock()
	e.OutboundVersion++
	d.Version = e.OutboundVersion
	e.OutboundDomains = append(e.OutboundDomains, d)
	notify := e.NotifyChanged
	e.mu.Unlock()

	if notify != nil {
		notify()
	}
}

type executionContext Execution

func (c *executionContext) MemoryReservation() (user, peak, revocable int64) {
	e := (*Execution)(c)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.MemUser, e.MemPeak, e.MemRevocable
}

func (c *executionContext) FullGCStats() (count int64, timeMillis int64) {
	e := (*Execution)(c)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.GCCount, e.GCTimeMillis
}

func (c *executionContext) PipelineStatuses() []task.PipelineStatus {
	e := (*Execution)(c)
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]task.PipelineStatus, len(e.Pipelines))
	copy(out, e.Pipelines)
	return out
}

// ExecutionFactory is a fake task.ExecutionFactory. NewFn, when set, lets a
// test customize the returned Execution or inject a factory-time error;
// otherwise New returns a fresh NewExecution().
type ExecutionFactory struct {
	mu       sync.Mutex
	Created  []*Execution
	NewFn    func(fragment task.PlanFragment) (*Execution, error)
	Requests int
}

func NewExecutionFactory() *ExecutionFactory {
	return &ExecutionFactory{}
}

func (f *ExecutionFactory) New(ctx context.Context, session task.Session, queryCtx task.QueryContext, sm *task.StateMachine, buf task.OutputBuffer, fragment task.PlanFragment, notifyChanged func()) (task.Execution, error) {
	f.mu.Lock()
	f.Requests++
	newFn := f.NewFn
	f.mu.Unlock()

	var exec *Execution
	var err error
	if newFn != nil {
		exec, err = newFn(fragment)
	} else {
		exec = NewExecution()
	}
	if err != nil {
		return nil, err
	}
	exec.NotifyChanged = notifyChanged

	f.mu.Lock()
	f.Created = append(f.Created, exec)
	f.mu.Unlock()

	return exec, nil
}

// CreatedCount returns how many executions this factory has produced.
func (f *ExecutionFactory) CreatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Created)
}

// OutputBuffer is a fake task.OutputBuffer.
type OutputBuffer struct {
	mu sync.Mutex

	Desc        *task.OutputBufferDescriptor
	Acked       map[string]int64
	Destroyed   []string
	DestroyAllN int
	AbortN      int

	GetErr     error
	Page       task.ResultsPage
	SetErr     error
	DestroyErr error
	AbortErr   error

	Overutilized bool
}

func NewOutputBuffer() *OutputBuffer {
	return &OutputBuffer{Acked: make(map[string]int64)}
}

func (b *OutputBuffer) SetOutputBuffers(desc task.OutputBufferDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SetErr != nil {
		return b.SetErr
	}
	b.Desc = &desc
	return nil
}

func (b *OutputBuffer) Get(ctx context.Context, bufferID string, startingSequence int64, maxSize int64) (task.ResultsPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.GetErr != nil {
		return task.ResultsPage{}, b.GetErr
	}
	return b.Page, nil
}

func (b *OutputBuffer) Acknowledge(bufferID string, sequence int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Acked[bufferID] = sequence
}

func (b *OutputBuffer) Destroy(bufferID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Destroyed = append(b.Destroyed, bufferID)
}

func (b *OutputBuffer) DestroyAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DestroyAllN++
	return b.DestroyErr
}

func (b *OutputBuffer) Abort() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.AbortN++
	return b.AbortErr
}

func (b *OutputBuffer) Info() task.OutputBufferInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return task.OutputBufferInfo{}
}

func (b *OutputBuffer) IsOverutilized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Overutilized
}

// FailedTaskCounter is a fake task.FailedTaskCounter.
type FailedTaskCounter struct {
	mu    sync.Mutex
	count int
}

func (c *FailedTaskCounter) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

func (c *FailedTaskCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
