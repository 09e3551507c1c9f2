package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-multierror"
)

// Coordinator is the public entry point described in spec.md §4.4: it owns
// the state machine, version beacon, holder, and heartbeat for a single
// task, and brokers every operation the RPC/HTTP layer needs against them.
// Every method is safe to call concurrently from any goroutine.
type Coordinator struct {
	cfg    CoordinatorConfig
	logger hclog.Logger

	// mu serializes installExecution's resolve-or-install decision (spec.md
	// §4.4 step 3): whether to reuse a Live execution, install a new one,
	// or treat the holder as already Final. It is held across the call
	// into ExecutionFactory.New, by design — construction itself happens
	// under the lock so two concurrent Update calls can never both install
	// an execution for the same task.
	mu sync.Mutex

	sm     *StateMachine
	beacon *VersionBeacon
	holder *Holder
	dfView *DynamicFilterView
	buffer OutputBuffer

	traceTokenMu sync.Mutex
	traceToken   string

	heartbeatMu   sync.Mutex
	lastHeartbeat time.Time

	terminateOnce sync.Once

	baseLabels []metrics.Label
}

// NewCoordinator constructs a coordinator in the Planned state with an
// Empty holder, at version StartingVersion. Listener registration happens
// in a trailing initialize step, after every field below is assigned, so
// that a listener firing immediately can never observe a half-built
// Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("task_coordinator").With("task_id", cfg.ID.String())

	c := &Coordinator{
		cfg:           cfg,
		logger:        logger,
		sm:            NewStateMachine(logger, cfg.Notifier),
		beacon:        NewVersionBeacon(),
		holder:        NewHolder(),
		lastHeartbeat: time.Now(),
		baseLabels: []metrics.Label{
			{Name: "node_id", Value: cfg.NodeID},
			{Name: "query", Value: cfg.ID.Query},
			{Name: "stage", Value: cfg.ID.Stage},
		},
	}
	c.dfView = NewDynamicFilterView(c.holder)
	c.buffer = cfg.NewOutputBuffer(cfg.BufferLimits)

	c.initialize()
	return c
}

// initialize registers the terminal-state listener. It runs once, as the
// last step of NewCoordinator — every field it closes over is already
// populated by the time it is called.
func (c *Coordinator) initialize() {
	c.sm.AddStateChangeListener(func(s State) {
		if s.Terminal() {
			c.terminate(s)
		}
	})
}

// ID returns the task identifier.
func (c *Coordinator) ID() ID { return c.cfg.ID }

// Status returns a point-in-time TaskStatus snapshot. Never fails.
func (c *Coordinator) Status() TaskStatus {
	// Sample the version before reading values, so a concurrent change
	// that bumps the version after this read is picked up by the next
	// poll rather than silently lost (spec.md §4.6).
	version, _ := c.beacon.Snapshot()
	return c.buildStatus(version)
}

// Info returns a point-in-time TaskInfo snapshot. Never fails.
func (c *Coordinator) Info() TaskInfo {
	version, _ := c.beacon.Snapshot()
	return c.buildInfo(version)
}

func (c *Coordinator) buildStatus(version int64) TaskStatus {
	if final, ok := c.holder.Final(); ok {
		return TaskStatus{
			ID:            final.Info.ID,
			State:         final.Info.State,
			Version:       final.Info.Version,
			Self:          final.Info.Self,
			LastHeartbeat: final.Info.LastHeartbeat,
			Stats:         final.Stats,
		}
	}
	return TaskStatus{
		ID:            c.cfg.ID,
		State:         c.sm.State(),
		Version:       version,
		Self:          c.cfg.Location,
		LastHeartbeat: c.Heartbeat(),
		Stats:         computeIoStats(c.holder, c.dfView.CurrentVersion()),
	}
}

func (c *Coordinator) buildInfo(version int64) TaskInfo {
	if final, ok := c.holder.Final(); ok {
		return final.Info
	}

	var noMoreSplits []string
	if exec, ok := c.holder.Live(); ok {
		noMoreSplits = exec.NoMoreSplits().Slice()
	}

	return TaskInfo{
		ID:            c.cfg.ID,
		State:         c.sm.State(),
		Version:       version,
		Self:          c.cfg.Location,
		LastHeartbeat: c.Heartbeat(),
		CreatedTime:   c.sm.CreatedTime(),
		FailureCauses: c.sm.FailureCauses(),
		NoMoreSplits:  noMoreSplits,
		NeedsPlan:     c.holder.NeedsPlan(),
		TraceToken:    c.TraceToken(),
		Stats:         computeIoStats(c.holder, c.dfView.CurrentVersion()),
	}
}

// TraceToken returns the trace token recorded for this task, if any.
func (c *Coordinator) TraceToken() string {
	c.traceTokenMu.Lock()
	defer c.traceTokenMu.Unlock()
	return c.traceToken
}

func (c *Coordinator) recordTraceToken(token string) {
	if token == "" {
		return
	}
	c.traceTokenMu.Lock()
	defer c.traceTokenMu.Unlock()
	if c.traceToken == "" {
		c.traceToken = token
	}
}

// Heartbeat returns the last recorded heartbeat timestamp.
func (c *Coordinator) Heartbeat() time.Time {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	return c.lastHeartbeat
}

// RecordHeartbeat updates the liveness timestamp. Per the open question in
// spec.md §9, this deliberately does not bump the version counter — doing
// so would turn every supervisor heartbeat into a long-poll wakeup storm.
func (c *Coordinator) RecordHeartbeat() {
	c.heartbeatMu.Lock()
	prev := c.lastHeartbeat
	c.lastHeartbeat = time.Now()
	gap := c.lastHeartbeat.Sub(prev)
	c.heartbeatMu.Unlock()

	metrics.AddSampleWithLabels([]string{"quarry", "task", "heartbeat_gap_ms"}, float32(gap.Milliseconds()), c.baseLabels)
}

// AwaitStatus blocks until a version newer than callerVersion is observed,
// the holder is already Final, or ctx is done — whichever comes first.
func (c *Coordinator) AwaitStatus(ctx context.Context, callerVersion int64) (TaskStatus, error) {
	version, err := c.awaitVersion(ctx, callerVersion)
	if err != nil {
		return TaskStatus{}, err
	}
	return c.buildStatus(version), nil
}

// AwaitInfo behaves like AwaitStatus but returns the full TaskInfo.
func (c *Coordinator) AwaitInfo(ctx context.Context, callerVersion int64) (TaskInfo, error) {
	version, err := c.awaitVersion(ctx, callerVersion)
	if err != nil {
		return TaskInfo{}, err
	}
	return c.buildInfo(version), nil
}

// awaitVersion implements the wait rule common to AwaitStatus/AwaitInfo:
// return immediately if the caller is already behind or the task is
// terminal; otherwise register on the beacon's current change handle and
// retry once it fires.
func (c *Coordinator) awaitVersion(ctx context.Context, callerVersion int64) (int64, error) {
	for {
		version, ch := c.beacon.Snapshot()
		if callerVersion < version {
			return version, nil
		}
		if _, ok := c.holder.Final(); ok {
			return version, nil
		}

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// GetResults fetches a page from the output buffer. Buffer-level errors
// pass through unwrapped; only the max_size argument is validated here.
func (c *Coordinator) GetResults(ctx context.Context, bufferID string, startingSequence, maxSize int64) (ResultsPage, error) {
	if maxSize <= 0 {
		return ResultsPage{}, errors.Join(ErrInvalidArgument, errors.New("max_size must be positive"))
	}
	return c.buffer.Get(ctx, bufferID, startingSequence, maxSize)
}

// AcknowledgeResults acknowledges consumption of a results page. Never
// fails.
func (c *Coordinator) AcknowledgeResults(bufferID string, sequence int64) {
	c.buffer.Acknowledge(bufferID, sequence)
}

// DestroyResults signals that a downstream consumer of bufferID is gone.
// Idempotent; never fails.
func (c *Coordinator) DestroyResults(bufferID string) TaskInfo {
	c.buffer.Destroy(bufferID)
	return c.Info()
}

// Cancel transitions the task to Canceled if it is non-terminal.
// Idempotent.
func (c *Coordinator) Cancel() TaskInfo {
	if c.sm.Cancel() {
		c.beacon.NotifyStatusChanged()
	}
	return c.Info()
}

// Abort transitions the task to Aborted if it is non-terminal. Idempotent.
func (c *Coordinator) Abort() TaskInfo {
	if c.sm.Abort() {
		c.beacon.NotifyStatusChanged()
	}
	return c.Info()
}

// Failed always records cause, transitioning to Failed if the task is not
// already terminal. Idempotent (causes always accumulate).
func (c *Coordinator) Failed(cause error) TaskInfo {
	c.sm.Failed(cause)
	c.beacon.NotifyStatusChanged()
	return c.Info()
}

// AcknowledgeDynamicFilters returns the dynamic-filter domains newer than
// callerVersion, and the new high-water version. It returns an error only
// while the task is Live and the execution reports one; that error is
// passed through unchanged.
func (c *Coordinator) AcknowledgeDynamicFilters(callerVersion int64) (VersionedDomains, error) {
	return c.dfView.AcknowledgeAndGetNewDomains(callerVersion)
}

// terminate runs the termination callback described in spec.md §4.4. It is
// registered once, via initialize, and — because StateMachine only ever
// broadcasts a *real* terminal transition once — only ever actually does
// work once; terminateOnce is a second belt-and-suspenders guard against
// any future listener wiring mistake.
func (c *Coordinator) terminate(final State) {
	c.terminateOnce.Do(func() {
		if final == Failed {
			metrics.IncrCounterWithLabels([]string{"quarry", "task", "failed"}, 1, c.baseLabels)
			if c.cfg.FailedTaskCounter != nil {
				c.cfg.FailedTaskCounter.Increment()
			}
		}
		metrics.IncrCounterWithLabels([]string{"quarry", "task", "terminal", final.String()}, 1, c.baseLabels)

		// Mint the terminal version up front so the frozen snapshot and
		// the beacon agree on it, regardless of how many times the CAS
		// loop below retries.
		terminalVersion := c.beacon.NotifyStatusChanged()

		var domainsErr error
		snapshot, installed := c.holder.FinalizeOnce(func(old *holderState) FinalSnapshot {
			fs, err := c.buildFinalSnapshot(old, final, terminalVersion)
			domainsErr = err
			return fs
		})
		if !installed {
			// Another path (in practice, unreachable given terminateOnce,
			// but cheap to keep honest) already finalized this holder.
			c.logger.Debug("holder already finalized, skipping buffer teardown")
			return
		}

		// A waiter that snapshotted terminalVersion before the swap above is
		// still parked on the beacon's current channel. Wake it without
		// bumping the version; it re-checks and now finds the holder Final.
		c.beacon.mu.Lock()
		close(c.beacon.ch)
		c.beacon.ch = make(chan struct{})
		c.beacon.mu.Unlock()

		var bufferErr error
		if final == Failed || final == Aborted {
			bufferErr = c.buffer.Abort()
		} else {
			bufferErr = c.buffer.DestroyAll()
		}

		var cleanupErrs *multierror.Error
		cleanupErrs = multierror.Append(cleanupErrs, domainsErr, bufferErr)
		if err := cleanupErrs.ErrorOrNil(); err != nil {
			c.logger.Warn("terminal cleanup encountered errors", "error", err)
		}

		if c.cfg.FinalizedCache != nil {
			c.cfg.FinalizedCache.Put(snapshot.Info)
		}

		c.invokeOnDone()

		c.sm.closeListeners()
	})
}

func (c *Coordinator) buildFinalSnapshot(old *holderState, final State, version int64) (FinalSnapshot, error) {
	var (
		stats        IoStats
		domains      VersionedDomains
		noMoreSplits []string
		domainsErr   error
	)

	switch old.shape {
	case HolderLive:
		stats = computeIoStats(c.holder, c.dfView.CurrentVersion())
		domains, domainsErr = old.exec.AcknowledgeAndGetNewDynamicFilterDomains(0)
		noMoreSplits = old.exec.NoMoreSplits().Slice()
	case HolderEmpty:
		// zero values: a task that never got a plan fragment has nothing
		// to report.
	}

	info := TaskInfo{
		ID:            c.cfg.ID,
		State:         final,
		Version:       version,
		Self:          c.cfg.Location,
		LastHeartbeat: c.Heartbeat(),
		CreatedTime:   c.sm.CreatedTime(),
		FailureCauses: c.sm.FailureCauses(),
		NoMoreSplits:  noMoreSplits,
		NeedsPlan:     false,
		TraceToken:    c.TraceToken(),
		Stats:         stats,
	}

	return FinalSnapshot{Info: info, Stats: stats, Domains: domains}, domainsErr
}

func (c *Coordinator) invokeOnDone() {
	if c.cfg.OnDone == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("on_done callback panicked", "recover", r)
		}
	}()
	c.cfg.OnDone(c)
}
