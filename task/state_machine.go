package task

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Notifier runs listener dispatch work on a shared, externally-owned
// executor. The state machine never spins up its own worker pool; it only
// ever calls Go once per registered listener, to start that listener's
// ordered dispatch loop.
type Notifier func(fn func())

// StateChangeListener observes every state the machine enters, including a
// synthetic replay of the state current at registration time.
type StateChangeListener func(State)

// SourceTaskFailureListener observes the accumulated failure causes whenever
// Failed is invoked.
type SourceTaskFailureListener func(causes []error)

// listenerQueue gives a single registered listener an ordered, unbounded
// mailbox so that, even though dispatch runs on a shared executor and
// listeners may be interleaved with one another, any individual listener
// always observes its own events in the order they were appended.
type listenerQueue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

func newListenerQueue[T any]() *listenerQueue[T] {
	q := &listenerQueue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *listenerQueue[T]) push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *listenerQueue[T]) closeQueue() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

// run drains the queue in FIFO order, invoking fn for each item, until the
// queue is closed and drained. It is meant to be started once, via Notifier.
func (q *listenerQueue[T]) run(fn func(T)) {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		batch := q.items
		q.items = nil
		q.mu.Unlock()

		for _, item := range batch {
			fn(item)
		}
	}
}

// StateMachine is the authoritative owner of a task's lifecycle state. All
// transitions are serialized under a single mutex; terminal states are
// sticky. Do not register listeners from within the owner's constructor —
// registration must happen in a post-construction step, since a listener
// may fire before the constructor returns if it races a concurrent
// transition.
type StateMachine struct {
	logger hclog.Logger

	mu          sync.Mutex
	state       State
	createdTime time.Time
	causes      []error

	notifier Notifier

	stateListeners   []*listenerQueue[State]
	failureListeners []*listenerQueue[[]error]
}

// NewStateMachine constructs a machine in the Planned state. notifier is
// used to launch each listener's dispatch loop; pass nil to default to
// `go fn()`.
func NewStateMachine(logger hclog.Logger, notifier Notifier) *StateMachine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if notifier == nil {
		notifier = func(fn func()) { go fn() }
	}
	return &StateMachine{
		logger:      logger.Named("state_machine"),
		state:       Planned,
		createdTime: time.Now(),
		notifier:    notifier,
	}
}

// State returns the current state. Reads are linearizable with respect to
// other transitions.
func (sm *StateMachine) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// CreatedTime returns the timestamp the machine was constructed.
func (sm *StateMachine) CreatedTime() time.Time {
	return sm.createdTime
}

// FailureCauses returns a copy of the accumulated failure causes, oldest
// first. The first cause is semantically authoritative; all are retained
// for reporting.
func (sm *StateMachine) FailureCauses() []error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]error, len(sm.causes))
	copy(out, sm.causes)
	return out
}

// TransitionToRunning moves Planned -> Running. No-op otherwise. Returns
// whether the transition actually happened.
func (sm *StateMachine) TransitionToRunning() bool {
	return sm.transition(Planned, Running)
}

// TransitionToFlushing moves Running -> Flushing. No-op otherwise. Returns
// whether the transition actually happened.
func (sm *StateMachine) TransitionToFlushing() bool {
	return sm.transition(Running, Flushing)
}

// TransitionToFinished moves Flushing -> Finished. No-op otherwise. Returns
// whether the transition actually happened.
func (sm *StateMachine) TransitionToFinished() bool {
	return sm.transition(Flushing, Finished)
}

// Cancel moves any non-terminal state to Canceled. No-op if already
// terminal. Returns whether the transition actually happened.
func (sm *StateMachine) Cancel() bool {
	return sm.transitionToTerminal(Canceled)
}

// Abort moves any non-terminal state to Aborted. No-op if already terminal.
// Returns whether the transition actually happened.
func (sm *StateMachine) Abort() bool {
	return sm.transitionToTerminal(Aborted)
}

// Failed always appends cause to the failure cause list. If the task is not
// already terminal, it additionally transitions to Failed. If the task is
// already in a different terminal state, the state is left unchanged (per
// the open question in the design notes: the cause is still recorded).
func (sm *StateMachine) Failed(cause error) {
	if cause == nil {
		cause = errUnknownFailureCause
	}

	sm.mu.Lock()
	sm.causes = append(sm.causes, cause)
	prior := sm.state
	moved := false
	if !sm.state.Terminal() {
		sm.state = Failed
		moved = true
	}
	newState := sm.state
	listeners := sm.snapshotStateListeners()
	failureListeners := sm.snapshotFailureListeners()
	causesCopy := make([]error, len(sm.causes))
	copy(causesCopy, sm.causes)
	sm.mu.Unlock()

	sm.logger.Debug("failure cause recorded", "prior_state", prior, "state", newState, "cause", cause)

	if moved {
		sm.broadcastState(listeners, newState)
	}
	sm.broadcastFailure(failureListeners, causesCopy)
}

var errUnknownFailureCause = errUnknownCause{}

type errUnknownCause struct{}

func (errUnknownCause) Error() string { return "unknown failure cause" }

func (sm *StateMachine) transition(from, to State) bool {
	sm.mu.Lock()
	if sm.state != from {
		sm.mu.Unlock()
		return false
	}
	sm.state = to
	listeners := sm.snapshotStateListeners()
	sm.mu.Unlock()

	sm.logger.Debug("state transition", "from", from, "to", to)
	sm.broadcastState(listeners, to)
	return true
}

func (sm *StateMachine) transitionToTerminal(to State) bool {
	sm.mu.Lock()
	if sm.state.Terminal() {
		sm.mu.Unlock()
		return false
	}
	from := sm.state
	sm.state = to
	listeners := sm.snapshotStateListeners()
	sm.mu.Unlock()

	sm.logger.Debug("state transition", "from", from, "to", to)
	sm.broadcastState(listeners, to)
	return true
}

func (sm *StateMachine) snapshotStateListeners() []*listenerQueue[State] {
	out := make([]*listenerQueue[State], len(sm.stateListeners))
	copy(out, sm.stateListeners)
	return out
}

func (sm *StateMachine) snapshotFailureListeners() []*listenerQueue[[]error] {
	out := make([]*listenerQueue[[]error], len(sm.failureListeners))
	copy(out, sm.failureListeners)
	return out
}

func (sm *StateMachine) broadcastState(listeners []*listenerQueue[State], s State) {
	for _, q := range listeners {
		q.push(s)
	}
}

func (sm *StateMachine) broadcastFailure(listeners []*listenerQueue[[]error], causes []error) {
	for _, q := range listeners {
		q.push(causes)
	}
}

// AddStateChangeListener registers fn to be invoked, asynchronously on the
// notification executor, for every subsequent state transition. It is also
// invoked once immediately with the current state, so callers need not race
// registration against a concurrent transition.
func (sm *StateMachine) AddStateChangeListener(fn StateChangeListener) {
	q := newListenerQueue[State]()

	sm.mu.Lock()
	sm.stateListeners = append(sm.stateListeners, q)
	current := sm.state
	sm.mu.Unlock()

	q.push(current)
	sm.notifier(func() { q.run(fn) })
}

// AddSourceTaskFailureListener registers fn to be invoked, asynchronously on
// the notification executor, every time Failed records a new cause.
func (sm *StateMachine) AddSourceTaskFailureListener(fn SourceTaskFailureListener) {
	q := newListenerQueue[[]error]()

	sm.mu.Lock()
	sm.failureListeners = append(sm.failureListeners, q)
	sm.mu.Unlock()

	sm.notifier(func() { q.run(fn) })
}

// closeListeners stops all listener dispatch loops, allowing their closures
// (which may retain a back-reference to the owning coordinator) to be
// garbage collected. Called once from the coordinator's terminal cleanup.
func (sm *StateMachine) closeListeners() {
	sm.mu.Lock()
	stateListeners := sm.snapshotStateListeners()
	failureListeners := sm.snapshotFailureListeners()
	sm.stateListeners = nil
	sm.failureListeners = nil
	sm.mu.Unlock()

	for _, q := range stateListeners {
		q.closeQueue()
	}
	for _, q := range failureListeners {
		q.closeQueue()
	}
}
