package task

import "sync/atomic"

// HolderShape is the discriminant of the task holder's three possible
// shapes.
type HolderShape int

const (
	HolderEmpty HolderShape = iota
	HolderLive
	HolderFinal
)

// FinalSnapshot is the frozen terminal-state view captured exactly once,
// the moment the holder transitions to Final.
type FinalSnapshot struct {
	Info    TaskInfo
	Stats   IoStats
	Domains VersionedDomains
}

type holderState struct {
	shape HolderShape
	exec  Execution
	final *FinalSnapshot
}

// Holder is the single atomic reference described in spec.md §4.3. Exactly
// one swap moves it Empty -> Live, and exactly one swap moves it
// Empty-or-Live -> Final; every other transition is a silent no-op.
type Holder struct {
	ptr atomic.Pointer[holderState]
}

// NewHolder returns a holder in the Empty shape.
func NewHolder() *Holder {
	h := &Holder{}
	h.ptr.Store(&holderState{shape: HolderEmpty})
	return h
}

// Shape returns the holder's current discriminant.
func (h *Holder) Shape() HolderShape {
	return h.ptr.Load().shape
}

// Live returns the installed execution and true if the holder is currently
// Live.
func (h *Holder) Live() (Execution, bool) {
	s := h.ptr.Load()
	if s.shape != HolderLive {
		return nil, false
	}
	return s.exec, true
}

// Final returns the frozen snapshot and true if the holder is currently
// Final.
func (h *Holder) Final() (*FinalSnapshot, bool) {
	s := h.ptr.Load()
	if s.shape != HolderFinal {
		return nil, false
	}
	return s.final, true
}

// SetLive installs exec, moving Empty -> Live. Returns false (a silent
// no-op) if the holder is not Empty, which includes the case where it has
// already reached Final.
func (h *Holder) SetLive(exec Execution) bool {
	old := h.ptr.Load()
	if old.shape != HolderEmpty {
		return false
	}
	return h.ptr.CompareAndSwap(old, &holderState{shape: HolderLive, exec: exec})
}

// FinalizeOnce CAS-loops the holder from Empty-or-Live to Final, building
// the snapshot to install via build(). It returns false without calling
// build if the holder is already Final — another caller finalized first.
// It is the only way the holder ever reaches Final, and it only ever
// succeeds once.
func (h *Holder) FinalizeOnce(build func(old *holderState) FinalSnapshot) (FinalSnapshot, bool) {
	for {
		old := h.ptr.Load()
		if old.shape == HolderFinal {
			return FinalSnapshot{}, false
		}
		snapshot := build(old)
		next := &holderState{shape: HolderFinal, final: &snapshot}
		if h.ptr.CompareAndSwap(old, next) {
			return snapshot, true
		}
		// Lost the race to a concurrent Live install or another
		// finalizer; retry against the fresh value.
	}
}

// NeedsPlan is true iff the holder is currently Empty (spec.md §3 invariant
// 5).
func (h *Holder) NeedsPlan() bool {
	return h.Shape() == HolderEmpty
}
