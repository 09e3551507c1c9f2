package task

import "sync"

// StartingVersion is the first externally observable version of any task,
// chosen to be strictly greater than zero so that a zero caller's-version
// can never be mistaken for "already seen everything".
const StartingVersion int64 = 1

// VersionBeacon is a monotonically increasing counter paired with a
// replaceable one-shot completion channel. Every NotifyStatusChanged both
// bumps the counter and closes the current channel, installing a fresh one
// under the same critical section so a waiter that snapshots (version, ch)
// atomically can never miss a concurrent notification.
type VersionBeacon struct {
	mu      sync.Mutex
	version int64
	ch      chan struct{}
}

// NewVersionBeacon creates a beacon starting at StartingVersion.
func NewVersionBeacon() *VersionBeacon {
	return &VersionBeacon{
		version: StartingVersion,
		ch:      make(chan struct{}),
	}
}

// Version returns the current version.
func (vb *VersionBeacon) Version() int64 {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.version
}

// Snapshot atomically returns the current version and the channel that will
// be closed on the next change. A caller holding callerVersion >= the
// returned version is guaranteed to be woken by a read from the returned
// channel on the next NotifyStatusChanged.
func (vb *VersionBeacon) Snapshot() (int64, <-chan struct{}) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.version, vb.ch
}

// NotifyStatusChanged increments the version and completes the current
// change handle, atomically installing a fresh one for subsequent waiters.
// Returns the new version.
func (vb *VersionBeacon) NotifyStatusChanged() int64 {
	vb.mu.Lock()
	defer vb.mu.Unlock()

	vb.version++
	closed := vb.ch
	vb.ch = make(chan struct{})
	close(closed)
	return vb.version
}
