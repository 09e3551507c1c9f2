package task

import (
	"sync"
	"testing"

	"github.com/hashicorp/go-set/v3"
	"github.com/stretchr/testify/require"
)

// stubExecution is a minimal in-package Execution fake. It lives here,
// rather than in the tasktest package, because these tests reach into the
// unexported holderState type and so must stay in package task; importing
// tasktest back into package task would be a cycle.
type stubExecution struct{}

func (stubExecution) AddSplitAssignments([]SplitAssignment)         {}
func (stubExecution) AddDynamicFilterDomains([]Domain)              {}
func (stubExecution) TaskContext() TaskContext                      { return nil }
func (stubExecution) NoMoreSplits() *set.Set[string]                { return set.New[string](0) }
func (stubExecution) AcknowledgeAndGetNewDynamicFilterDomains(int64) (VersionedDomains, error) {
	return VersionedDomains{}, nil
}

func TestHolder_StartsEmptyAndNeedsPlan(t *testing.T) {
	h := NewHolder()
	require.Equal(t, HolderEmpty, h.Shape())
	require.True(t, h.NeedsPlan())

	_, ok := h.Live()
	require.False(t, ok)
	_, ok = h.Final()
	require.False(t, ok)
}

func TestHolder_SetLiveThenFinalize(t *testing.T) {
	h := NewHolder()
	exec := stubExecution{}

	require.True(t, h.SetLive(exec))
	require.False(t, h.NeedsPlan())

	got, ok := h.Live()
	require.True(t, ok)
	require.Equal(t, exec, got)

	snapshot, installed := h.FinalizeOnce(func(old *holderState) FinalSnapshot {
		require.Equal(t, HolderLive, old.shape)
		return FinalSnapshot{Info: TaskInfo{State: Finished}}
	})
	require.True(t, installed)
	require.Equal(t, Finished, snapshot.Info.State)

	final, ok := h.Final()
	require.True(t, ok)
	require.Equal(t, Finished, final.Info.State)
}

func TestHolder_SetLiveFailsWhenNotEmpty(t *testing.T) {
	h := NewHolder()
	require.True(t, h.SetLive(stubExecution{}))
	require.False(t, h.SetLive(stubExecution{}), "a second install must be a no-op")
}

func TestHolder_FinalizeOnceIsIdempotent(t *testing.T) {
	h := NewHolder()
	calls := 0

	_, installed := h.FinalizeOnce(func(old *holderState) FinalSnapshot {
		calls++
		return FinalSnapshot{Info: TaskInfo{State: Canceled}}
	})
	require.True(t, installed)

	_, installed = h.FinalizeOnce(func(old *holderState) FinalSnapshot {
		calls++
		return FinalSnapshot{Info: TaskInfo{State: Failed}}
	})
	require.False(t, installed, "finalizing an already-Final holder must be a no-op")
	require.Equal(t, 1, calls, "build must never run once the holder is Final")

	final, _ := h.Final()
	require.Equal(t, Canceled, final.Info.State, "the first finalize wins")
}

func TestHolder_SetLiveRacingFinalizeOnce_AlwaysEndsFinal(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := NewHolder()
		var wg sync.WaitGroup
		wg.Add(2)

		var setLiveOK bool
		go func() {
			defer wg.Done()
			setLiveOK = h.SetLive(stubExecution{})
		}()
		go func() {
			defer wg.Done()
			h.FinalizeOnce(func(old *holderState) FinalSnapshot {
				return FinalSnapshot{Info: TaskInfo{State: Aborted}}
			})
		}()
		wg.Wait()

		// Regardless of which goroutine's CAS landed first, the holder
		// always ends up Final: FinalizeOnce retries against a freshly
		// installed Live state rather than failing.
		require.Equal(t, HolderFinal, h.Shape())
		_ = setLiveOK
	}
}
