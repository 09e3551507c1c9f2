package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalizedCache_PutGet(t *testing.T) {
	fc, err := NewFinalizedCache(2)
	require.NoError(t, err)

	id, err := NewID("q1", "stage-0", 0, 0)
	require.NoError(t, err)

	info := TaskInfo{ID: id, State: Finished}
	fc.Put(info)

	got, ok := fc.Get(id)
	require.True(t, ok)
	require.Equal(t, info, got)
}

func TestFinalizedCache_EvictsOldestBeyondSize(t *testing.T) {
	fc, err := NewFinalizedCache(1)
	require.NoError(t, err)

	idA, _ := NewID("q1", "stage-0", 0, 0)
	idB, _ := NewID("q1", "stage-1", 0, 0)

	fc.Put(TaskInfo{ID: idA, State: Finished})
	fc.Put(TaskInfo{ID: idB, State: Finished})

	_, ok := fc.Get(idA)
	require.False(t, ok, "capacity-1 cache must evict the older entry")

	_, ok = fc.Get(idB)
	require.True(t, ok)
}

func TestFinalizedCache_NilCacheIsANoop(t *testing.T) {
	var fc *FinalizedCache
	id, _ := NewID("q1", "stage-0", 0, 0)

	require.NotPanics(t, func() { fc.Put(TaskInfo{ID: id}) })
	_, ok := fc.Get(id)
	require.False(t, ok)
}
