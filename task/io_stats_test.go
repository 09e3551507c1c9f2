package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeIoStats_Empty(t *testing.T) {
	h := NewHolder()
	require.Equal(t, IoStats{}, computeIoStats(h, 0))
}

func TestComputeIoStats_Live(t *testing.T) {
	h := NewHolder()
	exec := &statsStubExecution{
		pipelines: []PipelineStatus{
			{QueuedDrivers: 1, RunningDrivers: 2, PhysicalWrittenDataSize: 100},
			{QueuedDrivers: 3, RunningDrivers: 0, PhysicalWrittenDataSize: 50},
		},
		memUser: 10, memPeak: 20, memRevocable: 5,
		gcCount: 2, gcTime: 40,
	}
	require.True(t, h.SetLive(exec))

	stats := computeIoStats(h, 7)
	require.Equal(t, 4, stats.QueuedDrivers)
	require.Equal(t, 2, stats.RunningDrivers)
	require.Equal(t, int64(150), stats.PhysicalWrittenBytes)
	require.Equal(t, int64(10), stats.UserMemoryReservation)
	require.Equal(t, int64(20), stats.PeakUserMemoryReservation)
	require.Equal(t, int64(5), stats.RevocableMemoryReservation)
	require.Equal(t, int64(2), stats.FullGCCount)
	require.Equal(t, int64(40), stats.FullGCTimeMillis)
	require.Equal(t, int64(7), stats.DynamicFilterVersion)
}

func TestComputeIoStats_FinalReturnsFrozenStats(t *testing.T) {
	h := NewHolder()
	frozen := IoStats{PhysicalWrittenBytes: 999}
	h.FinalizeOnce(func(old *holderState) FinalSnapshot {
		return FinalSnapshot{Stats: frozen}
	})

	// Requesting a different dynamic filter version must not affect the
	// frozen result: a terminal task's stats never change again.
	require.Equal(t, frozen, computeIoStats(h, 12345))
}

type statsStubExecution struct {
	stubExecution
	pipelines                       []PipelineStatus
	memUser, memPeak, memRevocable  int64
	gcCount, gcTime                 int64
}

func (e *statsStubExecution) TaskContext() TaskContext { return (*statsTaskContext)(e) }

type statsTaskContext statsStubExecution

func (c *statsTaskContext) MemoryReservation() (user, peak, revocable int64) {
	return c.memUser, c.memPeak, c.memRevocable
}
func (c *statsTaskContext) FullGCStats() (count int64, timeMillis int64) {
	return c.gcCount, c.gcTime
}
func (c *statsTaskContext) PipelineStatuses() []PipelineStatus { return c.pipelines }
