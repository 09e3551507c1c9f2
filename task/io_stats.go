package task

// IoStats aggregates the byte/row/memory counters exposed by TaskStatus.
// Exactly which source backs it depends on the holder's shape: Final reads
// a frozen snapshot, Live sums over the execution's live pipelines, Empty
// is all zeros (spec.md §4.6).
type IoStats struct {
	PhysicalWrittenBytes int64

	QueuedDrivers                  int
	QueuedPartitionedSplitsWeight  int64
	RunningDrivers                 int
	RunningPartitionedSplitsWeight int64

	UserMemoryReservation      int64
	PeakUserMemoryReservation  int64
	RevocableMemoryReservation int64

	FullGCCount      int64
	FullGCTimeMillis int64

	DynamicFilterVersion int64
}

// computeIoStats implements the live-vs-final projection of spec.md §4.6.
// dynamicFilterVersion is only consulted in the Live case; the Final case
// always returns the version frozen at terminal time.
func computeIoStats(h *Holder, dynamicFilterVersion int64) IoStats {
	if final, ok := h.Final(); ok {
		return final.Stats
	}

	exec, ok := h.Live()
	if !ok {
		return IoStats{}
	}

	stats := IoStats{DynamicFilterVersion: dynamicFilterVersion}
	for _, p := range exec.TaskContext().PipelineStatuses() {
		stats.QueuedDrivers += p.QueuedDrivers
		stats.QueuedPartitionedSplitsWeight += p.QueuedPartitionedSplitsWeight
		stats.RunningDrivers += p.RunningDrivers
		stats.RunningPartitionedSplitsWeight += p.RunningPartitionedSplitsWeight
		stats.PhysicalWrittenBytes += p.PhysicalWrittenDataSize
	}

	user, peak, revocable := exec.TaskContext().MemoryReservation()
	stats.UserMemoryReservation = user
	stats.PeakUserMemoryReservation = peak
	stats.RevocableMemoryReservation = revocable

	gcCount, gcTime := exec.TaskContext().FullGCStats()
	stats.FullGCCount = gcCount
	stats.FullGCTimeMillis = gcTime

	return stats
}
