package task

import lru "github.com/hashicorp/golang-lru/v2"

// FinalizedCache is a small bounded memo of recently finalized TaskInfo
// snapshots, keyed by task id string. A task's Coordinator is usually
// dropped by its owner shortly after on_done fires; this cache lets a
// worker process keep answering a handful of trailing, late long-poll
// requests for tasks whose Coordinator has already been released, without
// holding every terminal task in memory forever. It is safe to share one
// instance across every Coordinator in a process.
type FinalizedCache struct {
	cache *lru.Cache[string, TaskInfo]
}

// NewFinalizedCache builds a cache bounded to size entries.
func NewFinalizedCache(size int) (*FinalizedCache, error) {
	c, err := lru.New[string, TaskInfo](size)
	if err != nil {
		return nil, err
	}
	return &FinalizedCache{cache: c}, nil
}

// Put records info under its own task id. Called once, from terminal
// cleanup.
func (fc *FinalizedCache) Put(info TaskInfo) {
	if fc == nil {
		return
	}
	fc.cache.Add(info.ID.String(), info)
}

// Get returns the cached info for id, if any.
func (fc *FinalizedCache) Get(id ID) (TaskInfo, bool) {
	if fc == nil {
		return TaskInfo{}, false
	}
	return fc.cache.Get(id.String())
}
