package state

import "sync"

// FakeSink records pushed snapshots for test assertions.
// Safe for concurrent use.
type FakeSink struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

// NewFakeSink creates a FakeSink.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// Push records the snapshot.
func (f *FakeSink) Push(s Snapshot) {
	f.mu.Lock()
	f.snapshots = append(f.snapshots, s)
	f.mu.Unlock()
}

// Snapshots returns a copy of all pushed snapshots.
func (f *FakeSink) Snapshots() []Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Snapshot(nil), f.snapshots...)
}

// Len returns the number of pushed snapshots.
func (f *FakeSink) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}
