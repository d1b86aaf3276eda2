package persist

import (
	"sync"

	"github.com/sweeney/tank-monitor/internal/store"
)

// FakeGateway records writes for test assertions.
type FakeGateway struct {
	mu sync.Mutex

	// Snapshots contains every snapshot passed to Write, in order.
	Snapshots []store.Snapshot

	// LoadSnapshot and LoadError are returned by Load.
	LoadSnapshot store.Snapshot
	LoadError    error

	Closed bool
}

// NewFakeGateway creates a FakeGateway for testing.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

// Write records the snapshot.
func (f *FakeGateway) Write(snap store.Snapshot) {
	f.mu.Lock()
	f.Snapshots = append(f.Snapshots, snap)
	f.mu.Unlock()
}

// Load returns the configured snapshot and error.
func (f *FakeGateway) Load() (store.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.LoadSnapshot, f.LoadError
}

// Close marks the gateway closed.
func (f *FakeGateway) Close() {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
}

// WriteCount returns the number of recorded writes.
func (f *FakeGateway) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Snapshots)
}

// LastSnapshot returns the most recent write, if any.
func (f *FakeGateway) LastSnapshot() (store.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Snapshots) == 0 {
		return store.Snapshot{}, false
	}
	return f.Snapshots[len(f.Snapshots)-1], true
}
