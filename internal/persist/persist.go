// Package persist writes store snapshots to disk and reads them back at
// startup. Writes are asynchronous and best-effort: in-memory state is
// authoritative, a failed write is logged and never surfaces to the caller.
package persist

import "github.com/sweeney/tank-monitor/internal/store"

// Gateway persists and restores store snapshots.
type Gateway interface {
	// Write queues a snapshot for persistence and returns immediately.
	Write(snap store.Snapshot)

	// Load reads the most recent snapshot. A missing snapshot is not an
	// error; the returned snapshot is empty in that case.
	Load() (store.Snapshot, error)

	// Close flushes any queued write and releases resources.
	Close()
}
