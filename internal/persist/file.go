package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/sweeney/tank-monitor/internal/store"
)

// FileGateway persists snapshots to a single JSON file. A dedicated writer
// goroutine drains a one-slot queue; when writes arrive faster than the
// disk keeps up, older pending snapshots are superseded by the newest one.
type FileGateway struct {
	path string

	mu      sync.Mutex
	closed  bool
	pending chan store.Snapshot
	done    chan struct{}
}

// NewFileGateway creates the data directory if needed and starts the
// writer.
func NewFileGateway(dir, filename string) (*FileGateway, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}

	g := &FileGateway{
		path:    filepath.Join(dir, filename),
		pending: make(chan store.Snapshot, 1),
		done:    make(chan struct{}),
	}
	go g.writer()
	return g, nil
}

// Write queues the snapshot, replacing any not-yet-written one.
func (g *FileGateway) Write(snap store.Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	for {
		select {
		case g.pending <- snap:
			return
		default:
			// Queue full: drop the stale pending snapshot.
			select {
			case <-g.pending:
			default:
			}
		}
	}
}

// Load reads the snapshot file. A missing file yields an empty snapshot.
func (g *FileGateway) Load() (store.Snapshot, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store.Snapshot{}, nil
		}
		return store.Snapshot{}, fmt.Errorf("read snapshot %s: %w", g.path, err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", g.path, err)
	}
	return snap, nil
}

// Close flushes the queued write, if any, and stops the writer.
func (g *FileGateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.pending)
	g.mu.Unlock()

	<-g.done
}

func (g *FileGateway) writer() {
	defer close(g.done)
	for snap := range g.pending {
		if err := g.writeFile(snap); err != nil {
			log.Printf("persist: snapshot write failed: %v", err)
		}
	}
}

// writeFile writes atomically via temp file + rename so a crash mid-write
// never leaves a truncated snapshot.
func (g *FileGateway) writeFile(snap store.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, g.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
