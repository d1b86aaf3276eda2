package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/tank-monitor/internal/store"
)

func fp(v float64) *float64 {
	return &v
}

func testSnapshot() store.Snapshot {
	return store.Snapshot{
		Entities: map[int]store.Tank{
			1: {ID: 1, Name: "Tank 1", Temperature: fp(150), Height: 8.0},
		},
		History: map[int][]store.HistoryPoint{
			1: {{Timestamp: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), Temperature: fp(150), Status: store.StatusNormal}},
		},
		StorageDays: 7,
		Timestamp:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g, err := NewFileGateway(dir, "history.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g.Write(testSnapshot())
	g.Close() // flushes the queued write

	loaded, err := g.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tank, ok := loaded.Entities[1]
	if !ok {
		t.Fatal("tank 1 missing from loaded snapshot")
	}
	if tank.Temperature == nil || *tank.Temperature != 150 {
		t.Errorf("unexpected temperature: %v", tank.Temperature)
	}
	if loaded.StorageDays != 7 {
		t.Errorf("expected storage days 7, got %d", loaded.StorageDays)
	}
	if len(loaded.History[1]) != 1 {
		t.Errorf("expected 1 history point, got %d", len(loaded.History[1]))
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	g, err := NewFileGateway(t.TempDir(), "missing.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer g.Close()

	snap, err := g.Load()
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(snap.Entities) != 0 || len(snap.History) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "history.json"), []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	g, err := NewFileGateway(dir, "history.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer g.Close()

	if _, err := g.Load(); err == nil {
		t.Error("expected decode error for corrupt file")
	}
}

func TestWriteCoalescesToNewest(t *testing.T) {
	dir := t.TempDir()
	g, err := NewFileGateway(dir, "history.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A burst of writes; intermediate snapshots may be superseded but the
	// newest one always lands.
	for days := 1; days <= 20; days++ {
		snap := testSnapshot()
		snap.StorageDays = days
		g.Write(snap)
	}
	g.Close()

	loaded, err := g.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.StorageDays != 20 {
		t.Errorf("expected newest snapshot on disk, got storage days %d", loaded.StorageDays)
	}
}

func TestWriteAfterCloseIsIgnored(t *testing.T) {
	g, err := NewFileGateway(t.TempDir(), "history.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g.Close()

	// Must not panic on the closed queue.
	g.Write(testSnapshot())
	g.Close()
}

func TestCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	g, err := NewFileGateway(dir, "history.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer g.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("data dir should exist: %v", err)
	}
}

func TestNoPartialFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	g, err := NewFileGateway(dir, "history.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g.Write(testSnapshot())
	g.Close()

	if _, err := os.Stat(filepath.Join(dir, "history.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away")
	}
}

func TestFakeGateway(t *testing.T) {
	f := NewFakeGateway()

	if _, ok := f.LastSnapshot(); ok {
		t.Error("no snapshot expected before writes")
	}

	f.Write(testSnapshot())
	snap := testSnapshot()
	snap.StorageDays = 14
	f.Write(snap)

	if f.WriteCount() != 2 {
		t.Errorf("expected 2 writes, got %d", f.WriteCount())
	}
	last, ok := f.LastSnapshot()
	if !ok {
		t.Fatal("expected a last snapshot")
	}
	if last.StorageDays != 14 {
		t.Errorf("expected newest write, got storage days %d", last.StorageDays)
	}

	f.Close()
	if !f.Closed {
		t.Error("gateway should report closed")
	}
}

var _ Gateway = (*FileGateway)(nil)
var _ Gateway = (*FakeGateway)(nil)
