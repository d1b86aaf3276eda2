package retention

import (
	"sync"
	"testing"
	"time"
)

// countingSweeper records sweep calls.
type countingSweeper struct {
	mu    sync.Mutex
	calls []int
}

func (c *countingSweeper) Sweep(id int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, id)
	return 0
}

func (c *countingSweeper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestStartSweepsImmediately(t *testing.T) {
	sweeper := &countingSweeper{}
	s := New(sweeper, time.Hour)

	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	if sweeper.count() != 1 {
		t.Errorf("expected 1 immediate sweep, got %d", sweeper.count())
	}
	if sweeper.calls[0] != 0 {
		t.Errorf("immediate sweep should cover all tanks, got id %d", sweeper.calls[0])
	}
}

func TestPeriodicSweeps(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for scheduler ticks")
	}

	// The scheduler's minimum tick granularity is one second.
	sweeper := &countingSweeper{}
	s := New(sweeper, time.Second)

	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	deadline := time.After(5 * time.Second)
	for sweeper.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected a periodic sweep after the immediate one, got %d", sweeper.count())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestStopHaltsSweeps(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for scheduler ticks")
	}

	sweeper := &countingSweeper{}
	s := New(sweeper, time.Second)

	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Stop()

	before := sweeper.count()
	time.Sleep(1500 * time.Millisecond)
	if got := sweeper.count(); got != before {
		t.Errorf("sweeps continued after stop: %d -> %d", before, got)
	}
}

func TestDefaultInterval(t *testing.T) {
	s := New(&countingSweeper{}, 0)
	if s.interval != 24*time.Hour {
		t.Errorf("expected 24h default, got %v", s.interval)
	}

	s = New(&countingSweeper{}, -time.Hour)
	if s.interval != 24*time.Hour {
		t.Errorf("expected 24h default for negative interval, got %v", s.interval)
	}
}
