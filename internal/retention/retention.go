// Package retention runs the periodic history sweep: once immediately at
// startup and then on a fixed schedule, independent of the on-demand sweep
// the store performs when the retention window changes.
package retention

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the store-side surface the scheduler drives. id 0 means all
// tanks.
type Sweeper interface {
	Sweep(id int) int
}

// Scheduler triggers retention sweeps on an interval (default 24h).
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	cron     *cron.Cron
}

// New creates a Scheduler. An interval <= 0 falls back to 24h.
func New(sweeper Sweeper, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start runs one sweep immediately, then schedules the periodic sweep.
// The background job stops with Stop or process exit and never blocks
// shutdown.
func (s *Scheduler) Start() error {
	s.sweeper.Sweep(0)

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		removed := s.sweeper.Sweep(0)
		log.Printf("retention: scheduled sweep removed %d points", removed)
	}); err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}

	s.cron.Start()
	log.Printf("retention: sweep scheduled every %v", s.interval)
	return nil
}

// Stop cancels the periodic sweep. A sweep already running completes.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
