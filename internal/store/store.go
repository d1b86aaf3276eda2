package store

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"
)

const (
	// maxAlerts bounds the global alert log; oldest entries are dropped.
	maxAlerts = 100

	minHistoryPoints     = 100
	maxHistoryPointsCeil = 100000
)

// ErrUnknownTank is returned for ids outside the configured tank set or for
// tanks that were administratively removed.
var ErrUnknownTank = errors.New("unknown tank")

// ErrInvalidStorageDays is returned when a non-positive retention window is
// requested; the previous configuration is kept.
var ErrInvalidStorageDays = errors.New("storage days must be positive")

// Options configures a Store. Zero fields fall back to defaults.
type Options struct {
	MaxTanks         int
	TankHeight       float64
	HighLimitPct     float64
	StorageDays      int
	MaxHistoryPoints int

	// Now is the clock; defaults to time.Now. Injectable for tests.
	Now func() time.Time

	// Persist, if set, is invoked with a full snapshot after every
	// mutation. It must not block; failures are the gateway's problem.
	Persist func(Snapshot)
}

// Store owns all tank state. One coarse lock serializes every mutation so
// that merge, evaluation, history append and cap enforcement are one atomic
// unit; at this entity count and write rate that is a deliberate choice,
// revisit with sharding only if the tank set grows by orders of magnitude.
type Store struct {
	mu sync.Mutex

	maxTanks         int
	tanks            map[int]*Tank
	history          map[int][]HistoryPoint
	alerts           []AlertRecord
	thresholds       Thresholds
	storageDays      int
	maxHistoryPoints int

	now     func() time.Time
	persist func(Snapshot)
}

// New creates a Store with the fixed tank set 1..MaxTanks. Ingestion only
// ever mutates these tanks; it never creates new ones.
func New(opts Options) *Store {
	if opts.MaxTanks <= 0 {
		opts.MaxTanks = 11
	}
	if opts.TankHeight <= 0 {
		opts.TankHeight = 8.0
	}
	if opts.HighLimitPct <= 0 {
		opts.HighLimitPct = 0.8
	}
	if opts.StorageDays <= 0 {
		opts.StorageDays = 7
	}
	if opts.MaxHistoryPoints <= 0 {
		opts.MaxHistoryPoints = 1000
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		maxTanks:         opts.MaxTanks,
		tanks:            make(map[int]*Tank, opts.MaxTanks),
		history:          make(map[int][]HistoryPoint),
		storageDays:      opts.StorageDays,
		maxHistoryPoints: opts.MaxHistoryPoints,
		thresholds: Thresholds{
			TempHigh:  180,
			TempLow:   120,
			LevelHigh: 90,
			LevelLow:  10,
			ErrorMax:  0.5,
		},
		now:     opts.Now,
		persist: opts.Persist,
	}

	for i := 1; i <= opts.MaxTanks; i++ {
		s.tanks[i] = &Tank{
			ID:        i,
			Name:      fmt.Sprintf("Tank %d", i),
			Height:    opts.TankHeight,
			HighLimit: opts.TankHeight * opts.HighLimitPct,
			Status:    StatusNormal,
		}
	}
	return s
}

// MaxTanks returns the size of the fixed tank set.
func (s *Store) MaxTanks() int {
	return s.maxTanks
}

// Upsert merges the update into the tank record, re-evaluates alerts,
// appends a history point and triggers persistence. The whole sequence is
// atomic with respect to readers.
func (s *Store) Upsert(id int, u Update) (Tank, error) {
	s.mu.Lock()

	t, err := s.tankLocked(id)
	if err != nil {
		s.mu.Unlock()
		return Tank{}, err
	}

	now := s.now()

	if u.Temperature != nil {
		t.Temperature = copyFloat(u.Temperature)
	}
	if u.Level != nil {
		t.Level = copyFloat(u.Level)
	}
	if u.LiquidLevel != nil {
		t.LiquidLevel = copyFloat(u.LiquidLevel)
	}
	if u.Weight != nil {
		t.Weight = copyFloat(u.Weight)
	}
	if u.Pressure != nil {
		t.Pressure = copyFloat(u.Pressure)
	}
	if u.HighLimit != nil {
		t.HighLimit = *u.HighLimit
	}
	if u.Error != nil {
		t.Error = boundError(*u.Error, t.Height)
	}
	t.LastUpdated = now

	t.Status, t.AlertMessage = evaluate(t, s.thresholds)
	if t.Status != StatusNormal {
		s.appendAlertLocked(t, now, t.Status, t.AlertMessage)
	}

	if checkHighLevelAlarm(t) {
		msg := fmt.Sprintf("level %g above high limit %g", *t.Level, t.HighLimit)
		s.appendAlertLocked(t, now, StatusAlert, msg)
		log.Printf("store: alarm raised for %s: %s", t.Name, msg)
	}

	s.appendHistoryLocked(id, HistoryPoint{
		Timestamp:   now,
		Temperature: copyFloat(t.Temperature),
		Level:       copyFloat(t.Level),
		Pressure:    copyFloat(t.Pressure),
		Status:      t.Status,
	}, now)

	result := t.clone()
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	s.firePersist(snap)
	return result, nil
}

// ApplyAdjustments applies a positional error-adjustment list: index i maps
// to tank i+1. Nil entries (malformed message elements) and entries beyond
// the tank set are skipped; tanks beyond the list length keep their previous
// error value. Returns the number of tanks updated.
func (s *Store) ApplyAdjustments(factors []*float64) int {
	s.mu.Lock()

	applied := 0
	for i, f := range factors {
		if f == nil {
			continue
		}
		id := i + 1
		t, ok := s.tanks[id]
		if !ok {
			continue
		}
		t.Error = boundError(*f, t.Height)
		applied++
	}

	snap := s.snapshotLocked(s.now())
	s.mu.Unlock()

	s.firePersist(snap)
	return applied
}

// SetError sets one tank's error adjustment, clamped to ±height and rounded
// to 3 decimals. Returns the stored value.
func (s *Store) SetError(id int, e float64) (float64, error) {
	s.mu.Lock()

	t, err := s.tankLocked(id)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}

	bounded := boundError(e, t.Height)
	if bounded != e {
		log.Printf("store: error %g for %s clamped to %g (height %g)", e, t.Name, bounded, t.Height)
	}
	t.Error = bounded

	snap := s.snapshotLocked(s.now())
	s.mu.Unlock()

	s.firePersist(snap)
	return bounded, nil
}

// Errors returns the error adjustment for every tank in id order, suitable
// for the adjustments echo publish.
func (s *Store) Errors() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float64, s.maxTanks)
	for i := 1; i <= s.maxTanks; i++ {
		if t, ok := s.tanks[i]; ok {
			out[i-1] = t.Error
		}
	}
	return out
}

// Get returns a copy of one tank's current state.
func (s *Store) Get(id int) (Tank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tankLocked(id)
	if err != nil {
		return Tank{}, err
	}
	return t.clone(), nil
}

// GetAll returns copies of every tank's current state.
func (s *Store) GetAll() map[int]Tank {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int]Tank, len(s.tanks))
	for id, t := range s.tanks {
		out[id] = t.clone()
	}
	return out
}

// GetHistory returns the tank's history filtered by inclusive time bounds
// (zero bounds are open). If limit > 0 the most recent limit points are
// returned, still in ascending order.
func (s *Store) GetHistory(id int, start, end time.Time, limit int) []HistoryPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []HistoryPoint
	for _, p := range s.history[id] {
		if !start.IsZero() && p.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && p.Timestamp.After(end) {
			continue
		}
		out = append(out, p)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// GetAlerts returns alert records newer than timeRange ago, newest first.
// tankID 0 means all tanks.
func (s *Store) GetAlerts(tankID int, timeRange time.Duration) []AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alertsLocked(tankID, timeRange)
}

func (s *Store) alertsLocked(tankID int, timeRange time.Duration) []AlertRecord {
	cutoff := s.now().Add(-timeRange)

	var out []AlertRecord
	for _, a := range s.alerts {
		if a.Timestamp.Before(cutoff) {
			continue
		}
		if tankID != 0 && a.TankID != tankID {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// SummaryAll returns the condensed view of every tank.
func (s *Store) SummaryAll() map[int]Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int]Summary, len(s.tanks))
	for id, t := range s.tanks {
		out[id] = Summary{
			TankID:       id,
			Status:       t.Status,
			Temperature:  copyFloat(t.Temperature),
			Level:        copyFloat(t.Level),
			Pressure:     copyFloat(t.Pressure),
			AlertMessage: t.AlertMessage,
			LastUpdated:  t.LastUpdated,
		}
	}
	return out
}

// Overall summarizes the tank farm: status counts plus recent alert volume.
func (s *Store) Overall() OverallStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := OverallStatus{TotalTanks: len(s.tanks)}
	for _, t := range s.tanks {
		switch t.Status {
		case StatusAlert:
			o.AlertTanks++
		case StatusWarning:
			o.WarningTanks++
		default:
			o.NormalTanks++
		}
		if t.LastUpdated.After(o.LastUpdateTime) {
			o.LastUpdateTime = t.LastUpdated
		}
	}
	o.RecentAlertsCount = len(s.alertsLocked(0, 30*time.Minute))
	return o
}

// Statistics aggregates one tank's history over the trailing window.
func (s *Store) Statistics(id int, window time.Duration) Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{TankID: id, TimeRangeMin: int(window.Minutes())}
	cutoff := s.now().Add(-window)

	var temps, levels []float64
	for _, p := range s.history[id] {
		if p.Timestamp.Before(cutoff) {
			continue
		}
		stats.DataPoints++
		if p.Temperature != nil {
			temps = append(temps, *p.Temperature)
		}
		if p.Level != nil {
			levels = append(levels, *p.Level)
		}
		if p.Status != StatusNormal {
			stats.AlertCount++
		}
	}

	stats.AvgTemperature, stats.MaxTemperature, stats.MinTemperature = aggregate(temps)
	stats.AvgLevel, stats.MaxLevel, stats.MinLevel = aggregate(levels)
	return stats
}

// SetThresholds applies a partial threshold change, then re-evaluates every
// tank so a threshold change reclassifies statuses without waiting for new
// data. Each re-evaluation that is not normal appends an alert record, same
// as a live update would.
func (s *Store) SetThresholds(u ThresholdUpdate) Thresholds {
	s.mu.Lock()

	if u.TempHigh != nil {
		s.thresholds.TempHigh = *u.TempHigh
	}
	if u.TempLow != nil {
		s.thresholds.TempLow = *u.TempLow
	}
	if u.LevelHigh != nil {
		s.thresholds.LevelHigh = *u.LevelHigh
	}
	if u.LevelLow != nil {
		s.thresholds.LevelLow = *u.LevelLow
	}
	if u.ErrorMax != nil {
		s.thresholds.ErrorMax = *u.ErrorMax
	}

	now := s.now()
	for _, t := range s.tanks {
		t.Status, t.AlertMessage = evaluate(t, s.thresholds)
		if t.Status != StatusNormal {
			s.appendAlertLocked(t, now, t.Status, t.AlertMessage)
		}
	}

	updated := s.thresholds
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	s.firePersist(snap)
	return updated
}

// Thresholds returns the current alert thresholds.
func (s *Store) Thresholds() Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thresholds
}

// SetStorageDays changes the retention window and immediately sweeps expired
// history. Non-positive values are rejected; the previous value is returned.
func (s *Store) SetStorageDays(days int) (int, error) {
	if days <= 0 {
		s.mu.Lock()
		prev := s.storageDays
		s.mu.Unlock()
		return prev, ErrInvalidStorageDays
	}

	s.mu.Lock()
	old := s.storageDays
	s.storageDays = days
	now := s.now()
	removed := s.sweepLocked(now, 0)
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	log.Printf("store: storage days changed %d -> %d (%d expired points removed)", old, days, removed)
	s.firePersist(snap)
	return days, nil
}

// StorageDays returns the current retention window in days.
func (s *Store) StorageDays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storageDays
}

// SetMaxHistoryPoints changes the per-tank history cap, clamped to
// [100, 100000], and enforces it immediately. Returns the applied value.
func (s *Store) SetMaxHistoryPoints(points int) int {
	points = clampHistoryPoints(points)

	s.mu.Lock()
	old := s.maxHistoryPoints
	s.maxHistoryPoints = points
	for id, h := range s.history {
		if len(h) > points {
			s.history[id] = append([]HistoryPoint(nil), h[len(h)-points:]...)
		}
	}
	snap := s.snapshotLocked(s.now())
	s.mu.Unlock()

	log.Printf("store: max history points changed %d -> %d", old, points)
	s.firePersist(snap)
	return points
}

// MaxHistoryPoints returns the per-tank history cap.
func (s *Store) MaxHistoryPoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxHistoryPoints
}

// RemoveTank removes a tank record and its history. Administrative only;
// ingestion never calls this.
func (s *Store) RemoveTank(id int) error {
	s.mu.Lock()

	if _, ok := s.tanks[id]; !ok {
		s.mu.Unlock()
		return ErrUnknownTank
	}
	delete(s.tanks, id)
	delete(s.history, id)

	snap := s.snapshotLocked(s.now())
	s.mu.Unlock()

	log.Printf("store: removed tank %d", id)
	s.firePersist(snap)
	return nil
}

// ClearHistory drops history for one tank, or all tanks when id is 0.
func (s *Store) ClearHistory(id int) {
	s.mu.Lock()

	if id == 0 {
		s.history = make(map[int][]HistoryPoint)
	} else {
		delete(s.history, id)
	}

	snap := s.snapshotLocked(s.now())
	s.mu.Unlock()

	s.firePersist(snap)
}

// Sweep removes history points older than the retention window for one tank
// (or all tanks when id is 0) and returns the number removed. Points exactly
// at the cutoff are kept. Safe to call concurrently with ingestion and
// idempotent when nothing is expired.
func (s *Store) Sweep(id int) int {
	s.mu.Lock()
	removed := s.sweepLocked(s.now(), id)
	s.mu.Unlock()

	if removed > 0 {
		log.Printf("store: retention sweep removed %d expired points", removed)
	}
	return removed
}

// Snapshot returns a deep copy of the persistable state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.now())
}

// LoadSnapshot seeds the store from a previously persisted snapshot.
// Records for ids outside the configured tank set are ignored; history is
// re-capped against the current limit.
func (s *Store) LoadSnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	for id, t := range snap.Entities {
		if _, ok := s.tanks[id]; !ok {
			continue
		}
		restored := t.clone()
		restored.ID = id
		if restored.Name == "" {
			restored.Name = fmt.Sprintf("Tank %d", id)
		}
		if restored.Height <= 0 {
			restored.Height = s.tanks[id].Height
		}
		if restored.Status == "" {
			restored.Status = StatusNormal
		}
		s.tanks[id] = &restored
		loaded++
	}

	for id, h := range snap.History {
		if _, ok := s.tanks[id]; !ok {
			continue
		}
		if len(h) > s.maxHistoryPoints {
			h = h[len(h)-s.maxHistoryPoints:]
		}
		s.history[id] = append([]HistoryPoint(nil), h...)
	}

	if snap.StorageDays > 0 {
		s.storageDays = snap.StorageDays
	}

	if loaded > 0 {
		log.Printf("store: restored %d tanks from snapshot", loaded)
	}
}

func (s *Store) tankLocked(id int) (*Tank, error) {
	if id < 1 || id > s.maxTanks {
		return nil, fmt.Errorf("tank id %d out of range [1, %d]: %w", id, s.maxTanks, ErrUnknownTank)
	}
	t, ok := s.tanks[id]
	if !ok {
		return nil, fmt.Errorf("tank %d: %w", id, ErrUnknownTank)
	}
	return t, nil
}

func (s *Store) appendAlertLocked(t *Tank, now time.Time, status Status, message string) {
	s.alerts = append(s.alerts, AlertRecord{
		TankID:    t.ID,
		Timestamp: now,
		Status:    status,
		Message:   message,
		Data: AlertSnapshot{
			Temperature: copyFloat(t.Temperature),
			Level:       copyFloat(t.Level),
			Pressure:    copyFloat(t.Pressure),
			Error:       t.Error,
		},
	})
	if len(s.alerts) > maxAlerts {
		s.alerts = append([]AlertRecord(nil), s.alerts[len(s.alerts)-maxAlerts:]...)
	}
}

func (s *Store) appendHistoryLocked(id int, p HistoryPoint, now time.Time) {
	h := append(s.history[id], p)
	if len(h) > s.maxHistoryPoints {
		h = append([]HistoryPoint(nil), h[len(h)-s.maxHistoryPoints:]...)
	}
	s.history[id] = h
	s.sweepTankLocked(now, id)
}

func (s *Store) sweepLocked(now time.Time, id int) int {
	if id != 0 {
		return s.sweepTankLocked(now, id)
	}
	removed := 0
	for tid := range s.history {
		removed += s.sweepTankLocked(now, tid)
	}
	return removed
}

func (s *Store) sweepTankLocked(now time.Time, id int) int {
	h, ok := s.history[id]
	if !ok || len(h) == 0 {
		return 0
	}

	cutoff := now.AddDate(0, 0, -s.storageDays)
	drop := 0
	for drop < len(h) && h[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop == 0 {
		return 0
	}
	s.history[id] = append([]HistoryPoint(nil), h[drop:]...)
	return drop
}

func (s *Store) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		Entities:    make(map[int]Tank, len(s.tanks)),
		History:     make(map[int][]HistoryPoint, len(s.history)),
		StorageDays: s.storageDays,
		Timestamp:   now,
	}
	for id, t := range s.tanks {
		snap.Entities[id] = t.clone()
	}
	for id, h := range s.history {
		snap.History[id] = append([]HistoryPoint(nil), h...)
	}
	return snap
}

func (s *Store) firePersist(snap Snapshot) {
	if s.persist != nil {
		s.persist(snap)
	}
}

// boundError clamps an error adjustment to the tank height and rounds it to
// 3 decimal places.
func boundError(e, height float64) float64 {
	if e > height {
		e = height
	} else if e < -height {
		e = -height
	}
	return math.Round(e*1000) / 1000
}

func clampHistoryPoints(points int) int {
	if points < minHistoryPoints {
		return minHistoryPoints
	}
	if points > maxHistoryPointsCeil {
		return maxHistoryPointsCeil
	}
	return points
}

func aggregate(vals []float64) (avg, max, min *float64) {
	if len(vals) == 0 {
		return nil, nil, nil
	}
	sum := 0.0
	mx, mn := vals[0], vals[0]
	for _, v := range vals {
		sum += v
		if v > mx {
			mx = v
		}
		if v < mn {
			mn = v
		}
	}
	a := math.Round(sum/float64(len(vals))*100) / 100
	return &a, &mx, &mn
}
