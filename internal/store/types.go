// Package store holds the authoritative in-memory state for all monitored
// tanks: current readings, bounded per-tank history, and the alert log.
// All mutation and evaluation happens under one lock so that a reader never
// sees a half-applied update. Time is always injectable for tests.
package store

import "time"

// Status classifies a tank's current condition.
type Status string

const (
	StatusNormal  Status = "normal"
	StatusWarning Status = "warning"
	StatusAlert   Status = "alert"
)

// Tank is the current state of one monitored tank. Measurement fields are
// nil until the first reading arrives for them.
type Tank struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Temperature *float64 `json:"temperature"`
	Level       *float64 `json:"level"`
	Weight      *float64 `json:"weight"`
	Pressure    *float64 `json:"pressure"`

	// LiquidLevel holds the legacy "liquid_level" reading. It is kept
	// separate from Level on purpose; the two fields arrive from
	// different sensor generations and are not interchangeable.
	LiquidLevel *float64 `json:"liquid_level,omitempty"`

	// Height is the physical tank height. HighLimit is the level above
	// which the high-level alarm latches; it defaults to a percentage of
	// Height but can be overridden by inbound data.
	Height    float64 `json:"height"`
	HighLimit float64 `json:"high_limit"`

	// Error is the out-of-band level correction. Magnitude never exceeds
	// Height and it is stored at 3-decimal precision.
	Error float64 `json:"error"`

	// AlarmShown latches while Level > HighLimit. An alarm record is
	// emitted only on the false-to-true transition.
	AlarmShown bool `json:"alarm_shown"`

	Status       Status    `json:"status"`
	AlertMessage string    `json:"alert_message"`
	LastUpdated  time.Time `json:"last_updated"`
}

// clone returns a deep copy safe to hand to callers.
func (t Tank) clone() Tank {
	c := t
	c.Temperature = copyFloat(t.Temperature)
	c.Level = copyFloat(t.Level)
	c.Weight = copyFloat(t.Weight)
	c.Pressure = copyFloat(t.Pressure)
	c.LiquidLevel = copyFloat(t.LiquidLevel)
	return c
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// HistoryPoint is one time-series sample for a tank. Points are appended in
// arrival order and only ever truncated from the front (retention) or to the
// most recent maxHistoryPoints (cap enforcement).
type HistoryPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature"`
	Level       *float64  `json:"level"`
	Pressure    *float64  `json:"pressure"`
	Status      Status    `json:"status"`
}

// AlertRecord is one entry in the global bounded alert log.
type AlertRecord struct {
	TankID    int           `json:"tank_id"`
	Timestamp time.Time     `json:"timestamp"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	Data      AlertSnapshot `json:"data"`
}

// AlertSnapshot captures the readings at the moment an alert was raised.
type AlertSnapshot struct {
	Temperature *float64 `json:"temperature"`
	Level       *float64 `json:"level"`
	Pressure    *float64 `json:"pressure"`
	Error       float64  `json:"error"`
}

// Thresholds is the process-wide alert configuration shared by every tank.
type Thresholds struct {
	TempHigh  float64 `json:"temp_threshold_high"`
	TempLow   float64 `json:"temp_threshold_low"`
	LevelHigh float64 `json:"level_threshold_high"`
	LevelLow  float64 `json:"level_threshold_low"`
	ErrorMax  float64 `json:"error_threshold"`
}

// ThresholdUpdate carries a partial threshold change; nil fields are left
// untouched.
type ThresholdUpdate struct {
	TempHigh  *float64
	TempLow   *float64
	LevelHigh *float64
	LevelLow  *float64
	ErrorMax  *float64
}

// Update carries the normalized fields extracted from one inbound message
// for one tank. Nil fields are not merged.
type Update struct {
	Temperature *float64
	Level       *float64
	// LiquidLevel is the legacy "liquid_level" field. It is stored under
	// its own key and deliberately not merged into Level.
	LiquidLevel *float64
	Weight      *float64
	Pressure    *float64
	HighLimit   *float64
	Error       *float64
}

// Summary is the condensed per-tank view used by list endpoints.
type Summary struct {
	TankID       int       `json:"tank_id"`
	Status       Status    `json:"status"`
	Temperature  *float64  `json:"temperature"`
	Level        *float64  `json:"level"`
	Pressure     *float64  `json:"pressure"`
	AlertMessage string    `json:"alert_message"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Statistics aggregates a tank's recent history.
type Statistics struct {
	TankID         int      `json:"tank_id"`
	DataPoints     int      `json:"data_points"`
	TimeRangeMin   int      `json:"time_range"`
	AvgTemperature *float64 `json:"avg_temperature"`
	MaxTemperature *float64 `json:"max_temperature"`
	MinTemperature *float64 `json:"min_temperature"`
	AvgLevel       *float64 `json:"avg_level"`
	MaxLevel       *float64 `json:"max_level"`
	MinLevel       *float64 `json:"min_level"`
	AlertCount     int      `json:"alert_count"`
}

// OverallStatus summarizes the whole tank farm.
type OverallStatus struct {
	TotalTanks        int       `json:"total_tanks"`
	NormalTanks       int       `json:"normal_tanks"`
	WarningTanks      int       `json:"warning_tanks"`
	AlertTanks        int       `json:"alert_tanks"`
	RecentAlertsCount int       `json:"recent_alerts_count"`
	LastUpdateTime    time.Time `json:"last_update_time"`
}

// Snapshot is the persisted form of the store: all current tank records,
// all history, and the retention setting.
type Snapshot struct {
	Entities    map[int]Tank           `json:"entities"`
	History     map[int][]HistoryPoint `json:"history"`
	StorageDays int                    `json:"storageDays"`
	Timestamp   time.Time              `json:"timestamp"`
}
