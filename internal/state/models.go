package state

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"git.home.luguber.info/inful/dayroll/internal/localtime"
)

// Logical keys persisted by dayroll. Each holds a single latest value.
const (
	KeyDailyState         = "daily_state"
	KeyLastReconciliation = "last_reconciliation"
	KeyLastSchedule       = "last_schedule"
)

// DiagnosticKeys are the keys Clear is allowed to remove.
var DiagnosticKeys = []string{KeyLastReconciliation, KeyLastSchedule}

// DailyState is today's progress as last written by either the reset path
// or the authoritative recompute. The JSON field names are kept compatible
// with payloads written by earlier widget versions.
type DailyState struct {
	Percent int    `json:"percent"`
	HasGoal bool   `json:"hasGoal"`
	TS      int64  `json:"ts"`
	Day     string `json:"day,omitempty"`
}

// NewDailyState builds a clamped state stamped with day, written at.
func NewDailyState(percent int, hasGoal bool, day string, at time.Time) DailyState {
	return DailyState{
		Percent: ClampPercent(percent),
		HasGoal: hasGoal,
		TS:      at.UnixMilli(),
		Day:     day,
	}
}

// Timestamp returns the instant of the last write.
func (d DailyState) Timestamp() time.Time {
	return time.UnixMilli(d.TS)
}

// Clamped returns a copy with Percent forced into [0,100].
func (d DailyState) Clamped() DailyState {
	d.Percent = ClampPercent(d.Percent)
	return d
}

// HasValidDay reports whether Day is a parseable calendar date.
func (d DailyState) HasValidDay() bool {
	if d.Day == "" {
		return false
	}
	_, err := time.Parse(localtime.DayLayout, d.Day)
	return err == nil
}

// ClampPercent forces p into [0,100].
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// dailyStateWire tolerates numeric percent values written as floats.
type dailyStateWire struct {
	Percent *float64 `json:"percent"`
	HasGoal *bool    `json:"hasGoal"`
	TS      *int64   `json:"ts"`
	Day     *string  `json:"day"`
}

// ParseDailyState decodes a persisted payload. Missing fields take their
// zero value; a payload that is not a JSON object is an error.
func ParseDailyState(raw []byte) (DailyState, error) {
	var w dailyStateWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return DailyState{}, fmt.Errorf("decode daily state: %w", err)
	}
	var d DailyState
	if w.Percent != nil {
		p := *w.Percent
		if math.IsNaN(p) {
			p = 0
		}
		d.Percent = ClampPercent(int(math.Max(math.Min(p, 1000), -1000)))
	}
	if w.HasGoal != nil {
		d.HasGoal = *w.HasGoal
	}
	if w.TS != nil {
		d.TS = *w.TS
	}
	if w.Day != nil {
		d.Day = *w.Day
	}
	return d, nil
}
