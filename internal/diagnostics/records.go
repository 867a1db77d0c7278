package diagnostics

import (
	"time"

	"git.home.luguber.info/inful/dayroll/internal/cause"
)

// Phase names the branch a reconciliation took.
type Phase string

const (
	PhaseOptimisticReset Phase = "optimistic_reset"
	PhaseAlreadyToday    Phase = "already_today"
)

// ReconciliationRecord describes the latest reconciliation.
type ReconciliationRecord struct {
	TS    int64       `json:"ts"`
	Cause cause.Cause `json:"cause"`
	Phase Phase       `json:"phase"`
	// PrevHasGoal is only set on the reset phase.
	PrevHasGoal *bool  `json:"prev_has_goal,omitempty"`
	Day         string `json:"day"`
}

// NewResetRecord builds the record written on the optimistic reset path.
func NewResetRecord(c cause.Cause, day string, prevHasGoal bool, at time.Time) ReconciliationRecord {
	return ReconciliationRecord{
		TS:          at.UnixMilli(),
		Cause:       c,
		Phase:       PhaseOptimisticReset,
		PrevHasGoal: &prevHasGoal,
		Day:         day,
	}
}

// NewNoopRecord builds the record written when the state is already current.
func NewNoopRecord(c cause.Cause, day string, at time.Time) ReconciliationRecord {
	return ReconciliationRecord{
		TS:    at.UnixMilli(),
		Cause: c,
		Phase: PhaseAlreadyToday,
		Day:   day,
	}
}

// Time returns the record timestamp.
func (r ReconciliationRecord) Time() time.Time { return time.UnixMilli(r.TS) }

// ScheduleRecord describes the latest wake-up arming. Times are unix millis,
// Window is the tolerance window in milliseconds.
type ScheduleRecord struct {
	ScheduledAt  int64 `json:"scheduled_at"`
	BoundaryAt   int64 `json:"boundary_at"`
	FallbackAt   int64 `json:"fallback_at"`
	ForcedWindow bool  `json:"forced_window"`
	Window       int64 `json:"window"`
}

// NewScheduleRecord builds a ScheduleRecord for a boundary armed at now.
func NewScheduleRecord(now, boundary, fallback time.Time, window time.Duration) ScheduleRecord {
	return ScheduleRecord{
		ScheduledAt:  now.UnixMilli(),
		BoundaryAt:   boundary.UnixMilli(),
		FallbackAt:   fallback.UnixMilli(),
		ForcedWindow: true,
		Window:       window.Milliseconds(),
	}
}

// Boundary returns the armed boundary instant.
func (r ScheduleRecord) Boundary() time.Time { return time.UnixMilli(r.BoundaryAt) }
