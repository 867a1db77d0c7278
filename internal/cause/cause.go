// Package cause enumerates why a reconciliation was invoked.
package cause

import (
	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/foundation/normalization"
)

// Cause tags a single reconciliation invocation. Only the latest cause is
// ever recorded; causes are never queued.
type Cause string

const (
	BoundaryAlarm    Cause = "boundary_alarm"
	DateChanged      Cause = "date_changed"
	TimeChanged      Cause = "time_changed"
	TimezoneChanged  Cause = "timezone_changed"
	UserForegrounded Cause = "user_foregrounded"
	PeriodicJob      Cause = "periodic_job"
	Boot             Cause = "boot"
	ManualDebug      Cause = "manual_debug"
	ManualForce      Cause = "manual_force"
)

// All lists every known cause in a stable order.
var All = []Cause{
	BoundaryAlarm, DateChanged, TimeChanged, TimezoneChanged,
	UserForegrounded, PeriodicJob, Boot, ManualDebug, ManualForce,
}

// aliases maps raw signal names emitted by trigger sources onto causes.
var aliases = map[string]Cause{
	"alarm":                BoundaryAlarm,
	"midnight_alarm":       BoundaryAlarm,
	"fallback_alarm":       BoundaryAlarm,
	"wake":                 BoundaryAlarm,
	"date":                 DateChanged,
	"time":                 TimeChanged,
	"timezone":             TimezoneChanged,
	"tz_changed":           TimezoneChanged,
	"user_present":         UserForegrounded,
	"user_present_dynamic": UserForegrounded,
	"foreground":           UserForegrounded,
	"resume":               UserForegrounded,
	"work_manager":         PeriodicJob,
	"worker":               PeriodicJob,
	"boot_completed":       Boot,
	"start":                Boot,
	"debug_alarm":          ManualDebug,
	"debug":                ManualDebug,
	"manual_broadcast":     ManualForce,
	"force":                ManualForce,
	"refresh":              ManualForce,
}

// Parse normalizes a raw signal or cause name. Matching is case-insensitive
// and treats '-' and ' ' like '_'.
func Parse(raw string) (Cause, error) {
	key := normalization.Fold(raw)
	for _, c := range All {
		if string(c) == key {
			return c, nil
		}
	}
	if c, ok := aliases[key]; ok {
		return c, nil
	}
	return "", ferrors.ValidationError("unknown trigger cause").
		WithContext("cause", raw).
		Build()
}

// IsBoundary reports whether the cause indicates the armed schedule itself
// may be stale, so that the wake scheduler must be re-armed.
func (c Cause) IsBoundary() bool {
	switch c {
	case BoundaryAlarm, DateChanged, TimeChanged, TimezoneChanged, Boot, ManualForce:
		return true
	default:
		return false
	}
}

// Valid reports whether c is one of the enumerated causes.
func (c Cause) Valid() bool {
	for _, k := range All {
		if k == c {
			return true
		}
	}
	return false
}

func (c Cause) String() string { return string(c) }
