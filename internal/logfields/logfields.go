package logfields

import (
	"fmt"
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyCause      = "cause"
	KeyPhase      = "phase"
	KeyDay        = "day"
	KeyToday      = "today"
	KeyNamespace  = "namespace"
	KeyKey        = "key"
	KeyWakeID     = "wake_id"
	KeyTarget     = "target"
	KeyJobID      = "job_id"
	KeyJobName    = "job_name"
	KeyJobState   = "job_state"
	KeyAttempt    = "attempt"
	KeyRequestID  = "request_id"
	KeySurface    = "surface"
	KeyPercent    = "percent"
	KeyHasGoal    = "has_goal"
	KeySignal     = "signal"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyError      = "error"
	KeyPanic      = "panic"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Cause(c string) slog.Attr          { return slog.String(KeyCause, c) }
func Phase(p string) slog.Attr          { return slog.String(KeyPhase, p) }
func Day(d string) slog.Attr            { return slog.String(KeyDay, d) }
func Today(d string) slog.Attr          { return slog.String(KeyToday, d) }
func Namespace(ns string) slog.Attr     { return slog.String(KeyNamespace, ns) }
func Key(k string) slog.Attr            { return slog.String(KeyKey, k) }
func WakeID(id string) slog.Attr        { return slog.String(KeyWakeID, id) }
func Target(t time.Time) slog.Attr      { return slog.Time(KeyTarget, t) }
func JobID(id string) slog.Attr         { return slog.String(KeyJobID, id) }
func JobName(n string) slog.Attr        { return slog.String(KeyJobName, n) }
func JobState(s string) slog.Attr       { return slog.String(KeyJobState, s) }
func Attempt(n int) slog.Attr           { return slog.Int(KeyAttempt, n) }
func RequestID(id string) slog.Attr     { return slog.String(KeyRequestID, id) }
func Surface(name string) slog.Attr     { return slog.String(KeySurface, name) }
func Percent(p int) slog.Attr           { return slog.Int(KeyPercent, p) }
func HasGoal(b bool) slog.Attr          { return slog.Bool(KeyHasGoal, b) }
func Signal(raw string) slog.Attr       { return slog.String(KeySignal, raw) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr         { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr         { return slog.Int(KeyStatus, code) }
// Panic renders a recovered value.
func Panic(rec any) slog.Attr { return slog.String(KeyPanic, fmt.Sprint(rec)) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
