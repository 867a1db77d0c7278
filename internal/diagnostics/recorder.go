package diagnostics

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

// Recorder writes diagnostic records through the shared store. Each write
// overwrites the previous record; write failures are logged and dropped.
type Recorder struct {
	store *state.Store
}

// NewRecorder creates a Recorder on top of store.
func NewRecorder(store *state.Store) *Recorder {
	return &Recorder{store: store}
}

// RecordReconciliation overwrites the latest reconciliation record.
func (r *Recorder) RecordReconciliation(ctx context.Context, rec ReconciliationRecord) {
	if err := r.store.WriteJSON(ctx, state.KeyLastReconciliation, rec); err != nil {
		slog.Warn("Failed to record reconciliation",
			logfields.Cause(string(rec.Cause)),
			logfields.Phase(string(rec.Phase)),
			logfields.Error(err))
	}
}

// RecordSchedule overwrites the latest schedule record.
func (r *Recorder) RecordSchedule(ctx context.Context, rec ScheduleRecord) {
	if err := r.store.WriteJSON(ctx, state.KeyLastSchedule, rec); err != nil {
		slog.Warn("Failed to record schedule", logfields.Error(err))
	}
}

// LatestReconciliation returns the most recent reconciliation record.
func (r *Recorder) LatestReconciliation(ctx context.Context) (ReconciliationRecord, bool) {
	var rec ReconciliationRecord
	ok := r.store.ReadJSON(ctx, state.KeyLastReconciliation, &rec)
	return rec, ok
}

// LatestSchedule returns the most recent schedule record.
func (r *Recorder) LatestSchedule(ctx context.Context) (ScheduleRecord, bool) {
	var rec ScheduleRecord
	ok := r.store.ReadJSON(ctx, state.KeyLastSchedule, &rec)
	return rec, ok
}

// Clear removes both diagnostic records. The daily state is untouched.
func (r *Recorder) Clear(ctx context.Context) {
	r.store.Clear(ctx, state.DiagnosticKeys...)
}
