package metrics

// ResultLabel enumerates outcome categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultRetry   ResultLabel = "retry"
)

// Recorder defines observability hooks. All methods must be cheap and must
// never fail; they are called from trigger paths.
type Recorder interface {
	IncTrigger(cause string, result ResultLabel)
	IncReconciliation(cause, phase string)
	IncStoreError(namespace, op string)
	IncWakeArmed(kind string)
	IncWakeFired(kind string, late bool)
	IncPeriodicRun(result ResultLabel)
	IncRecompute(outcome string) // requested|completed|terminated|discarded|failed
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncTrigger(string, ResultLabel)   {}
func (NoopRecorder) IncReconciliation(string, string) {}
func (NoopRecorder) IncStoreError(string, string)     {}
func (NoopRecorder) IncWakeArmed(string)              {}
func (NoopRecorder) IncWakeFired(string, bool)        {}
func (NoopRecorder) IncPeriodicRun(ResultLabel)       {}
func (NoopRecorder) IncRecompute(string)              {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
