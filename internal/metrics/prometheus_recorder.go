package metrics

import (
	"strconv"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	triggers        *prom.CounterVec
	reconciliations *prom.CounterVec
	storeErrors     *prom.CounterVec
	wakeArmed       *prom.CounterVec
	wakeFired       *prom.CounterVec
	periodicRuns    *prom.CounterVec
	recompute       *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.triggers = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dayroll",
			Name:      "triggers_total",
			Help:      "Trigger deliveries by cause and result",
		}, []string{"cause", "result"})
		pr.reconciliations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dayroll",
			Name:      "reconciliations_total",
			Help:      "Reconciliation decisions by cause and phase",
		}, []string{"cause", "phase"})
		pr.storeErrors = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dayroll",
			Name:      "store_errors_total",
			Help:      "Namespace access failures treated as absent/no-op",
		}, []string{"namespace", "op"})
		pr.wakeArmed = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dayroll",
			Name:      "wake_armed_total",
			Help:      "Wake requests armed by kind",
		}, []string{"kind"})
		pr.wakeFired = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dayroll",
			Name:      "wake_fired_total",
			Help:      "Wake requests delivered by kind and lateness",
		}, []string{"kind", "late"})
		pr.periodicRuns = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dayroll",
			Name:      "periodic_job_runs_total",
			Help:      "Periodic job executions by result",
		}, []string{"result"})
		pr.recompute = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dayroll",
			Name:      "recompute_handoffs_total",
			Help:      "Authoritative recompute handoff outcomes",
		}, []string{"outcome"})
		reg.MustRegister(pr.triggers, pr.reconciliations, pr.storeErrors, pr.wakeArmed, pr.wakeFired, pr.periodicRuns, pr.recompute)
	})
	return pr
}

func (p *PrometheusRecorder) IncTrigger(cause string, result ResultLabel) {
	if p == nil || p.triggers == nil {
		return
	}
	p.triggers.WithLabelValues(cause, string(result)).Inc()
}

func (p *PrometheusRecorder) IncReconciliation(cause, phase string) {
	if p == nil || p.reconciliations == nil {
		return
	}
	p.reconciliations.WithLabelValues(cause, phase).Inc()
}

func (p *PrometheusRecorder) IncStoreError(namespace, op string) {
	if p == nil || p.storeErrors == nil {
		return
	}
	p.storeErrors.WithLabelValues(namespace, op).Inc()
}

func (p *PrometheusRecorder) IncWakeArmed(kind string) {
	if p == nil || p.wakeArmed == nil {
		return
	}
	p.wakeArmed.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncWakeFired(kind string, late bool) {
	if p == nil || p.wakeFired == nil {
		return
	}
	p.wakeFired.WithLabelValues(kind, strconv.FormatBool(late)).Inc()
}

func (p *PrometheusRecorder) IncPeriodicRun(result ResultLabel) {
	if p == nil || p.periodicRuns == nil {
		return
	}
	p.periodicRuns.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncRecompute(outcome string) {
	if p == nil || p.recompute == nil {
		return
	}
	p.recompute.WithLabelValues(outcome).Inc()
}
