// Package metrics provides the observability hooks for reconciliation,
// scheduling, storage and the recompute handoff.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics never need nil checks at call sites:
//
//	engine := reconcile.NewEngine(store, recorder, zone, clock)
//	engine.SetMetrics(metrics.NewPrometheusRecorder(reg))
//
// The Prometheus implementation registers its collectors on a caller-owned
// registry which the admin server exposes through HTTPHandler.
package metrics
