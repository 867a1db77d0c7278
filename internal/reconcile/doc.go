// Package reconcile decides, from persisted state alone, whether today's
// progress must be reset and applies the reset idempotently.
//
// The engine holds no lock across read, decide and write. Concurrent
// callers that both observe a stale day write the same value for the same
// day, so the store converges regardless of ordering.
package reconcile
