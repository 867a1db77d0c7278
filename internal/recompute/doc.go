// Package recompute hands a fresh-day recompute request to an external,
// authoritative calculator and bounds how long it may run.
//
// The handoff is best effort. Whatever the surface reports back before or
// after the deadline is forwarded to the result sink, which decides whether
// the value is still relevant. When the deadline passes without a result the
// surface is asked to terminate exactly once and the optimistic reset value
// stays in place.
package recompute
