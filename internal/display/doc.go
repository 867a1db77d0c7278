// Package display pushes the current daily progress to whatever renders it.
//
// A Refresher re-reads the persisted state on every refresh (the same
// clamped, namespace-scanning read a widget would do) and hands a Frame to
// each configured Sink. Refreshes are fire-and-forget: sink failures are
// logged and never reach the caller.
package display
