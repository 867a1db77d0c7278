// Package diagnostics persists the single most recent reconciliation and
// schedule records next to the daily state. The records exist for humans
// and debug tooling; nothing in dayroll reads them to make a decision.
package diagnostics
