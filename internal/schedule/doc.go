// Package schedule arms the redundant wake-ups that drive reconciliation.
//
// Three independent sources cover every calendar-day boundary: a primary
// one-time wake at local midnight, a fallback one minute later, and a
// recurring job with a 24h period aligned to the next boundary. All of them
// run on one gocron scheduler and are registered by fixed name with replace
// semantics, so repeated arming never accumulates registrations.
package schedule
