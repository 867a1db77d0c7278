// Package errors provides foundational, type-safe error primitives used across dayroll.
//
// Every failure inside a trigger path is classified so that the daemon can
// log it at the right level and then degrade to a no-op instead of
// propagating it to the trigger source.
//
// Key features:
//   - ErrorCategory: Broad error classification (config, store, scheduler, recompute, etc.)
//   - ErrorSeverity: Impact level (error, warning, info)
//   - RetryStrategy: Retry behavior (never, backoff, user action)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - HTTP and CLI adapters for error presentation
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategoryStore, "write daily state").
//		Warning().
//		WithContext("namespace", ns).
//		Build()
package errors
