package errors

import (
	stderrors "errors"
	"fmt"
)

// ClassifiedError carries a category, severity, retry hint and context
// alongside the message. Adapters at the CLI and HTTP edges render it.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.category, e.severity, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.category, e.severity, e.message)
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

func (e *ClassifiedError) Category() ErrorCategory      { return e.category }
func (e *ClassifiedError) Severity() ErrorSeverity      { return e.severity }
func (e *ClassifiedError) RetryStrategy() RetryStrategy { return e.retry }
func (e *ClassifiedError) Message() string              { return e.message }
func (e *ClassifiedError) Cause() error                 { return e.cause }
func (e *ClassifiedError) Context() ErrorContext        { return e.context }

// WithContext returns a copy with key set.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	c := *e
	c.context = e.context.Merge(ErrorContext{key: value})
	return &c
}

// WithContextMap returns a copy with ctx merged in.
func (e *ClassifiedError) WithContextMap(ctx ErrorContext) *ClassifiedError {
	c := *e
	c.context = e.context.Merge(ctx)
	return &c
}

// Is matches another ClassifiedError with the same category and message,
// so sentinel values built once can be compared with errors.Is.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	return ok && e.category == other.category && e.message == other.message
}

// CanRetry reports whether an automatic retry makes sense.
func (e *ClassifiedError) CanRetry() bool {
	return e.retry != RetryNever && e.retry != RetryUserAction
}

func (e *ClassifiedError) IsFatal() bool { return e.severity == SeverityFatal }

// AsClassified finds the outermost ClassifiedError in err's chain. Plain
// fmt.Errorf wrapping by callers does not hide the classification.
func AsClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsClassified reports whether err's chain holds a ClassifiedError.
func IsClassified(err error) bool {
	_, ok := AsClassified(err)
	return ok
}

// HasCategory reports whether err's chain holds a ClassifiedError of category.
func HasCategory(err error, category ErrorCategory) bool {
	ce, ok := AsClassified(err)
	return ok && ce.category == category
}

// HasSeverity reports whether err's chain holds a ClassifiedError of severity.
func HasSeverity(err error, severity ErrorSeverity) bool {
	ce, ok := AsClassified(err)
	return ok && ce.severity == severity
}

// GetCategory returns err's category, or CategoryInternal when unclassified.
func GetCategory(err error) ErrorCategory {
	if ce, ok := AsClassified(err); ok {
		return ce.category
	}
	return CategoryInternal
}
