package recompute

import (
	"context"
	"time"

	"git.home.luguber.info/inful/dayroll/internal/cause"
)

// Outcome labels used for metrics and logs.
const (
	OutcomeRequested  = "requested"
	OutcomeCompleted  = "completed"
	OutcomeTerminated = "terminated"
	OutcomeFailed     = "failed"
	OutcomeDiscarded  = "discarded"
)

// Request asks the surface to recompute the progress for Day.
type Request struct {
	ID       string      `json:"id"`
	Day      string      `json:"day"`
	Cause    cause.Cause `json:"cause"`
	Silent   bool        `json:"silent"`
	IssuedAt time.Time   `json:"issued_at"`
	Deadline time.Time   `json:"deadline"`
}

// Result is the authoritative value computed for Day.
type Result struct {
	RequestID string `json:"request_id"`
	Day       string `json:"day"`
	Percent   int    `json:"percent"`
	HasGoal   bool   `json:"hasGoal"`
}

// Surface runs recompute requests somewhere else.
//
// Launch may block until the work finishes and return its Result, or
// return (nil, nil) when the result arrives asynchronously through
// Handoff.Complete. Launch's context is cancelled when the request is
// terminated.
type Surface interface {
	Name() string
	Launch(ctx context.Context, req Request) (*Result, error)
	Terminate(ctx context.Context, req Request) error
}

// ResultSink receives every result the handoff sees.
type ResultSink interface {
	ApplyRecompute(ctx context.Context, res Result) error
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc func(ctx context.Context, res Result) error

func (f SinkFunc) ApplyRecompute(ctx context.Context, res Result) error { return f(ctx, res) }
