package recompute

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/metrics"
)

// DefaultDeadline bounds a recompute request.
const DefaultDeadline = 2 * time.Second

type pending struct {
	req    Request
	timer  clockwork.Timer
	cancel context.CancelFunc
}

// Handoff tracks in-flight recompute requests.
type Handoff struct {
	surface  Surface
	clock    clockwork.Clock
	deadline time.Duration
	recorder metrics.Recorder

	mu       sync.Mutex
	sink     ResultSink
	inflight map[string]*pending
}

// NewHandoff creates a handoff on surface. A non-positive deadline selects
// DefaultDeadline.
func NewHandoff(surface Surface, clock clockwork.Clock, deadline time.Duration) *Handoff {
	if surface == nil {
		surface = NoopSurface{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Handoff{
		surface:  surface,
		clock:    clock,
		deadline: deadline,
		recorder: metrics.NoopRecorder{},
		inflight: make(map[string]*pending),
	}
}

// SetSink injects the result consumer (the reconciliation engine).
func (h *Handoff) SetSink(s ResultSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = s
}

// SetRecorder injects a metrics recorder.
func (h *Handoff) SetRecorder(r metrics.Recorder) { h.recorder = metrics.OrNoop(r) }

// Surface returns the configured surface.
func (h *Handoff) Surface() Surface { return h.surface }

// Deadline returns the configured deadline.
func (h *Handoff) Deadline() time.Duration { return h.deadline }

// Pending returns the number of requests still waiting for a result.
func (h *Handoff) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inflight)
}

// Request launches a silent recompute for day and returns immediately.
func (h *Handoff) Request(ctx context.Context, day string, c cause.Cause) Request {
	now := h.clock.Now()
	req := Request{
		ID:       uuid.NewString(),
		Day:      day,
		Cause:    c,
		Silent:   true,
		IssuedAt: now,
		Deadline: now.Add(h.deadline),
	}

	launchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &pending{req: req, cancel: cancel}

	h.mu.Lock()
	h.inflight[req.ID] = p
	p.timer = h.clock.AfterFunc(h.deadline, func() { h.expire(req.ID) })
	h.mu.Unlock()

	h.recorder.IncRecompute(OutcomeRequested)
	slog.Debug("Recompute requested",
		logfields.RequestID(req.ID),
		logfields.Day(day),
		logfields.Cause(string(c)),
		logfields.Surface(h.surface.Name()))

	go h.launch(launchCtx, req)
	return req
}

func (h *Handoff) launch(ctx context.Context, req Request) {
	defer func() {
		if r := recover(); r != nil {
			h.recorder.IncRecompute(OutcomeFailed)
			slog.Error("Recompute surface panicked",
				logfields.RequestID(req.ID),
				logfields.Panic(r))
			h.abandon(req.ID)
		}
	}()

	res, err := h.surface.Launch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// Terminated by the deadline; expire already accounted for it.
			return
		}
		h.recorder.IncRecompute(OutcomeFailed)
		slog.Warn("Recompute launch failed",
			logfields.RequestID(req.ID),
			logfields.Surface(h.surface.Name()),
			logfields.Error(err))
		h.abandon(req.ID)
		return
	}
	if res == nil {
		return
	}
	if res.RequestID == "" {
		res.RequestID = req.ID
	}
	if res.Day == "" {
		res.Day = req.Day
	}
	h.Complete(ctx, *res)
}

// Complete accepts a result. A result for an in-flight request cancels its
// deadline and inherits the request's day when it carries none. Results for
// unknown or expired requests are forwarded only when they name their day;
// the sink decides whether that day is still current.
func (h *Handoff) Complete(ctx context.Context, res Result) {
	h.mu.Lock()
	p, ok := h.inflight[res.RequestID]
	if ok {
		delete(h.inflight, res.RequestID)
		p.timer.Stop()
	}
	sink := h.sink
	h.mu.Unlock()

	switch {
	case ok:
		if res.Day == "" {
			res.Day = p.req.Day
		}
		h.recorder.IncRecompute(OutcomeCompleted)
		slog.Debug("Recompute completed", logfields.RequestID(res.RequestID), logfields.Day(res.Day))
	case res.Day == "":
		h.recorder.IncRecompute(OutcomeDiscarded)
		slog.Warn("Dropping untagged recompute result for unknown or expired request",
			logfields.RequestID(res.RequestID))
		return
	default:
		slog.Info("Recompute result for unknown or expired request",
			logfields.RequestID(res.RequestID), logfields.Day(res.Day))
	}

	if sink == nil {
		return
	}
	if err := sink.ApplyRecompute(context.WithoutCancel(ctx), res); err != nil {
		slog.Warn("Failed to apply recompute result",
			logfields.RequestID(res.RequestID), logfields.Error(err))
	}
}

// abandon drops an in-flight request without terminating it.
func (h *Handoff) abandon(id string) {
	h.mu.Lock()
	p, ok := h.inflight[id]
	if ok {
		delete(h.inflight, id)
		p.timer.Stop()
	}
	h.mu.Unlock()
	if ok {
		p.cancel()
	}
}

// expire terminates a request whose deadline passed. Removal from the
// in-flight map under the lock guarantees a single termination.
func (h *Handoff) expire(id string) {
	h.mu.Lock()
	p, ok := h.inflight[id]
	if ok {
		delete(h.inflight, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	p.cancel()
	h.recorder.IncRecompute(OutcomeTerminated)
	slog.Info("Recompute deadline exceeded, terminating",
		logfields.RequestID(id),
		logfields.Day(p.req.Day),
		logfields.Surface(h.surface.Name()))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recompute terminate panicked", logfields.RequestID(id), logfields.Panic(r))
		}
	}()
	termCtx, cancel := context.WithTimeout(context.Background(), h.deadline)
	defer cancel()
	if err := h.surface.Terminate(termCtx, p.req); err != nil {
		slog.Warn("Recompute terminate failed", logfields.RequestID(id), logfields.Error(err))
	}
}

// Close terminates every in-flight request.
func (h *Handoff) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.inflight))
	for id, p := range h.inflight {
		p.timer.Stop()
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.expire(id)
	}
}
