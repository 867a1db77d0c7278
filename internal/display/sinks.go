package display

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/natsbus"
)

// LogSink writes frames to the structured log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Show(_ context.Context, f Frame) error {
	slog.Info("Display refreshed",
		logfields.Percent(f.Percent),
		logfields.HasGoal(f.HasGoal),
		logfields.Day(f.Day),
		slog.String("reason", f.Reason))
	return nil
}

// NATSSink publishes frames as JSON on a subject.
type NATSSink struct {
	pub     natsbus.Publisher
	subject string
}

// NewNATSSink creates a sink publishing on subject.
func NewNATSSink(pub natsbus.Publisher, subject string) *NATSSink {
	return &NATSSink{pub: pub, subject: subject}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Show(_ context.Context, f Frame) error {
	if s.pub == nil {
		return errors.New("nats sink has no publisher")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish frame on %s: %w", s.subject, err)
	}
	return nil
}

// FuncSink adapts a function to Sink.
type FuncSink func(ctx context.Context, f Frame) error

func (FuncSink) Name() string { return "func" }

func (fn FuncSink) Show(ctx context.Context, f Frame) error { return fn(ctx, f) }
