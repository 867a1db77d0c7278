package recompute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/natsbus"
)

// NoopSurface accepts requests and never answers.
type NoopSurface struct{}

func (NoopSurface) Name() string { return "noop" }

func (NoopSurface) Launch(context.Context, Request) (*Result, error) { return nil, nil }

func (NoopSurface) Terminate(context.Context, Request) error { return nil }

// CommandSurface runs an external command per request. The command reads
// the request from its environment and prints a Result as JSON on stdout.
type CommandSurface struct {
	argv []string
	env  []string
}

// Environment variables passed to the recompute command.
const (
	EnvSilent    = "DAYROLL_SILENT"
	EnvDay       = "DAYROLL_DAY"
	EnvRequestID = "DAYROLL_REQUEST_ID"
	EnvCause     = "DAYROLL_CAUSE"
)

// NewCommandSurface creates a surface running argv. Extra environment
// entries are appended to the daemon's own environment.
func NewCommandSurface(argv []string, extraEnv ...string) (*CommandSurface, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("recompute command is empty")
	}
	return &CommandSurface{argv: argv, env: extraEnv}, nil
}

func (s *CommandSurface) Name() string { return "command" }

func (s *CommandSurface) Launch(ctx context.Context, req Request) (*Result, error) {
	// #nosec G204 -- command comes from operator configuration
	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Env = append(cmd.Env,
		EnvSilent+"=1",
		EnvDay+"="+req.Day,
		EnvRequestID+"="+req.ID,
		EnvCause+"="+string(req.Cause),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("recompute command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	var res Result
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &res); err != nil {
		return nil, fmt.Errorf("decode recompute output: %w", err)
	}
	return &res, nil
}

// Terminate is a no-op: cancelling the launch context kills the process.
func (s *CommandSurface) Terminate(_ context.Context, req Request) error {
	slog.Debug("Recompute command cancelled", logfields.RequestID(req.ID))
	return nil
}

// Completer receives asynchronously delivered results.
type Completer interface {
	Complete(ctx context.Context, res Result)
}

// NATSSurface publishes requests and terminations and listens for results.
type NATSSurface struct {
	pub       natsbus.Publisher
	sub       natsbus.Subscriber
	request   string
	terminate string
	result    string
	subscr    *nats.Subscription
}

// NewNATSSurface creates a surface using subjects under prefix.
func NewNATSSurface(pub natsbus.Publisher, sub natsbus.Subscriber, prefix string) *NATSSurface {
	return &NATSSurface{
		pub:       pub,
		sub:       sub,
		request:   natsbus.Subject(prefix, natsbus.SubjectRecomputeRequest),
		terminate: natsbus.Subject(prefix, natsbus.SubjectRecomputeTerminate),
		result:    natsbus.Subject(prefix, natsbus.SubjectRecomputeResult),
	}
}

func (s *NATSSurface) Name() string { return "nats" }

// Listen subscribes to the result subject and forwards results to c.
func (s *NATSSurface) Listen(c Completer) error {
	if s.sub == nil {
		return errors.New("nats surface has no subscriber")
	}
	sub, err := s.sub.Subscribe(s.result, func(m *nats.Msg) {
		var res Result
		if err := json.Unmarshal(m.Data, &res); err != nil {
			slog.Warn("Discarding malformed recompute result", logfields.Error(err))
			return
		}
		c.Complete(context.Background(), res)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.result, err)
	}
	s.subscr = sub
	return nil
}

// Close removes the result subscription.
func (s *NATSSurface) Close() error {
	if s.subscr == nil {
		return nil
	}
	return s.subscr.Unsubscribe()
}

func (s *NATSSurface) Launch(_ context.Context, req Request) (*Result, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal recompute request: %w", err)
	}
	if err := s.pub.Publish(s.request, data); err != nil {
		return nil, fmt.Errorf("publish %s: %w", s.request, err)
	}
	return nil, nil
}

func (s *NATSSurface) Terminate(_ context.Context, req Request) error {
	data, err := json.Marshal(map[string]string{"id": req.ID})
	if err != nil {
		return err
	}
	return s.pub.Publish(s.terminate, data)
}
