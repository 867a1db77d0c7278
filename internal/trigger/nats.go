package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/natsbus"
)

// signalMessage is the JSON form of a trigger message. A bare string body
// is accepted as well.
type signalMessage struct {
	Cause  string `json:"cause"`
	Signal string `json:"signal"`
}

// ParseSignalMessage extracts the raw signal name from a message body.
func ParseSignalMessage(data []byte) string {
	body := strings.TrimSpace(string(data))
	if strings.HasPrefix(body, "{") {
		var m signalMessage
		if err := json.Unmarshal(data, &m); err == nil {
			if m.Cause != "" {
				return m.Cause
			}
			return m.Signal
		}
	}
	return strings.Trim(body, `"`)
}

// Subscribe routes messages on subject into the router. Each message is
// handled on the NATS callback goroutine.
func (r *Router) Subscribe(sub natsbus.Subscriber, subject string) (*nats.Subscription, error) {
	s, err := sub.Subscribe(subject, func(m *nats.Msg) {
		raw := ParseSignalMessage(m.Data)
		c, ok := r.HandleSignal(context.Background(), raw)
		if m.Reply != "" {
			reply := map[string]any{"accepted": ok, "cause": string(c)}
			data, _ := json.Marshal(reply)
			if err := m.Respond(data); err != nil {
				slog.Debug("Trigger reply failed", logfields.Error(err))
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	slog.Info("Listening for trigger messages", slog.String("subject", subject))
	return s, nil
}
