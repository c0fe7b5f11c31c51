package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/thomaselliottbetz/stt-chat-openai-whisper/internal/telemetry"
)

// participantSource resolves a chat to the usernames that should receive its
// traffic.
type participantSource interface {
	Participants(ctx context.Context, chatID int) ([]string, error)
}

// Fanout pushes newly created messages to every live participant. Delivery is
// best effort: a target without a connection is skipped, a broken connection
// is evicted by the registry, and neither outcome affects the other targets.
type Fanout struct {
	registry     *Registry
	participants participantSource
}

func NewFanout(registry *Registry, participants participantSource) *Fanout {
	return &Fanout{registry: registry, participants: participants}
}

// Deliver sends the event to each chat participant plus the sender (echo to
// self keeps multiple tabs consistent). One independent unit of work per
// recipient, no join: failures surface only as registry evictions.
func (f *Fanout) Deliver(ctx context.Context, chatID int, ev Event) {
	targets := map[string]struct{}{}
	if ev.Sender != "" {
		targets[ev.Sender] = struct{}{}
	}
	names, err := f.participants.Participants(ctx, chatID)
	if err != nil {
		slog.Warn("fanout participant lookup failed", slog.Int("chat_id", chatID), slog.Any("error", err))
	}
	for _, name := range names {
		targets[name] = struct{}{}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("fanout marshal failed", slog.Any("error", err))
		return
	}

	for name := range targets {
		go func(identity string) {
			telemetry.Inc(telemetry.DeliveriesAttempted)
			if !f.registry.Send(identity, payload) {
				telemetry.Inc(telemetry.DeliveriesMissed)
			}
		}(name)
	}
}
