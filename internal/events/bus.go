package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cpcomms/dispatch/internal/platform/logger"
)

// DefaultSubject is the backplane subject for task events.
const DefaultSubject = "tasks.events"

// Bus publishes events onto a backplane and relays what the backplane
// delivers into the local hub. Every instance sees every event, including
// its own, through the same path.
type Bus struct {
	backplane Backplane
	hub       *Hub
	subject   string
	sub       BackplaneSubscription
	logger    *slog.Logger
}

// NewBus subscribes to subject before returning, so nothing published after
// NewBus is missed by Run.
func NewBus(backplane Backplane, hub *Hub, subject string, logger *slog.Logger) (*Bus, error) {
	if backplane == nil || hub == nil {
		return nil, errors.New("events: backplane and hub are required")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}

	sub, err := backplane.Subscribe(subject)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return &Bus{
		backplane: backplane,
		hub:       hub,
		subject:   subject,
		sub:       sub,
		logger:    logger.With(slog.String("component", "event_bus")),
	}, nil
}

var _ Publisher = (*Bus)(nil)

// Hub returns the local fan-out hub.
func (b *Bus) Hub() *Hub {
	return b.hub
}

// Publish implements Publisher.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	if err := b.backplane.Publish(ctx, b.subject, data); err != nil {
		logger.FromContextOrDefault(ctx, b.logger).Error("failed to publish event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(e.Type)),
			slog.String("task_id", e.TaskID.String()))
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Run relays backplane messages into the hub until ctx is cancelled or the
// backplane subscription ends. When the backplane reports a gap, every local
// subscriber is evicted so clients resynchronize from a snapshot.
func (b *Bus) Run(ctx context.Context) error {
	defer func() { _ = b.sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.sub.Gaps():
			b.logger.Warn("backplane reported a delivery gap, evicting subscribers",
				slog.Uint64("dropped_total", b.sub.Dropped()))
			b.hub.EvictAll()
		case msg, ok := <-b.sub.Messages():
			if !ok {
				return ErrClosed
			}

			e, err := Decode(msg.Data)
			if err != nil {
				b.logger.Error("discarding undecodable event", slog.String("error", err.Error()))
				continue
			}
			n := b.hub.Deliver(e)
			b.logger.Debug("event relayed",
				slog.String("event_type", string(e.Type)),
				slog.String("task_id", e.TaskID.String()),
				slog.Int("delivered", n))
		}
	}
}
