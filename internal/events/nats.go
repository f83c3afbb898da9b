package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBackplane moves events between instances over NATS core pub/sub.
// Core NATS does not replay messages missed while disconnected, so every
// reconnect is reported to subscribers as a gap.
type NATSBackplane struct {
	conn   *nats.Conn
	config NATSConfig
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}
}

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name identifies this client to the server.
	Name string

	Token    string
	User     string
	Password string

	// BufferSize bounds each subscription's queue.
	BufferSize int

	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts; -1 is unlimited.
	MaxReconnects int

	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// DefaultNATSConfig returns configuration with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		Name:           "dispatch",
		BufferSize:     DefaultBufferSize,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}
}

// NewNATSBackplane connects to NATS.
func NewNATSBackplane(cfg NATSConfig) (*NATSBackplane, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &NATSBackplane{
		config: cfg,
		logger: cfg.Logger.With(slog.String("component", "nats_backplane")),
		subs:   make(map[*natsSubscription]struct{}),
	}
	conn, err := nats.Connect(cfg.URL, b.options()...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	b.conn = conn
	return b, nil
}

var _ Backplane = (*NATSBackplane)(nil)

func (b *NATSBackplane) options() []nats.Option {
	cfg := b.config
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("disconnected from NATS", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			b.logger.Warn("reconnected to NATS; events may have been missed",
				slog.String("url", c.ConnectedUrlRedacted()))
			b.signalGaps()
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			b.logger.Error("NATS async error", slog.String("error", err.Error()))
			if errors.Is(err, nats.ErrSlowConsumer) {
				b.signalGaps()
			}
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	return opts
}

// signalGaps tells every live subscription that messages may be missing.
func (b *NATSBackplane) signalGaps() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		signalGap(sub.gaps)
	}
}

// Publish sends data to subject. NATS core publish does not block on the
// network, so ctx is only checked up front.
func (b *NATSBackplane) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe creates a subscription to subject.
func (b *NATSBackplane) Subscribe(subject string) (BackplaneSubscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}

	sub := &natsSubscription{
		bp:   b,
		ch:   make(chan *Message, b.config.BufferSize),
		gaps: make(chan struct{}, 1),
	}
	ns, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.closed {
			return
		}
		select {
		case sub.ch <- &Message{Subject: m.Subject, Data: m.Data}:
		default:
			sub.dropped.Add(1)
			signalGap(sub.gaps)
		}
	})
	if err != nil {
		close(sub.ch)
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	sub.sub = ns

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// Close drains pending messages and closes the connection.
func (b *NATSBackplane) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

type natsSubscription struct {
	bp      *NATSBackplane
	sub     *nats.Subscription
	mu      sync.Mutex
	ch      chan *Message
	gaps    chan struct{}
	closed  bool
	dropped atomic.Uint64
}

func (s *natsSubscription) Messages() <-chan *Message { return s.ch }

func (s *natsSubscription) Dropped() uint64 { return s.dropped.Load() }

func (s *natsSubscription) Gaps() <-chan struct{} { return s.gaps }

func (s *natsSubscription) Unsubscribe() error {
	s.bp.mu.Lock()
	delete(s.bp.subs, s)
	s.bp.mu.Unlock()

	err := s.sub.Unsubscribe()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return err
}
