package syncclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cpcomms/dispatch/internal/events"
	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
)

// DefaultReadWait is how long a connection may stay silent before the
// client treats it as dead. The server pings every 54 seconds.
const DefaultReadWait = 60 * time.Second

// ErrUnauthorized is returned by Run when the server refuses the session
// token and the token source has nothing better to offer.
var ErrUnauthorized = errors.New("session token rejected")

// TokenSource returns the session token to present on the next dial. It is
// called once per connection attempt so refreshed tokens are picked up.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Config configures a Client.
type Config struct {
	// URL is the socket endpoint, e.g. ws://localhost:8080/ws.
	URL   string
	Token TokenSource

	Dialer *websocket.Dialer

	MinBackoff time.Duration
	MaxBackoff time.Duration

	// ReadWait bounds the silence between frames or pings from the server.
	// When it passes the connection is dropped and the next one starts from
	// a new snapshot. Zero means DefaultReadWait.
	ReadWait time.Duration

	// MaxAuthFailures stops Run after this many consecutive 401 handshakes.
	// Zero means 3.
	MaxAuthFailures int

	// OnSync, when set, is called after every applied snapshot.
	OnSync func(*View)

	Logger *slog.Logger
}

// Client keeps a View in sync with the server's subscription socket.
type Client struct {
	cfg    Config
	view   *View
	dialer *websocket.Dialer
	resync chan struct{}
	logger *slog.Logger
}

// New creates a Client applying frames to view.
func New(cfg Config, view *View) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("sync client URL is required")
	}
	if cfg.Token == nil {
		return nil, errors.New("sync client token source is required")
	}
	if view == nil {
		return nil, errors.New("sync client view is required")
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.ReadWait <= 0 {
		cfg.ReadWait = DefaultReadWait
	}
	if cfg.MaxAuthFailures <= 0 {
		cfg.MaxAuthFailures = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &Client{
		cfg:    cfg,
		view:   view,
		dialer: dialer,
		resync: make(chan struct{}, 1),
		logger: cfg.Logger.With(slog.String("component", "sync_client")),
	}, nil
}

// View returns the view the client maintains.
func (c *Client) View() *View {
	return c.view
}

// Resync asks the server for a fresh snapshot on the current connection.
// It never blocks; a request made while disconnected is dropped because
// the next connection starts with a snapshot anyway.
func (c *Client) Resync() {
	select {
	case c.resync <- struct{}{}:
	default:
	}
}

func (c *Client) newBackoff() retry.Backoff {
	b := retry.NewExponential(c.cfg.MinBackoff)
	b = retry.WithJitterPercent(20, b)
	return retry.WithCappedDuration(c.cfg.MaxBackoff, b)
}

// Run connects and keeps reconnecting until ctx is done. Every connection
// starts from a new snapshot; the view is marked unsynced in between.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.newBackoff()
	authFailures := 0

	for {
		synced, err := c.session(ctx)
		c.view.Invalidate()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if synced {
			backoff = c.newBackoff()
		}

		var closeErr *websocket.CloseError
		switch {
		case errors.As(err, &closeErr) && closeErr.Code == events.CloseResync:
			c.logger.Info("server requested resync; reconnecting")
			continue
		case errors.Is(err, ErrUnauthorized):
			authFailures++
			if authFailures >= c.cfg.MaxAuthFailures {
				return err
			}
		default:
			authFailures = 0
		}

		delay, _ := backoff.Next()
		c.logger.Warn("disconnected; reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection. It reports whether a snapshot was applied.
func (c *Client) session(ctx context.Context) (bool, error) {
	token, err := c.cfg.Token(ctx)
	if err != nil {
		return false, fmt.Errorf("get session token: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, ErrUnauthorized
		}
		return false, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	done := make(chan struct{})
	defer close(done)
	go c.writeLoop(conn, done)

	c.logger.Debug("connected", slog.String("url", c.cfg.URL))

	// Pings arrive while ReadMessage is blocked; each one proves the link is
	// alive and pushes the deadline out.
	conn.SetPingHandler(func(data string) error {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadWait)); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			var netErr net.Error
			if !errors.As(err, &netErr) || !netErr.Timeout() {
				return err
			}
		}
		return nil
	})

	synced := false
	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadWait)); err != nil {
			return synced, err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return synced, fmt.Errorf("no frame or ping for %s: %w", c.cfg.ReadWait, err)
			}
			return synced, err
		}

		frame, err := events.DecodeFrame(data)
		if err != nil {
			c.logger.Debug("ignoring malformed frame", slog.String("error", err.Error()))
			continue
		}

		if frame.Type == events.FrameSnapshot {
			c.view.ApplySnapshot(frame.Tasks, frame.OccurredAt)
			synced = true
			c.logger.Debug("snapshot applied", slog.Int("tasks", len(frame.Tasks)))
			if c.cfg.OnSync != nil {
				c.cfg.OnSync(c.view)
			}
			continue
		}
		if !synced {
			// Events are relative to a snapshot; without one they cannot be trusted.
			c.logger.Debug("event before snapshot", slog.String("type", string(frame.Type)))
			continue
		}
		if err := c.view.Apply(frame); err != nil {
			c.logger.Debug("ignoring frame", slog.String("error", err.Error()))
		}
	}
}

// writeLoop is the connection's only writer of data frames.
func (c *Client) writeLoop(conn *websocket.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-c.resync:
			data, err := events.EncodeFrame(events.Frame{Type: events.FrameResync})
			if err != nil {
				c.logger.Error("failed to encode resync frame", slog.String("error", err.Error()))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("failed to send resync", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
