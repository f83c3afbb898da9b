package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/events"
	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/service"
	"github.com/gorilla/websocket"
)

// CloseResync is sent to evicted subscribers.
const CloseResync = events.CloseResync

// WSConfig tunes the subscription socket.
type WSConfig struct {
	// AllowedOrigins lists accepted browser origins. Empty means same-origin
	// only; "*" accepts any origin.
	AllowedOrigins []string

	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// DefaultWSConfig returns the production socket timings.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingPeriod:     54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
}

// WSHandler serves the snapshot-then-stream subscription socket.
type WSHandler struct {
	tasks    *service.TaskService
	hub      *events.Hub
	cfg      WSConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a WSHandler streaming hub events.
func NewWSHandler(tasks *service.TaskService, hub *events.Hub, cfg WSConfig, logger *slog.Logger) *WSHandler {
	if tasks == nil || hub == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task service and hub are required for WSHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWSConfig()
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaults.PingPeriod
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	h := &WSHandler{
		tasks:  tasks,
		hub:    hub,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ws_handler")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// originChecker returns nil (gorilla's same-origin check) when allowed is
// empty.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(strings.TrimRight(a, "/"), u.Scheme+"://"+u.Host)
		})
	}
}

// Serve handles GET /ws. The hub subscription is taken before the snapshot
// is read, so no event committed after the snapshot can be missed.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	actor, ok := requireActor(w, r, log)
	if !ok {
		return
	}
	if err := actor.Require(domain.OpSubscribe); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sub := h.hub.Subscribe(actor)
	log.Info("subscriber connected", slog.Int("subscribers", h.hub.Len()))

	// The request context is not cancelled by a hijacked client going away;
	// the read loop owns cancellation.
	ctx, cancel := context.WithCancel(logger.WithLogger(context.WithoutCancel(r.Context()), log))
	defer cancel()

	resync := make(chan struct{}, 1)
	go h.readLoop(conn, resync, cancel, log)

	reason := h.writeLoop(ctx, conn, sub, actor, resync, log)
	sub.Close()
	_ = conn.Close()
	log.Info("subscriber disconnected", slog.String("reason", reason))
}

// readLoop consumes client frames until the connection fails. The only
// client frame acted on is a resync request.
func (h *WSHandler) readLoop(conn *websocket.Conn, resync chan<- struct{}, cancel context.CancelFunc, log *slog.Logger) {
	defer cancel()

	conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		frame, err := events.DecodeFrame(data)
		if err != nil {
			log.Debug("ignoring malformed client frame", slog.String("error", err.Error()))
			continue
		}
		if frame.Type != events.FrameResync {
			log.Debug("ignoring client frame", slog.String("type", string(frame.Type)))
			continue
		}
		select {
		case resync <- struct{}{}:
		default:
		}
	}
}

// writeLoop is the connection's only writer. It returns a short reason for
// the disconnect.
func (h *WSHandler) writeLoop(
	ctx context.Context,
	conn *websocket.Conn,
	sub *events.Subscription,
	actor domain.Actor,
	resync <-chan struct{},
	log *slog.Logger,
) string {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer ticker.Stop()

	if err := h.sendSnapshot(ctx, conn, actor); err != nil {
		log.Warn("failed to send snapshot", slog.String("error", err.Error()))
		h.closeWith(conn, websocket.CloseInternalServerErr, "snapshot failed")
		return "snapshot_failed"
	}

	for {
		select {
		case <-ctx.Done():
			return "client_gone"

		case e, ok := <-sub.Events():
			if !ok {
				if sub.Evicted() {
					h.closeWith(conn, CloseResync, "resync required")
					return "evicted"
				}
				h.closeWith(conn, websocket.CloseGoingAway, "server shutting down")
				return "hub_closed"
			}
			if err := h.writeFrame(conn, events.EventFrame(e)); err != nil {
				log.Debug("failed to write event", slog.String("error", err.Error()))
				return "write_failed"
			}

		case <-resync:
			if err := h.sendSnapshot(ctx, conn, actor); err != nil {
				log.Warn("failed to send resync snapshot", slog.String("error", err.Error()))
				h.closeWith(conn, websocket.CloseInternalServerErr, "snapshot failed")
				return "snapshot_failed"
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return "ping_failed"
			}
		}
	}
}

func (h *WSHandler) sendSnapshot(ctx context.Context, conn *websocket.Conn, actor domain.Actor) error {
	tasks, err := h.tasks.List(ctx, actor)
	if err != nil {
		return err
	}
	return h.writeFrame(conn, events.SnapshotFrame(tasks, h.tasks.Now()))
}

func (h *WSHandler) writeFrame(conn *websocket.Conn, f events.Frame) error {
	data, err := events.EncodeFrame(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *WSHandler) closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(h.cfg.WriteWait))
}
