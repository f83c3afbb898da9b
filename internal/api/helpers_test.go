package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cpcomms/dispatch/internal/api/middleware"
	"github.com/cpcomms/dispatch/internal/api/shared"
	"github.com/cpcomms/dispatch/internal/config"
	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/events"
	"github.com/cpcomms/dispatch/internal/platform/memory"
	"github.com/cpcomms/dispatch/internal/service"
	"github.com/cpcomms/dispatch/internal/service/auth"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	office  = domain.Actor{ID: "office-1", Role: domain.RoleOffice}
	triage  = domain.Actor{ID: "store-1", Role: domain.RoleStoreOffice}
	factory = domain.Actor{ID: "factory-1", Role: domain.RoleFactory}
	crown   = domain.Actor{ID: "crown-1", Role: domain.RoleDriverCrown, Fleet: "crown"}

	zeroActor domain.Actor
)

const cookieName = "dispatch_session"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	*httptest.Server
	svc   *service.TaskService
	hub   *events.Hub
	tasks *memory.TaskStore
	jwt   auth.JWTService
	clock *clock
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		tasks: memory.NewTaskStore(),
		hub:   events.NewHub(16, quietLogger()),
		clock: &clock{now: t0},
	}
	hub := ts.hub
	publisher := events.PublisherFunc(func(_ context.Context, e events.Event) error {
		hub.Deliver(e)
		return nil
	})

	svc, err := service.NewTaskService(service.Config{
		Tasks:   ts.tasks,
		History: memory.NewHistoryStore(),
		Events:  publisher,
		Fleets:  []string{"crown", "electric"},
		Clock:   ts.clock.Now,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	ts.svc = svc

	// Tokens are checked against wall time; the service clock is separate.
	ts.jwt, err = auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "api-test-secret-that-is-long-enough",
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware(quietLogger()))
	RegisterRoutes(r,
		NewTaskHandler(svc, quietLogger()),
		NewWSHandler(svc, ts.hub, WSConfig{PingPeriod: time.Second, PongWait: 2 * time.Second}, quietLogger()),
		middleware.NewAuthMiddleware(ts.jwt, cookieName),
	)

	ts.Server = httptest.NewServer(r)
	t.Cleanup(func() {
		ts.hub.Close()
		ts.Server.Close()
	})
	return ts
}

func (ts *testServer) token(t *testing.T, actor domain.Actor) string {
	t.Helper()
	token, err := ts.jwt.GenerateToken(context.Background(), actor)
	require.NoError(t, err)
	return token
}

// do sends a JSON request as actor. A zero actor sends no credentials.
func (ts *testServer) do(t *testing.T, actor domain.Actor, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if actor.ID != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, actor))
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func requireError(t *testing.T, resp *http.Response, status int, class shared.ErrorClass) shared.ErrorResponse {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	body := decode[shared.ErrorResponse](t, resp)
	require.Equal(t, class, body.Class)
	require.NotEmpty(t, body.TraceID)
	return body
}

func (ts *testServer) createTask(t *testing.T, actor domain.Actor, urgency string) TaskResponse {
	t.Helper()
	resp := ts.do(t, actor, http.MethodPost, "/api/tasks", CreateTaskRequest{
		Signature:   "jd",
		Description: "Move pallets to dock 4",
		Urgency:     urgency,
		Category:    "pallets",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[TaskResponse](t, resp)
}
