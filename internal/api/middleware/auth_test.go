package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cpcomms/dispatch/internal/api/shared"
	"github.com/cpcomms/dispatch/internal/config"
	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cookieName = "dispatch_session"

var crown = domain.Actor{ID: "u-7", Role: domain.RoleDriverCrown, Fleet: "crown"}

func newJWT(t *testing.T) auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "middleware-test-secret-of-sufficient-length",
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)
	return svc
}

// echoActor writes the actor the middleware stored.
var echoActor = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, actor)
})

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	jwtSvc := newJWT(t)
	valid, err := jwtSvc.GenerateToken(context.Background(), crown)
	require.NoError(t, err)
	expired, err := jwtSvc.GenerateTokenWithLifetime(context.Background(), crown, -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
		wantError  string
	}{
		{
			name:       "bearer header",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "lowercase scheme",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "bearer "+valid) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "session cookie",
			prepare:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: cookieName, Value: valid}) },
			wantStatus: http.StatusOK,
		},
		{
			name: "query parameter",
			prepare: func(r *http.Request) {
				q := r.URL.Query()
				q.Set(AccessTokenParam, valid)
				r.URL.RawQuery = q.Encode()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing token",
			prepare:    func(*http.Request) {},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Authentication required",
		},
		{
			name:       "invalid auth format",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Token "+valid) },
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid token",
		},
		{
			name:       "expired token",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) },
			wantStatus: http.StatusUnauthorized,
			wantError:  "Token expired",
		},
		{
			name:       "garbage token",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-jwt") },
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid token",
		},
	}

	handler := NewAuthMiddleware(jwtSvc, cookieName).Authenticate(echoActor)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			tc.prepare(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.Equal(t, tc.wantStatus, w.Code)
			if tc.wantStatus == http.StatusOK {
				var got domain.Actor
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, crown, got)
				return
			}
			var body shared.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.wantError, body.Error)
			assert.Equal(t, shared.ClassUnauthenticated, body.Class)
			assert.False(t, body.Retryable)
		})
	}
}

func TestAuthMiddleware_NoCookieName(t *testing.T) {
	t.Parallel()

	jwtSvc := newJWT(t)
	token, err := jwtSvc.GenerateToken(context.Background(), crown)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	w := httptest.NewRecorder()
	NewAuthMiddleware(jwtSvc, "").Authenticate(echoActor).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTraceMiddleware(t *testing.T) {
	t.Parallel()

	var seen string
	h := TraceMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, seen, 32)
	assert.Equal(t, seen, w.Header().Get("X-Trace-Id"))
}
