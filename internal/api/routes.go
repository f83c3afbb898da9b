package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Authenticator is the middleware that resolves the session actor.
type Authenticator interface {
	Authenticate(next http.Handler) http.Handler
}

// RegisterRoutes mounts the authenticated task routes and the socket on r.
func RegisterRoutes(r chi.Router, tasks *TaskHandler, ws *WSHandler, authn Authenticator) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", Health)

		r.Group(func(r chi.Router) {
			r.Use(authn.Authenticate)

			r.Get("/tasks", tasks.ListTasks)
			r.Post("/tasks", tasks.CreateTask)
			r.Get("/tasks/board", tasks.GetBoard)
			r.Patch("/tasks/{id}/state", tasks.SetState)
			r.Patch("/tasks/{id}/assign", tasks.Assign)
			r.Post("/tasks/{id}/reject", tasks.Reject)

			r.Get("/history", tasks.ListHistory)
		})
	})

	r.Get("/health", Health)
	r.With(authn.Authenticate).Get("/ws", ws.Serve)
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
