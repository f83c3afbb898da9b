package main

import (
	"net/http"

	"github.com/cpcomms/dispatch/internal/api"
	apiMiddleware "github.com/cpcomms/dispatch/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupRouter creates the router with the standard middleware and every
// route mounted.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)

	wsCfg := api.DefaultWSConfig()
	wsCfg.AllowedOrigins = app.config.Server.AllowedOrigins

	api.RegisterRoutes(r,
		api.NewTaskHandler(app.taskService, app.logger),
		api.NewWSHandler(app.taskService, app.hub, wsCfg, app.logger),
		apiMiddleware.NewAuthMiddleware(app.jwtService, app.config.Auth.CookieName),
	)
	return r
}
