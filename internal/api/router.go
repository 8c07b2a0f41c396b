// Package api binds the HTTP surface: ranking routes under /moss, health,
// metrics, the live feed, and the passthrough for everything else.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDeps are the handlers mounted by NewRouter. Metrics and Live may be
// nil.
type RouterDeps struct {
	Handlers    *Handlers
	Proxy       http.Handler
	Live        http.Handler
	Metrics     http.Handler
	CORSOrigins []string
}

// NewRouter builds the chi router. Requests that match no route, or match a
// path with another method, are relayed upstream by Proxy.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// CORS preflights are answered here with the router's policy; any other
	// OPTIONS request is relayed like every other method.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	r.Get("/health", GetHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/moss", func(r chi.Router) {
		deps.Handlers.RegisterRoutes(r)
		if deps.Live != nil {
			r.Method(http.MethodGet, "/live", deps.Live)
		}
		r.NotFound(deps.Proxy.ServeHTTP)
		r.MethodNotAllowed(deps.Proxy.ServeHTTP)
	})

	r.NotFound(deps.Proxy.ServeHTTP)
	r.MethodNotAllowed(deps.Proxy.ServeHTTP)
	return r
}
