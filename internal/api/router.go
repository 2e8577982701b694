// Package api is the hub's HTTP surface: the room management endpoints,
// the per-room WebSocket bridge, rate limiting, and the debug server.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/spsquared/battleboxes-server/internal/room"
)

// RouterConfig contains all dependencies needed to construct the HTTP
// router. Designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Manager: manager,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	ts := httptest.NewServer(api.NewRouter(cfg))
type RouterConfig struct {
	// Manager is the room manager (required).
	Manager *room.Manager

	// Authenticator resolves usernames. Defaults to trusting the
	// X-Username header.
	Authenticator Authenticator

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one is created from RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses
	// DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, allows localhost on any port.
	CORSOrigins []string

	// MaxSocketsPerIP caps concurrent WebSocket connections from one IP.
	// Zero means DefaultMaxSocketsPerIP.
	MaxSocketsPerIP int

	// DisableLogging disables the request logger middleware (useful for
	// benchmarks and tests).
	DisableLogging bool
}

// DefaultMaxSocketsPerIP is the per-IP concurrent socket cap.
const DefaultMaxSocketsPerIP = 10

// NewRouter constructs the HTTP router with all middleware and routes.
//
// This function is pure: no goroutines beyond the rate limiter cleanup, no
// network listeners. Safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	auth := cfg.Authenticator
	if auth == nil {
		auth = HeaderAuthenticator("X-Username")
	}
	maxSockets := cfg.MaxSocketsPerIP
	if maxSockets <= 0 {
		maxSockets = DefaultMaxSocketsPerIP
	}

	h := &handlers{
		manager: cfg.Manager,
		auth:    auth,
		sockets: newSocketCounter(maxSockets),
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/games", func(r chi.Router) {
		r.Get("/gameList", h.handleGameList)
		r.Post("/createGame", h.handleCreateGame)
		r.Post("/joinGame/{id}", h.handleJoinGame)
		r.Get("/{id}/ws", h.handleGameSocket)
	})

	return r
}
