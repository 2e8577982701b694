package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spsquared/battleboxes-server/internal/config"
	"github.com/spsquared/battleboxes-server/internal/room"
)

// Server is the hub HTTP server. Construction is side-effect free beyond
// the rate limiter cleanup goroutine; nothing listens until Start.
type Server struct {
	manager     *room.Manager
	router      *chi.Mux
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	stopGauges  chan struct{}
}

// NewServer creates the hub server over a room manager.
func NewServer(cfg config.ServerConfig, manager *room.Manager) *Server {
	s := &Server{
		manager:     manager,
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		stopGauges:  make(chan struct{}),
	}
	s.router = NewRouter(RouterConfig{
		Manager:        manager,
		RateLimiter:    s.rateLimiter,
		DisableLogging: !cfg.DebugMode,
	})
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start listens and serves until Stop. Blocks.
func (s *Server) Start() error {
	// The room and player gauges are polled; rooms come and go on their
	// own goroutines and pushing from every path is not worth it.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopGauges:
				return
			case <-ticker.C:
				UpdateRoomCounts(s.manager.Counts())
			}
		}
	}()

	log.Printf("hub listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down: stop accepting, end every room,
// then drain in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopGauges)
	s.rateLimiter.Stop()
	s.manager.Shutdown()
	return s.httpServer.Shutdown(ctx)
}
