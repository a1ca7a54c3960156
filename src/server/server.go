// Package server exposes the read-only status API.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	logger "github.com/sirupsen/logrus"

	"breakoutexecutor/src/handler"
	"breakoutexecutor/src/repository"
)

// Routes holds what the API reads from.
type Routes struct {
	Status    handler.StatusProvider
	Pairs     *repository.PairRepository
	Orders    *repository.OrderRepository
	Positions *repository.PositionRepository
}

func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", handler.StatusHandler(routes.Status))
		r.Get("/pairs", handler.ListPairsHandler(routes.Pairs))
		r.Get("/orders", handler.SearchOrdersHandler(routes.Orders))
		r.Get("/positions", handler.SearchPositionsHandler(routes.Positions))
	})

	return r
}

// NewHandler is NewRouter behind the CORS policy of config.
func NewHandler(config *Config, routes Routes) http.Handler {
	router := NewRouter(routes)
	if len(config.AllowedOrigins) == 0 {
		return router
	}
	c := cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(router)
}

type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

func New(config *Config, routes Routes) *Server {
	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:              ":" + config.Port,
			Handler:           NewHandler(config, routes),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: timeout,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
