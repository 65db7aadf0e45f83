package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
)

// Config holds the status server settings.
type Config struct {
	BindAddress     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server exposes liveness and metrics endpoints while the watch loop
// runs.
type Server struct {
	cfg Config
	srv *http.Server
}

func NewServer(cfg Config, metrics http.Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics)

	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:         cfg.BindAddress,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Serve runs the server until the context is cancelled, then shuts it
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	errCh := make(chan error, 1)

	go func() {
		logger.Info("status server listening", "addr", s.cfg.BindAddress)

		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	return s.srv.Shutdown(shutdownCtx)
}
