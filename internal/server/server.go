package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/behaviorlab/crowdsim/internal/app"
)

// Server runs the HTTP API.
type Server struct {
	httpServer *http.Server
	logger     interface {
		Info(msg string, args ...any)
		Error(msg string, args ...any)
	}
}

// New builds a server for the app's experiment root on the given port.
func New(a *app.App, expRoot string, port int) *Server {
	router := mux.NewRouter()
	NewHandler(a, expRoot).RegisterRoutes(router)
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: a.Logger(),
	}
}

// ListenAndServe blocks until the server stops or ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("API server shutdown failed", "error", err)
			return err
		}
		return <-errCh
	}
}
