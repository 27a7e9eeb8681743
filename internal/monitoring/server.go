package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server serves the metrics and health endpoints.
type Server struct {
	httpServer *http.Server
	logger     *logrus.Entry
}

// Config holds monitoring server configuration.
type Config struct {
	BindAddress string
	MetricsPath string
}

// NewServer creates a monitoring server for the package registry.
func NewServer(cfg *Config) *Server {
	logger := logrus.WithField("component", "monitoring-server")

	router := mux.NewRouter()
	router.Handle(cfg.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:         cfg.BindAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: httpServer, logger: logger}
}

// Handler returns the HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("address", s.httpServer.Addr).Info("Starting monitoring server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Monitoring server error")
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down monitoring server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("monitoring server shutdown failed: %w", err)
	}
	return nil
}

// Stop closes the server immediately.
func (s *Server) Stop() error {
	return s.httpServer.Close()
}
