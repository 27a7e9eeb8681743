// Package server exposes wrap and unwrap over HTTP for sidecar deployments
// where callers cannot link the library directly.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/envelope-keyring/pkg/envelope"
	"github.com/guided-traffic/envelope-keyring/pkg/keyring"
	"github.com/guided-traffic/envelope-keyring/pkg/manager"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

// Config holds the HTTP server settings.
type Config struct {
	BindAddress  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server handles wrap/unwrap requests against a single materials manager.
type Server struct {
	manager    manager.MaterialsManager
	algorithm  suite.AlgorithmID
	logger     *logrus.Entry
	httpServer *http.Server
}

// WrapRequest carries the payload to seal. Plaintext and AAD are base64 in
// transit via encoding/json's []byte handling.
type WrapRequest struct {
	Plaintext []byte `json:"plaintext"`
	AAD       []byte `json:"aad,omitempty"`
}

// UnwrapRequest carries a sealed message back for opening.
type UnwrapRequest struct {
	Message *envelope.Message `json:"message"`
	AAD     []byte            `json:"aad,omitempty"`
}

// UnwrapResponse returns the recovered payload.
type UnwrapResponse struct {
	Plaintext []byte `json:"plaintext"`
}

// New creates the wrap/unwrap server.
func New(cfg *Config, mgr manager.MaterialsManager, alg suite.AlgorithmID) *Server {
	s := &Server{
		manager:   mgr,
		algorithm: alg,
		logger:    logrus.WithField("component", "server"),
	}

	router := mux.NewRouter()
	router.HandleFunc("/v1/wrap", s.handleWrap).Methods(http.MethodPost)
	router.HandleFunc("/v1/unwrap", s.handleUnwrap).Methods(http.MethodPost)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         cfg.BindAddress,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("address", s.httpServer.Addr).Info("Starting wrap/unwrap server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down wrap/unwrap server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleWrap(w http.ResponseWriter, r *http.Request) {
	var req WrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := envelope.Seal(r.Context(), s.manager, s.algorithm, req.Plaintext, req.AAD)
	if err != nil {
		s.logger.WithError(err).Error("Wrap failed")
		http.Error(w, "wrap failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, msg)
}

func (s *Server) handleUnwrap(w http.ResponseWriter, r *http.Request) {
	var req UnwrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	plaintext, err := envelope.Open(r.Context(), s.manager, req.Message, req.AAD)
	if err != nil {
		// No wrapped key we hold a private key for, or a tampered payload.
		// Both come back as a generic failure so callers learn nothing
		// about which stage rejected the message.
		s.logger.WithError(err).Warn("Unwrap failed")
		status := http.StatusUnprocessableEntity
		if errors.Is(err, keyring.ErrConfiguration) {
			status = http.StatusInternalServerError
		}
		http.Error(w, "unwrap failed", status)
		return
	}

	s.writeJSON(w, &UnwrapResponse{Plaintext: plaintext})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
