package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	exchangeTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// CodeExchanger trades an authorization code for a stored refresh token.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) error
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// Server serves the health check and the marketplace OAuth callback.
type Server struct {
	addr      string
	exchanger CodeExchanger
	state     string

	httpServer *http.Server
}

// New returns a server listening on addr. When state is non-empty, callbacks
// must carry the same state value.
func New(addr string, exchanger CodeExchanger, state string) *Server {
	s := &Server{addr: addr, exchanger: exchanger, state: state}
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /callback", s.handleCallback)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("http server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown failed")
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if s.state != "" && q.Get("state") != s.state {
		log.Warn().Str("state", q.Get("state")).Msg("callback with unexpected state")
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()
	if err := s.exchanger.Exchange(ctx, code); err != nil {
		log.Error().Err(err).Msg("authorization code exchange failed")
		http.Error(w, "authorization failed", http.StatusBadGateway)
		return
	}

	log.Info().Msg("marketplace authorization completed")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Authorization complete. You can close this window."))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
