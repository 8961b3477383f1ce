package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/frostnova/autopushd/internal/config"
	"github.com/frostnova/autopushd/internal/notify"
	"github.com/frostnova/autopushd/internal/scheduler"
)

// Server exposes the monitoring loop over HTTP: a point-in-time status
// query and an authenticated trigger for an immediate publish cycle.
type Server struct {
	cfg    *config.Config
	sched  *scheduler.Scheduler
	logger *slog.Logger
	secret []byte
}

// New creates the status server. When the configured secret file is set,
// trigger requests must carry a valid HMAC signature.
func New(cfg *config.Config, sched *scheduler.Scheduler, logger *slog.Logger) (*Server, error) {
	var secret []byte
	if cfg.Serve.SecretFile != "" {
		data, err := os.ReadFile(cfg.Serve.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read serve secret: %w", err)
		}
		secret = []byte(strings.TrimSpace(string(data)))
	}

	return &Server{
		cfg:    cfg,
		sched:  sched,
		logger: logger,
		secret: secret,
	}, nil
}

// Start serves until ctx is canceled. The listener comes from systemd
// socket activation when available, otherwise from the configured address.
func (s *Server) Start(ctx context.Context) error {
	listener, err := Listener(s.cfg.Serve.ListenAddr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/trigger", s.handleTrigger)

	server := &http.Server{
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server starting", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down status server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleStatus answers a point-in-time status query.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.sched.Status(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("failed to encode status", "error", err)
	}
}

// handleTrigger requests an immediate publish cycle. With a configured
// secret the request body must be signed; without one any POST triggers.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("rejecting non-POST trigger", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB limit
	if err != nil {
		s.logger.Error("failed to read trigger body", "error", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	if len(s.secret) > 0 {
		signature := r.Header.Get(notify.SignatureHeader)
		if !notify.Verify(s.secret, body, signature) {
			s.logger.Warn("rejecting trigger with invalid signature")
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	s.logger.Info("trigger accepted")

	// Run the cycle off the request goroutine; a publish can take longer
	// than the client cares to wait.
	go s.sched.TriggerNow(context.Background())

	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, "Publish cycle triggered\n")
}

// Listener returns a listener for the server: the systemd-activated socket
// when one was passed, otherwise a fresh TCP listener on addr.
func Listener(addr string) (net.Listener, error) {
	if l := activatedListener(); l != nil {
		return l, nil
	}
	return net.Listen("tcp", addr)
}
