package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/frostnova/autopushd/internal/config"
	"github.com/frostnova/autopushd/internal/notify"
	"github.com/frostnova/autopushd/internal/publisher"
	"github.com/frostnova/autopushd/internal/scheduler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubPublisher satisfies the scheduler's publisher without touching git.
type stubPublisher struct{}

func (stubPublisher) Publish(_ context.Context, _ string) (publisher.Outcome, error) {
	return publisher.OutcomeNothingToCommit, nil
}

func (stubPublisher) State(_ context.Context) publisher.RepoState {
	return publisher.RepoState{IsRepository: true, HasRemote: true, Branch: "main"}
}

func testServer(t *testing.T, secretFile string) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Watch.Dir = t.TempDir()
	cfg.Serve.Enabled = true
	cfg.Serve.ListenAddr = "127.0.0.1:0"
	cfg.Serve.SecretFile = secretFile

	sched := scheduler.New(cfg, stubPublisher{}, nil, discardLogger())

	srv, err := New(cfg, sched, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func TestHandleStatus(t *testing.T) {
	srv := testServer(t, "")

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var status scheduler.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if !status.IsRepository || status.Branch != "main" {
		t.Errorf("status = %+v", status)
	}
	if status.Monitoring {
		t.Error("Monitoring = true with no loop running")
	}
}

func TestHandleStatus_RejectsPost(t *testing.T) {
	srv := testServer(t, "")

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleTrigger(t *testing.T) {
	srv := testServer(t, "")

	rec := httptest.NewRecorder()
	srv.handleTrigger(rec, httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader("{}")))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}

func TestHandleTrigger_RejectsGet(t *testing.T) {
	srv := testServer(t, "")

	rec := httptest.NewRecorder()
	srv.handleTrigger(rec, httptest.NewRequest(http.MethodGet, "/trigger", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleTrigger_SignatureRequired(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(secretFile, []byte("hook-secret\n"), 0600); err != nil {
		t.Fatal(err)
	}
	srv := testServer(t, secretFile)

	body := []byte(`{"reason":"manual"}`)

	t.Run("valid signature accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(string(body)))
		req.Header.Set(notify.SignatureHeader, notify.Sign([]byte("hook-secret"), body))

		rec := httptest.NewRecorder()
		srv.handleTrigger(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Errorf("status = %d, want 202", rec.Code)
		}
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(string(body)))

		rec := httptest.NewRecorder()
		srv.handleTrigger(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(string(body)))
		req.Header.Set(notify.SignatureHeader, notify.Sign([]byte("other"), body))

		rec := httptest.NewRecorder()
		srv.handleTrigger(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}

func TestNew_MissingSecretFile(t *testing.T) {
	cfg := config.Default()
	cfg.Serve.SecretFile = filepath.Join(t.TempDir(), "absent")

	_, err := New(cfg, nil, discardLogger())
	if err == nil {
		t.Fatal("expected an error for a missing secret file")
	}
}

func TestListener(t *testing.T) {
	l, err := Listener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listener failed: %v", err)
	}
	defer func() {
		_ = l.Close()
	}()
	if l.Addr().String() == "" {
		t.Error("listener has no address")
	}
}

func TestActivatedListener_NoEnvironment(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	if l := activatedListener(); l != nil {
		_ = l.Close()
		t.Error("activatedListener returned a listener without activation env")
	}
}

func TestActivatedListener_WrongPID(t *testing.T) {
	t.Setenv("LISTEN_PID", "1")
	t.Setenv("LISTEN_FDS", "1")

	if l := activatedListener(); l != nil {
		_ = l.Close()
		t.Error("activatedListener returned a listener for a foreign PID")
	}
}
