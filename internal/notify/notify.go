package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/frostnova/autopushd/internal/scheduler"
)

// SignatureHeader carries the HMAC-SHA256 of the request body, in the same
// sha256=<hex> format GitHub webhooks use, so receivers can verify with
// stock tooling.
const SignatureHeader = "X-Autopushd-Signature-256"

// Webhook delivers scheduler events to an HTTP endpoint as JSON. Delivery
// failures are logged and dropped; the publish cycle must never stall on a
// slow or broken consumer.
type Webhook struct {
	url    string
	secret []byte
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier. secretFile may be empty; when set,
// its contents sign every delivery.
func NewWebhook(url, secretFile string, logger *slog.Logger) (*Webhook, error) {
	var secret []byte
	if secretFile != "" {
		data, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read notify secret: %w", err)
		}
		secret = []byte(strings.TrimSpace(string(data)))
	}

	return &Webhook{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}, nil
}

// Notify implements scheduler.Notifier.
func (w *Webhook) Notify(ctx context.Context, e scheduler.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		w.logger.Error("failed to encode event", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("failed to build notify request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Autopushd-Event", string(e.Type))
	if len(w.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("event delivery failed", "id", e.ID, "type", string(e.Type), "error", err)
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		w.logger.Warn("event delivery rejected", "id", e.ID, "type", string(e.Type), "status", resp.StatusCode)
		return
	}

	w.logger.Debug("event delivered", "id", e.ID, "type", string(e.Type))
}

// Sign computes the sha256=<hex> HMAC signature of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a sha256=<hex> signature against body in constant time.
func Verify(secret, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(secret, body)))
}
