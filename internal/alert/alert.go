// Package alert posts operational notifications to an optional webhook.
//
// The notifier is used for reconnect exhaustion, repeated disconnects and
// memory-pressure restarts. With no URL configured every call is a no-op, so
// callers never need to guard their alert sites.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds each webhook POST.
const DefaultTimeout = 10 * time.Second

// payload is the webhook body.
type payload struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Notifier delivers alert messages to a webhook URL.
type Notifier struct {
	url    string
	client *http.Client
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) { n.client = client }
}

// NewNotifier creates a Notifier posting to url. An empty url disables
// delivery entirely.
func NewNotifier(url string, opts ...Option) *Notifier {
	n := &Notifier{
		url:    url,
		client: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Send posts the message to the webhook. Failures are logged and returned
// but callers typically ignore them; an alert must never take the bot down.
func (n *Notifier) Send(ctx context.Context, message string) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(payload{
		Text:      "🚨 GYMBRO Bot Alert: " + message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Error("Alert webhook delivery failed", "error", err)
		return fmt.Errorf("failed to deliver alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("Alert webhook returned non-success status", "status", resp.StatusCode)
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}

	slog.Debug("Alert delivered", "message", message)
	return nil
}
