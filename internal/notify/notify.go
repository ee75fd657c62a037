package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrWebhookFailed is returned when the webhook endpoint rejects a
// notification.
var ErrWebhookFailed = errors.New("webhook delivery failed")

// Notifier delivers a titled message to a notification sink.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// WebhookNotifier posts notifications to a Discord-compatible webhook
// URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient substitutes the HTTP client, for tests.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		n.client = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) WebhookOption {
	return func(n *WebhookNotifier) {
		n.logger = logger
	}
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n
}

// Notify posts the message. The webhook URL itself never appears in
// errors or logs; it embeds a credential.
func (n *WebhookNotifier) Notify(ctx context.Context, title, message string) error {
	payload, err := json.Marshal(map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed", ErrWebhookFailed)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrWebhookFailed, resp.StatusCode)
	}

	n.logger.Debug("notification delivered", "title", title)
	return nil
}
