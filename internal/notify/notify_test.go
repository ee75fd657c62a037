package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookNotifier(t *testing.T) {
	t.Parallel()

	t.Run("posts title and message as JSON content", func(t *testing.T) {
		t.Parallel()

		var gotBody map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &gotBody); err != nil {
				t.Errorf("body is not JSON: %v", err)
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		notifier := NewWebhookNotifier(server.URL)
		if err := notifier.Notify(context.Background(), "Scan Complete", "example.com: 3 findings"); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}

		content := gotBody["content"]
		if !strings.Contains(content, "Scan Complete") || !strings.Contains(content, "example.com: 3 findings") {
			t.Errorf("content = %q", content)
		}
	})

	t.Run("non-2xx status reports ErrWebhookFailed", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		notifier := NewWebhookNotifier(server.URL)
		err := notifier.Notify(context.Background(), "t", "m")
		if !errors.Is(err, ErrWebhookFailed) {
			t.Errorf("Notify() error = %v, want ErrWebhookFailed", err)
		}
	})

	t.Run("unreachable endpoint does not leak the URL", func(t *testing.T) {
		t.Parallel()

		notifier := NewWebhookNotifier("http://127.0.0.1:1/secret-token-path")
		err := notifier.Notify(context.Background(), "t", "m")
		if err == nil {
			t.Fatal("Notify() error = nil for unreachable endpoint")
		}
		if strings.Contains(err.Error(), "secret-token-path") {
			t.Errorf("error leaks webhook URL: %v", err)
		}
	})
}
