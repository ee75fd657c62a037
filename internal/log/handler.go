package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeys contains attribute keys that should always be masked.
// These keys commonly hold secrets in scan configuration and tool
// invocations.
var sensitiveKeys = map[string]bool{
	// Notification channels
	"webhook":         true,
	"webhook_url":     true,
	"discord_webhook": true,
	"slack_webhook":   true,

	// Authentication
	"password":     true,
	"passwd":       true,
	"secret":       true,
	"token":        true,
	"api_key":      true,
	"apikey":       true,
	"api-key":      true,
	"access_token": true,
	"auth":         true,
	"credential":   true,
	"credentials":  true,
	"private_key":  true,
	"secret_key":   true,
}

// sensitivePatterns contains regex patterns that indicate sensitive
// values. Values matching these patterns are masked regardless of key
// name, which protects secrets hiding inside logged command lines.
var sensitivePatterns = []*regexp.Regexp{
	// Discord webhook URLs carry the channel token in the path
	regexp.MustCompile(`https://(discord(app)?\.com)/api/webhooks/\S+`),

	// Slack webhook URLs
	regexp.MustCompile(`https://hooks\.slack\.com/services/\S+`),

	// Telegram bot API URLs embed the bot token
	regexp.MustCompile(`https://api\.telegram\.org/bot\S+`),

	// Bearer tokens
	regexp.MustCompile(`(?i)^bearer\s+.+`),

	// JWT tokens
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),

	// AWS access keys
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),

	// Private key markers
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// SanitizingHandler wraps an slog.Handler to mask sensitive information.
// It intercepts log records and sanitizes attribute values that match
// sensitive key names or value patterns before passing them on.
//
// Design decision: We use a handler wrapper rather than a custom logger
// because it integrates with standard slog APIs, works with any
// underlying handler (text, JSON), and applies to third-party code that
// logs through the default logger.
type SanitizingHandler struct {
	// handler is the underlying slog handler that receives sanitized records.
	handler slog.Handler
}

// NewSanitizingHandler creates a SanitizingHandler wrapping the given
// handler. If handler is nil, slog.Default().Handler() is used.
func NewSanitizingHandler(handler slog.Handler) *SanitizingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SanitizingHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's attributes and passes it on.
func (h *SanitizingHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(h.sanitizeAttr(a))
		return true
	})

	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes added,
// sanitized first.
func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = h.sanitizeAttr(a)
	}
	return &SanitizingHandler{handler: h.handler.WithAttrs(sanitizedAttrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{handler: h.handler.WithGroup(name)}
}

// sanitizeAttr sanitizes a single attribute, recursively handling groups.
func (h *SanitizingHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = h.sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	if sensitiveKeys[keyLower] || containsSensitiveKeyword(keyLower) {
		return slog.String(a.Key, MaskValue)
	}

	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, MaskSecrets(a.Value.String()))
	}

	return a
}

// containsSensitiveKeyword checks if the key contains sensitive keywords.
// The bare "key" keyword is intentionally excluded because it causes
// false positives (cache_key, batch_key); specific key-related names are
// covered by the sensitiveKeys map.
func containsSensitiveKeyword(key string) bool {
	sensitiveKeywords := []string{
		"password", "passwd", "secret", "token", "webhook", "credential",
	}

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

// MaskSecrets replaces sensitive substrings inside a value with the mask.
// If the entire value matches a sensitive pattern the whole value is
// replaced; webhook URLs embedded in longer strings (logged command
// lines) are masked in place.
func MaskSecrets(value string) string {
	for _, pattern := range sensitivePatterns {
		value = pattern.ReplaceAllString(value, MaskValue)
	}
	return value
}

// NewLogger creates a slog.Logger with sanitizing text output.
// Verbose selects Debug level; the default level is Warn so normal runs
// only surface problems (progress output goes to the progress monitor,
// not the logger).
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(NewSanitizingHandler(slog.NewTextHandler(w, opts)))
}

// NewJSONLogger creates a slog.Logger with sanitizing JSON output.
// Useful when scan logs are shipped to structured log aggregation.
func NewJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(NewSanitizingHandler(slog.NewJSONHandler(w, opts)))
}
