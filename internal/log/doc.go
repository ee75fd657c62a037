// Package log provides secure logging functionality with automatic
// sanitization of sensitive information, built on top of the standard
// slog package.
//
// The scanner logs the exact command lines it executes and the settings
// it loads, both of which can carry secrets: notification webhook URLs,
// API keys passed to enumeration tools, and tokens embedded in custom
// flags. The SanitizingHandler masks these before any record reaches
// the underlying handler, so verbose logs remain safe to share.
//
// Usage:
//
//	logger := log.NewLogger(os.Stderr, true) // verbose=true
//	logger.Info("running tool",
//	    "webhook", "https://discord.com/api/webhooks/...", // masked
//	    "args", "-d example.com",
//	)
//	slog.SetDefault(logger)
package log
