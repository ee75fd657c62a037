// Package cache provides a TTL-bounded cache of external-tool output,
// keyed by a hash of the exact command line. A cache hit lets the
// orchestrator skip an expensive subprocess invocation entirely when
// the same command ran recently.
package cache
