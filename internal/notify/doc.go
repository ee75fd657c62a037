// Package notify delivers scan lifecycle notifications to an external
// webhook. Delivery is strictly best-effort: a scan never fails or
// stalls because a notification could not be sent.
package notify
