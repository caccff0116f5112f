// Package session owns channel session reliability helpers.
//
// Ownership boundary:
// - connection/session configuration defaults
// - retry/backoff primitives
// - ordered pending-message outbox
package session
