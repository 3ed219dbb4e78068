// Package gatekeeper implements a whitelist-gated, passwordless access
// control core: magic link sign in, JWT session issuance and verification,
// two-role authorization, an admin surface with cascading offboarding, and a
// best-effort append-only audit trail.
//
// The package is a library. Hosts wire a bun.DB, a SecretSource, and
// optionally a Redis client for link storage, then mount the HTTP surface
// with RegisterRoutes or drive the command handlers directly.
package gatekeeper
