// Package authcore is an embeddable session-security core: refresh-token
// rotation with family tracking and reuse detection, account lockout with
// progressive backoff, sliding-window rate limiting, device fingerprinting
// and trust, and a security-event audit trail.
//
// The package exposes an Engine built through a builder. Storage is
// injected: in-memory implementations back single-process deployments and
// tests, Redis and PostgreSQL implementations back everything else.
// Credential verification is an opaque collaborator; authcore never sees
// password hashes unless the integrator composes in the password package.
package authcore
