// Package device implements device fingerprinting and the trusted-device
// store: a deterministic hash of client signals, the known-vs-trusted
// distinction, and repositories (in-process and Redis-backed).
//
// A device becomes known the first time a fingerprint is seen for a user and
// stays known forever; it becomes trusted only by explicit user or admin
// action. Logins update sightings, never trust.
package device
