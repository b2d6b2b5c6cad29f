// Package lockout implements account lockout: a pure decision function over
// failure counters and timestamps, a progressive-backoff duration schedule,
// and counter stores (in-process and Redis-backed).
//
// The policy never mutates state. The caller increments counters on failure,
// persists the lock when the policy says ShouldLock, and resets counters on
// verified success.
package lockout
