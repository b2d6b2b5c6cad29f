// Package ratelimit provides per-identifier request limiting for
// security-sensitive authentication flows.
//
// # Window semantics
//
// SlidingWindow keeps two counters per identifier and interpolates between
// them: O(1) memory and time per check, smoothed (not exact) behavior at
// window boundaries. RedisLimiter is a fixed-window counter (INCR +
// conditional EXPIRE on first hit) for shared, multi-instance budgets.
//
// # What this package must NOT do
//
//   - Implement domain-specific lockout policy (that lives in lockout).
//   - Mutate state on a rejected SlidingWindow check.
package ratelimit
