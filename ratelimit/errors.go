package ratelimit

import "errors"

// ErrBackendUnavailable indicates the shared counter backend is unreachable.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")
