package authcore

import "sync/atomic"

// MetricID indexes one engine counter.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLoginLocked
	MetricLockoutsApplied
	MetricRefreshSuccess
	MetricRefreshInvalid
	MetricRefreshReuseDetected
	MetricLogout
	MetricNewDeviceLogins
	MetricDevicesTrusted
	MetricDevicesRevoked
	MetricSessionsBulkRevoked

	metricCount
)

var metricNames = [metricCount]string{
	"login_success",
	"login_failure",
	"login_rate_limited",
	"login_locked",
	"lockouts_applied",
	"refresh_success",
	"refresh_invalid",
	"refresh_reuse_detected",
	"logout",
	"new_device_logins",
	"devices_trusted",
	"devices_revoked",
	"sessions_bulk_revoked",
}

func (id MetricID) String() string {
	if id < 0 || id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// Metrics is a fixed set of lock-free counters. A nil *Metrics is a valid
// no-op receiver, which is how a disabled config is represented.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || id < 0 || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot returns a point-in-time copy of every counter, keyed by name.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, metricCount)
	if m == nil {
		return out
	}
	for i := MetricID(0); i < metricCount; i++ {
		out[metricNames[i]] = m.counters[i].Load()
	}
	return out
}
