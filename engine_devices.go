package authcore

import (
	"context"
	"errors"

	"github.com/tmarlow/authcore/audit"
	"github.com/tmarlow/authcore/device"
)

// ErrUnknownDevice is returned when a trust operation names a fingerprint
// the user has never logged in from.
var ErrUnknownDevice = errors.New("unknown device")

// TrustDevice marks a known device as explicitly trusted. Trust never
// happens implicitly from login.
func (e *Engine) TrustDevice(ctx context.Context, userID, fingerprint, label string) (*device.TrustedDevice, error) {
	d, err := e.devices.Trust(ctx, userID, fingerprint, label)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return nil, ErrUnknownDevice
		}
		return nil, storageErr(err)
	}

	e.metricInc(MetricDevicesTrusted)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventDeviceTrusted,
		Severity:  audit.SeverityLow,
		UserID:    userID,
		IP:        d.IPAddress,
		UserAgent: d.UserAgent,
		Metadata: map[string]any{
			"fingerprint": fingerprint,
			"label":       label,
		},
	})
	return d, nil
}

// RevokeDeviceTrust clears the trusted mark. The device stays known; its
// history is not erased.
func (e *Engine) RevokeDeviceTrust(ctx context.Context, userID, fingerprint string) error {
	d, err := e.devices.Revoke(ctx, userID, fingerprint)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return ErrUnknownDevice
		}
		return storageErr(err)
	}

	e.metricInc(MetricDevicesRevoked)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventDeviceRevoked,
		Severity:  audit.SeverityLow,
		UserID:    userID,
		IP:        d.IPAddress,
		UserAgent: d.UserAgent,
		Metadata:  map[string]any{"fingerprint": fingerprint},
	})
	return nil
}

// ListDevices returns the user's known devices, most recently seen first.
func (e *Engine) ListDevices(ctx context.Context, userID string) ([]device.TrustedDevice, error) {
	devices, err := e.devices.List(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	return devices, nil
}
