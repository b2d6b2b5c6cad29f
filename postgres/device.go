package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tmarlow/authcore/device"
)

// DeviceRepository implements device.Repository on PostgreSQL, using the
// (user_id, device_fingerprint) unique constraint for the upsert.
type DeviceRepository struct {
	db DB
}

func NewDeviceRepository(db DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `id, user_id, device_fingerprint, label, ip_address, user_agent,
	first_seen_at, last_seen_at, trusted_at`

func (r *DeviceRepository) Find(ctx context.Context, userID, fingerprint string) (*device.TrustedDevice, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM trusted_devices
		WHERE user_id = $1 AND device_fingerprint = $2
	`, userID, fingerprint)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, device.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	return d, nil
}

func (r *DeviceRepository) Upsert(ctx context.Context, d device.TrustedDevice) (*device.TrustedDevice, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO trusted_devices (`+deviceColumns+`)
		VALUES ($1, $2, $3, '', $4, $5, $6, $7, NULL)
		ON CONFLICT (user_id, device_fingerprint)
		DO UPDATE SET
			last_seen_at = EXCLUDED.last_seen_at,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent
		RETURNING `+deviceColumns+`
	`, uuid.NewString(), d.UserID, d.Fingerprint, d.IPAddress, d.UserAgent,
		d.FirstSeenAt, d.LastSeenAt)
	got, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	return got, nil
}

func (r *DeviceRepository) SetTrusted(ctx context.Context, userID, fingerprint string, trustedAt *time.Time, label string) (*device.TrustedDevice, error) {
	// Label only changes when trusting; revocation keeps it for history.
	row := r.db.QueryRow(ctx, `
		UPDATE trusted_devices
		SET trusted_at = $3,
			label = CASE WHEN $3::timestamptz IS NULL THEN label ELSE $4 END
		WHERE user_id = $1 AND device_fingerprint = $2
		RETURNING `+deviceColumns+`
	`, userID, fingerprint, trustedAt, label)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, device.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	return d, nil
}

func (r *DeviceRepository) ListForUser(ctx context.Context, userID string) ([]device.TrustedDevice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM trusted_devices
		WHERE user_id = $1
		ORDER BY last_seen_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []device.TrustedDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	return out, nil
}

func scanDevice(row pgx.Row) (*device.TrustedDevice, error) {
	var d device.TrustedDevice
	err := row.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.Label, &d.IPAddress,
		&d.UserAgent, &d.FirstSeenAt, &d.LastSeenAt, &d.TrustedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
