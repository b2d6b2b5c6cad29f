package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmarlow/authcore/device"
	"github.com/tmarlow/authcore/postgres"
)

var deviceColumns = []string{
	"id", "user_id", "device_fingerprint", "label", "ip_address",
	"user_agent", "first_seen_at", "last_seen_at", "trusted_at",
}

func TestDeviceRepositoryFind(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := postgres.NewDeviceRepository(mock)
	ctx := context.Background()
	now := time.Now()

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, device_fingerprint").
			WithArgs("user-1", "fp-1").
			WillReturnRows(pgxmock.NewRows(deviceColumns).AddRow(
				"dev-1", "user-1", "fp-1", "", "10.0.0.1", "cli/1.0", now, now, nil,
			))

		d, err := r.Find(ctx, "user-1", "fp-1")
		require.NoError(t, err)
		assert.Equal(t, "dev-1", d.ID)
		assert.Nil(t, d.TrustedAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, device_fingerprint").
			WithArgs("user-1", "fp-x").
			WillReturnError(pgx.ErrNoRows)

		_, err := r.Find(ctx, "user-1", "fp-x")
		assert.ErrorIs(t, err, device.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepositoryUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := postgres.NewDeviceRepository(mock)
	now := time.Now()
	trustedAt := now.Add(-time.Hour)

	// The conflict path keeps the existing row's id, label, and trusted_at.
	mock.ExpectQuery("INSERT INTO trusted_devices").
		WithArgs(pgxmock.AnyArg(), "user-1", "fp-1", "10.0.0.2", "cli/2.0", now, now).
		WillReturnRows(pgxmock.NewRows(deviceColumns).AddRow(
			"dev-existing", "user-1", "fp-1", "laptop", "10.0.0.2", "cli/2.0",
			now.Add(-48*time.Hour), now, &trustedAt,
		))

	d, err := r.Upsert(context.Background(), device.TrustedDevice{
		UserID:      "user-1",
		Fingerprint: "fp-1",
		IPAddress:   "10.0.0.2",
		UserAgent:   "cli/2.0",
		FirstSeenAt: now,
		LastSeenAt:  now,
	})
	require.NoError(t, err)
	assert.Equal(t, "dev-existing", d.ID)
	assert.Equal(t, "laptop", d.Label)
	require.NotNil(t, d.TrustedAt)
	assert.True(t, d.TrustedAt.Equal(trustedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepositorySetTrusted(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("trusts a known device", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		r := postgres.NewDeviceRepository(mock)

		mock.ExpectQuery("UPDATE trusted_devices").
			WithArgs("user-1", "fp-1", &now, "laptop").
			WillReturnRows(pgxmock.NewRows(deviceColumns).AddRow(
				"dev-1", "user-1", "fp-1", "laptop", "10.0.0.1", "cli/1.0",
				now.Add(-time.Hour), now, &now,
			))

		d, err := r.SetTrusted(ctx, "user-1", "fp-1", &now, "laptop")
		require.NoError(t, err)
		assert.Equal(t, "laptop", d.Label)
		require.NotNil(t, d.TrustedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown device", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		r := postgres.NewDeviceRepository(mock)

		mock.ExpectQuery("UPDATE trusted_devices").
			WithArgs("user-1", "fp-x", (*time.Time)(nil), "").
			WillReturnError(pgx.ErrNoRows)

		_, err = r.SetTrusted(ctx, "user-1", "fp-x", nil, "")
		assert.ErrorIs(t, err, device.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeviceRepositoryListForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := postgres.NewDeviceRepository(mock)
	now := time.Now()

	mock.ExpectQuery("SELECT id, user_id, device_fingerprint").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(deviceColumns).
			AddRow("dev-2", "user-1", "fp-2", "", "10.0.0.2", "cli/2.0", now, now, nil).
			AddRow("dev-1", "user-1", "fp-1", "laptop", "10.0.0.1", "cli/1.0", now.Add(-time.Hour), now.Add(-time.Hour), &now))

	devices, err := r.ListForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "dev-2", devices[0].ID)
	assert.Equal(t, "laptop", devices[1].Label)
	assert.NoError(t, mock.ExpectationsWereMet())
}
