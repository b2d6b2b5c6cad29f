package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmarlow/authcore/postgres"
	"github.com/tmarlow/authcore/token"
)

var familyColumns = []string{
	"id", "user_id", "current_hash", "current_token_id", "prev_hash",
	"prev_grace_until", "prev_consumed", "generation", "ip_address",
	"user_agent", "created_at", "expires_at", "revoked_at", "revoke_reason",
	"reuse_flagged",
}

func fillHash(b byte) [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = b
	}
	return h
}

func familyRow(id string, hash [32]byte, now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(familyColumns).AddRow(
		id, "user-1", hash[:], "tok-1", nil, nil, true, 1,
		"10.0.0.1", "cli/1.0", now, now.Add(time.Hour), nil, "", false,
	)
}

func TestTokenRepositoryGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := postgres.NewTokenRepository(mock)
	ctx := context.Background()
	now := time.Now()
	hash := fillHash(0xAA)

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, current_hash").
			WithArgs("fam-1").
			WillReturnRows(familyRow("fam-1", hash, now))

		fam, err := r.Get(ctx, "fam-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", fam.UserID)
		assert.Equal(t, hash, fam.CurrentHash)
		assert.Equal(t, 1, fam.Generation)
		assert.False(t, fam.Revoked())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, current_hash").
			WithArgs("fam-x").
			WillReturnError(pgx.ErrNoRows)

		_, err := r.Get(ctx, "fam-x")
		assert.ErrorIs(t, err, token.ErrFamilyNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, current_hash").
			WithArgs("fam-1").
			WillReturnError(errors.New("db down"))

		_, err := r.Get(ctx, "fam-1")
		assert.ErrorIs(t, err, token.ErrRepoUnavailable)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := postgres.NewTokenRepository(mock)
	now := time.Now()
	hash := fillHash(0xAA)

	fam := &token.Family{
		ID:             "fam-1",
		UserID:         "user-1",
		CurrentHash:    hash,
		CurrentTokenID: "tok-1",
		Generation:     1,
		IPAddress:      "10.0.0.1",
		UserAgent:      "cli/1.0",
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}

	mock.ExpectExec("INSERT INTO token_families").
		WithArgs("fam-1", "user-1", hash[:], "tok-1", 1, "10.0.0.1", "cli/1.0", now, now.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Insert(context.Background(), fam))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryRotate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	current := fillHash(0x01)
	next := fillHash(0x02)

	t.Run("matching hash rotates and commits", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		r := postgres.NewTokenRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, current_hash").
			WithArgs("fam-1").
			WillReturnRows(familyRow("fam-1", current, now))
		mock.ExpectExec("UPDATE token_families").
			WithArgs("fam-1", now.Add(10*time.Second), next[:], "tok-2", now.Add(time.Hour)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		fam, status, err := r.Rotate(ctx, "fam-1", current, next, "tok-2", now, 10*time.Second, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, token.RotateOK, status)
		assert.Equal(t, 2, fam.Generation)
		assert.Equal(t, next, fam.CurrentHash)
		assert.Equal(t, current, fam.PrevHash)
		assert.False(t, fam.PrevConsumed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign hash is a mismatch", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		r := postgres.NewTokenRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, current_hash").
			WithArgs("fam-1").
			WillReturnRows(familyRow("fam-1", current, now))
		mock.ExpectRollback()

		fam, status, err := r.Rotate(ctx, "fam-1", fillHash(0x77), next, "tok-2", now, 0, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, token.RotateMismatch, status)
		assert.Equal(t, "user-1", fam.UserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("revoked family short-circuits", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		r := postgres.NewTokenRepository(mock)

		revoked := now.Add(-time.Minute)
		rows := pgxmock.NewRows(familyColumns).AddRow(
			"fam-1", "user-1", current[:], "tok-1", nil, nil, true, 1,
			"10.0.0.1", "cli/1.0", now.Add(-time.Hour), now.Add(time.Hour),
			&revoked, "user_logout", false,
		)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, current_hash").
			WithArgs("fam-1").
			WillReturnRows(rows)
		mock.ExpectRollback()

		_, status, err := r.Rotate(ctx, "fam-1", current, next, "tok-2", now, 0, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, token.RotateRevoked, status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown family", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		r := postgres.NewTokenRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, current_hash").
			WithArgs("fam-x").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		fam, status, err := r.Rotate(ctx, "fam-x", current, next, "tok-2", now, 0, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Nil(t, fam)
		assert.Equal(t, token.RotateNotFound, status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenRepositoryRevoke(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("revokes a live family", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		r := postgres.NewTokenRepository(mock)

		mock.ExpectExec("UPDATE token_families").
			WithArgs("fam-1", now, "user_logout").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, r.Revoke(ctx, "fam-1", token.RevokeUserLogout, now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already revoked is a no-op", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		r := postgres.NewTokenRepository(mock)

		mock.ExpectExec("UPDATE token_families").
			WithArgs("fam-1", now, "admin_revoked").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("fam-1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		require.NoError(t, r.Revoke(ctx, "fam-1", token.RevokeAdmin, now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown family", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		r := postgres.NewTokenRepository(mock)

		mock.ExpectExec("UPDATE token_families").
			WithArgs("fam-x", now, "user_logout").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("fam-x").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		err = r.Revoke(ctx, "fam-x", token.RevokeUserLogout, now)
		assert.ErrorIs(t, err, token.ErrFamilyNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenRepositoryMarkReuseFlagged(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	r := postgres.NewTokenRepository(mock)
	ctx := context.Background()

	mock.ExpectExec("UPDATE token_families").
		WithArgs("fam-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	first, err := r.MarkReuseFlagged(ctx, "fam-1")
	require.NoError(t, err)
	assert.True(t, first)

	mock.ExpectExec("UPDATE token_families").
		WithArgs("fam-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("fam-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	second, err := r.MarkReuseFlagged(ctx, "fam-1")
	require.NoError(t, err)
	assert.False(t, second)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryRevokeAllForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	r := postgres.NewTokenRepository(mock)
	now := time.Now()

	mock.ExpectExec("UPDATE token_families").
		WithArgs("user-1", now, "admin_revoked").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := r.RevokeAllForUser(context.Background(), "user-1", token.RevokeAdmin, now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
