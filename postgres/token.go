package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tmarlow/authcore/internal"
	"github.com/tmarlow/authcore/token"
)

// TokenRepository implements token.Repository on PostgreSQL. Rotation takes
// a row lock (SELECT ... FOR UPDATE) so two presentations of the same hash
// serialize on the family row.
type TokenRepository struct {
	db DB
}

func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

const familyColumns = `id, user_id, current_hash, current_token_id, prev_hash, prev_grace_until,
	prev_consumed, generation, ip_address, user_agent, created_at, expires_at,
	revoked_at, revoke_reason, reuse_flagged`

func (r *TokenRepository) Insert(ctx context.Context, fam *token.Family) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO token_families (`+familyColumns+`)
		VALUES ($1, $2, $3, $4, NULL, NULL, TRUE, $5, $6, $7, $8, $9, NULL, '', FALSE)
	`, fam.ID, fam.UserID, fam.CurrentHash[:], fam.CurrentTokenID,
		fam.Generation, fam.IPAddress, fam.UserAgent, fam.CreatedAt, fam.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
	}
	return nil
}

func (r *TokenRepository) Get(ctx context.Context, familyID string) (*token.Family, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+familyColumns+`
		FROM token_families
		WHERE id = $1
	`, familyID)
	fam, err := scanFamily(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.ErrFamilyNotFound
		}
		return nil, fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
	}
	return fam, nil
}

func (r *TokenRepository) Rotate(ctx context.Context, familyID string, provided, next [32]byte, nextTokenID string, now time.Time, grace time.Duration, expiresAt time.Time) (*token.Family, token.RotateStatus, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT `+familyColumns+`
		FROM token_families
		WHERE id = $1
		FOR UPDATE
	`, familyID)
	fam, err := scanFamily(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.RotateNotFound, nil
		}
		return nil, 0, fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
	}

	if fam.RevokedAt != nil {
		return fam, token.RotateRevoked, nil
	}
	if !now.Before(fam.ExpiresAt) {
		return fam, token.RotateExpired, nil
	}

	switch {
	case internal.ConstantTimeEqual(provided, fam.CurrentHash):
		graceUntil := now.Add(grace)
		if _, err := tx.Exec(ctx, `
			UPDATE token_families
			SET prev_hash = current_hash,
				prev_grace_until = $2,
				prev_consumed = FALSE,
				current_hash = $3,
				current_token_id = $4,
				generation = generation + 1,
				expires_at = $5
			WHERE id = $1
		`, familyID, graceUntil, next[:], nextTokenID, expiresAt); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
		}
		fam.PrevHash = fam.CurrentHash
		fam.PrevGraceUntil = graceUntil
		fam.PrevConsumed = false
		fam.CurrentHash = next
		fam.CurrentTokenID = nextTokenID
		fam.Generation++
		fam.ExpiresAt = expiresAt
		return fam, token.RotateOK, nil

	case !fam.PrevConsumed &&
		fam.Generation > 1 &&
		now.Before(fam.PrevGraceUntil) &&
		internal.ConstantTimeEqual(provided, fam.PrevHash):
		if _, err := tx.Exec(ctx, `
			UPDATE token_families
			SET prev_consumed = TRUE,
				current_hash = $2,
				current_token_id = $3,
				generation = generation + 1,
				expires_at = $4
			WHERE id = $1
		`, familyID, next[:], nextTokenID, expiresAt); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
		}
		fam.PrevConsumed = true
		fam.CurrentHash = next
		fam.CurrentTokenID = nextTokenID
		fam.Generation++
		fam.ExpiresAt = expiresAt
		return fam, token.RotateGrace, nil

	default:
		return fam, token.RotateMismatch, nil
	}
}

func (r *TokenRepository) Revoke(ctx context.Context, familyID string, reason token.RevokeReason, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE token_families
		SET revoked_at = $2, revoke_reason = $3
		WHERE id = $1 AND revoked_at IS NULL
	`, familyID, at, string(reason))
	if err != nil {
		return fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return r.requireExists(ctx, familyID)
}

func (r *TokenRepository) MarkReuseFlagged(ctx context.Context, familyID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE token_families
		SET reuse_flagged = TRUE
		WHERE id = $1 AND NOT reuse_flagged
	`, familyID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	return false, r.requireExists(ctx, familyID)
}

func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, reason token.RevokeReason, at time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE token_families
		SET revoked_at = $2, revoke_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, at, string(reason))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// requireExists distinguishes "no-op because already done" from "no such
// family" after an UPDATE touched zero rows.
func (r *TokenRepository) requireExists(ctx context.Context, familyID string) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM token_families WHERE id = $1)`, familyID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: %v", token.ErrRepoUnavailable, err)
	}
	if !exists {
		return token.ErrFamilyNotFound
	}
	return nil
}

func scanFamily(row pgx.Row) (*token.Family, error) {
	var (
		fam          token.Family
		currentHash  []byte
		prevHash     []byte
		prevGrace    *time.Time
		revokeReason string
	)
	err := row.Scan(&fam.ID, &fam.UserID, &currentHash, &fam.CurrentTokenID,
		&prevHash, &prevGrace, &fam.PrevConsumed, &fam.Generation,
		&fam.IPAddress, &fam.UserAgent, &fam.CreatedAt, &fam.ExpiresAt,
		&fam.RevokedAt, &revokeReason, &fam.ReuseFlagged)
	if err != nil {
		return nil, err
	}
	if len(currentHash) != 32 {
		return nil, fmt.Errorf("corrupt current hash for family %s", fam.ID)
	}
	copy(fam.CurrentHash[:], currentHash)
	if prevHash != nil {
		if len(prevHash) != 32 {
			return nil, fmt.Errorf("corrupt previous hash for family %s", fam.ID)
		}
		copy(fam.PrevHash[:], prevHash)
	}
	if prevGrace != nil {
		fam.PrevGraceUntil = *prevGrace
	}
	fam.RevokeReason = token.RevokeReason(revokeReason)
	return &fam, nil
}
