package postgres

import "context"

// Schema is the DDL for every table the package touches. Idempotent, safe
// to run at startup; real deployments will usually carry these as
// migrations instead.
const Schema = `
CREATE TABLE IF NOT EXISTS token_families (
	id               UUID PRIMARY KEY,
	user_id          TEXT NOT NULL,
	current_hash     BYTEA NOT NULL,
	current_token_id UUID NOT NULL,
	prev_hash        BYTEA,
	prev_grace_until TIMESTAMPTZ,
	prev_consumed    BOOLEAN NOT NULL DEFAULT TRUE,
	generation       INTEGER NOT NULL DEFAULT 1,
	ip_address       TEXT NOT NULL DEFAULT '',
	user_agent       TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL,
	revoked_at       TIMESTAMPTZ,
	revoke_reason    TEXT NOT NULL DEFAULT '',
	reuse_flagged    BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS token_families_user_idx ON token_families (user_id) WHERE revoked_at IS NULL;

CREATE TABLE IF NOT EXISTS trusted_devices (
	id                 UUID PRIMARY KEY,
	user_id            TEXT NOT NULL,
	device_fingerprint TEXT NOT NULL,
	label              TEXT NOT NULL DEFAULT '',
	ip_address         TEXT NOT NULL DEFAULT '',
	user_agent         TEXT NOT NULL DEFAULT '',
	first_seen_at      TIMESTAMPTZ NOT NULL,
	last_seen_at       TIMESTAMPTZ NOT NULL,
	trusted_at         TIMESTAMPTZ,
	UNIQUE (user_id, device_fingerprint)
);

CREATE TABLE IF NOT EXISTS security_events (
	id          UUID PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	event_type  TEXT NOT NULL,
	severity    TEXT NOT NULL,
	user_id     TEXT,
	email       TEXT,
	family_id   TEXT,
	ip_address  TEXT,
	user_agent  TEXT,
	metadata    JSONB
);
CREATE INDEX IF NOT EXISTS security_events_user_idx ON security_events (user_id, occurred_at DESC);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, Schema)
	return err
}
