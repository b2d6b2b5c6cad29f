package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tmarlow/authcore/audit"
)

// AuditSink writes security events to the security_events table. One row
// per event; metadata lands in a JSONB column.
type AuditSink struct {
	db DB
}

func NewAuditSink(db DB) *AuditSink {
	return &AuditSink{db: db}
}

func (s *AuditSink) Record(ctx context.Context, event audit.Event) error {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode event metadata: %w", err)
		}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO security_events (id, occurred_at, event_type, severity,
			user_id, email, family_id, ip_address, user_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, event.Timestamp, string(event.EventType), string(event.Severity),
		nullable(event.UserID), nullable(event.Email), nullable(event.FamilyID),
		nullable(event.IP), nullable(event.UserAgent), metadata)
	if err != nil {
		return fmt.Errorf("write security event: %w", err)
	}
	return nil
}

// nullable maps the Event convention of "" meaning absent onto SQL NULL, so
// a missing field never lands as a sentinel empty string.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
