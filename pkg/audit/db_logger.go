package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veridianhq/veridian/pkg/database"
)

// DBLogger writes audit events to the audit_events table.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger.
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// Log appends an audit event row.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	err = l.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (event_type, organization_id, actor_user_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, event.EventType, event.OrganizationID, event.ActorUserID, metadataJSON, event.Timestamp).
		Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the logger does not own the database handle.
func (l *DBLogger) Close() error { return nil }

// CountByType returns the number of events of the given type for an
// organization. Used by operational tooling and tests.
func (l *DBLogger) CountByType(ctx context.Context, orgID int64, eventType EventType) (int64, error) {
	var count int64
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_events
		WHERE organization_id = $1 AND event_type = $2
	`, orgID, eventType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// Migrations returns the audit schema migrations.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					event_type VARCHAR(64) NOT NULL,
					organization_id BIGINT NOT NULL,
					actor_user_id BIGINT,
					metadata JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_org_id ON audit_events(organization_id);
				CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
			`,
		},
	}
}
