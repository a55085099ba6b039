package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/veridianhq/veridian/pkg/database"
)

// Severity of a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification is a message delivered to a single user about an
// organization.
type Notification struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
}

// Dispatcher delivers notifications best-effort. A failure for one recipient
// must never affect delivery to others; callers isolate errors per
// recipient.
type Dispatcher interface {
	Notify(ctx context.Context, userID, orgID int64, n Notification) error
}

// NopDispatcher discards all notifications.
type NopDispatcher struct{}

func (NopDispatcher) Notify(ctx context.Context, userID, orgID int64, n Notification) error {
	return nil
}

// DBDispatcher persists notifications to the notifications table, from which
// delivery channels (email, in-app) drain them.
type DBDispatcher struct {
	db *sql.DB
}

// NewDBDispatcher creates a database-backed dispatcher.
func NewDBDispatcher(db *sql.DB) *DBDispatcher {
	return &DBDispatcher{db: db}
}

// Notify inserts a notification row.
func (d *DBDispatcher) Notify(ctx context.Context, userID, orgID int64, n Notification) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, organization_id, notification_type, severity, title, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, userID, orgID, n.Type, n.Severity, n.Title, n.Message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// Migrations returns the notification schema migrations.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					organization_id BIGINT NOT NULL,
					notification_type VARCHAR(64) NOT NULL,
					severity VARCHAR(16) NOT NULL DEFAULT 'info',
					title VARCHAR(255) NOT NULL,
					message TEXT NOT NULL,
					read_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id);
			`,
		},
	}
}
