package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBDispatcher_Notify(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dispatcher := NewDBDispatcher(db)

	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = dispatcher.Notify(context.Background(), 7, 42, Notification{
		Type:     "trial_expiring",
		Severity: SeverityWarning,
		Title:    "Trial expiring soon",
		Message:  "Your trial expires in 7 days",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBDispatcher_NotifyFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dispatcher := NewDBDispatcher(db)

	mock.ExpectExec("INSERT INTO notifications").
		WillReturnError(errors.New("table missing"))

	err = dispatcher.Notify(context.Background(), 7, 42, Notification{Type: "x", Title: "y"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
