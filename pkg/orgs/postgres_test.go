package orgs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orgRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "organization_type", "status", "billing_status", "is_active", "plan",
		"token_balance", "trial_started_at", "trial_expires_at", "trial_extension_count",
		"trial_warning_sent_at", "created_by_user_id", "created_at", "updated_at",
	})
}

func TestCreateOrganization_CommitsOrgOwnerAndLimits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now()
	started := now
	expires := now.AddDate(0, 0, 14)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(orgRows().AddRow(
			1, "Acme Trial", "trial", "active", "pending", true, "free",
			int64(0), started, expires, 0, nil, int64(7), now, now,
		))
	mock.ExpectExec("INSERT INTO organization_members").
		WithArgs(int64(1), int64(7), "owner", "active").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO org_limits").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	org, err := store.CreateOrganization(context.Background(), CreateOrgParams{
		Name:            "Acme Trial",
		OrgType:         OrgTypeTrial,
		Plan:            PlanFree,
		BillingStatus:   BillingPending,
		OwnerUserID:     7,
		CreatedByUserID: 7,
		TrialStartedAt:  &started,
		TrialExpiresAt:  &expires,
		Limits:          &Limits{MaxProjects: 3, MaxUsers: 5, MaxAICallsPerDay: 50, MaxInitiatives: 3, MaxStorageMB: 512, EnabledAIRoles: []string{"analyst"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), org.ID)
	assert.Equal(t, OrgTypeTrial, org.OrgType)
	require.NotNil(t, org.TrialExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrganization_RollsBackWhenMembershipFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(orgRows().AddRow(
			1, "Acme", "trial", "active", "pending", true, "free",
			int64(0), now, now, 0, nil, int64(7), now, now,
		))
	mock.ExpectExec("INSERT INTO organization_members").
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	_, err = store.CreateOrganization(context.Background(), CreateOrgParams{
		Name: "Acme", OrgType: OrgTypeTrial, OwnerUserID: 7, CreatedByUserID: 7,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to add owner membership")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUpgraded_Applied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now()

	mock.ExpectExec("UPDATE organizations").
		WithArgs("pro", now, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := store.MarkUpgraded(context.Background(), 42, PlanPro, now)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUpgraded_AlreadyTransitioned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now()

	mock.ExpectExec("UPDATE organizations").
		WithArgs("pro", now, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := store.MarkUpgraded(context.Background(), 42, PlanPro, now)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockTrial_SecondSweepFindsZeroRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now()

	mock.ExpectExec("UPDATE organizations").
		WithArgs(now, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE organizations").
		WithArgs(now, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := store.LockTrial(context.Background(), 9, now)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.LockTrial(context.Background(), 9, now)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkWarningSent_NullPredicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	at := time.Now()

	mock.ExpectExec("UPDATE organizations").
		WithArgs(at, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE organizations").
		WithArgs(at, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := store.MarkWarningSent(context.Background(), 3, at)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.MarkWarningSent(context.Background(), 3, at)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertTrial_RollsBackWhenCopyFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(orgRows().AddRow(
			2, "Acme Inc", "paid", "active", "pending", true, "starter",
			int64(0), nil, nil, 0, nil, int64(7), now, now,
		))
	mock.ExpectExec("INSERT INTO organization_members").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO facilities").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = store.ConvertTrial(context.Background(), ConvertTrialParams{
		TrialOrgID: 1, ActorUserID: 7, NewName: "Acme Inc", Now: now,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to copy facilities")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertTrial_FailsWhenTrialAlreadyTransitioned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(orgRows().AddRow(
			2, "Acme Inc", "paid", "active", "pending", true, "starter",
			int64(0), nil, nil, 0, nil, int64(7), now, now,
		))
	mock.ExpectExec("INSERT INTO organization_members").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO facilities").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO context_facts").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE organizations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = store.ConvertTrial(context.Background(), ConvertTrialParams{
		TrialOrgID: 1, ActorUserID: 7, NewName: "Acme Inc", Now: now,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "changed state mid-migration")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrganization_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id").
		WithArgs(int64(404)).
		WillReturnRows(orgRows())

	_, err = store.GetOrganization(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLimits_UnmarshalsEnabledRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"organization_id", "max_projects", "max_users", "max_ai_calls_per_day",
		"max_initiatives", "max_storage_mb", "enabled_ai_roles", "created_at", "updated_at",
	}).AddRow(int64(5), 3, 5, 50, 3, int64(512), []byte(`["analyst","planner"]`), now, now)

	mock.ExpectQuery("SELECT (.+) FROM org_limits WHERE organization_id").
		WithArgs(int64(5)).
		WillReturnRows(rows)

	limits, err := store.GetLimits(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"analyst", "planner"}, limits.EnabledAIRoles)
	assert.Equal(t, 50, limits.MaxAICallsPerDay)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsage_MissingRowReadsZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	day := time.Now()

	mock.ExpectQuery("SELECT value FROM usage_counters").
		WithArgs(int64(5), day, CounterAICalls).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	value, err := store.GetUsage(context.Background(), 5, day, CounterAICalls)
	require.NoError(t, err)
	assert.Equal(t, int64(0), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredDemos_ReturnsCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec("DELETE FROM organizations").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.DeleteExpiredDemos(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
