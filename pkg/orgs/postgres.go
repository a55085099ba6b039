package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orgColumns = `id, name, organization_type, status, billing_status, is_active, plan,
	       token_balance, trial_started_at, trial_expires_at, trial_extension_count,
	       trial_warning_sent_at, created_by_user_id, created_at, updated_at`

func scanOrganization(row interface {
	Scan(dest ...interface{}) error
}) (*Organization, error) {
	org := &Organization{}
	var trialStartedAt, trialExpiresAt, warningSentAt sql.NullTime
	err := row.Scan(
		&org.ID, &org.Name, &org.OrgType, &org.Status, &org.BillingStatus,
		&org.IsActive, &org.Plan, &org.TokenBalance,
		&trialStartedAt, &trialExpiresAt, &org.TrialExtensionCount,
		&warningSentAt, &org.CreatedByUserID, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if trialStartedAt.Valid {
		org.TrialStartedAt = &trialStartedAt.Time
	}
	if trialExpiresAt.Valid {
		org.TrialExpiresAt = &trialExpiresAt.Time
	}
	if warningSentAt.Valid {
		org.TrialWarningSentAt = &warningSentAt.Time
	}
	return org, nil
}

// CreateOrganization creates an organization together with its owner
// membership and, when provided, its Limits row in a single transaction.
func (s *PostgresStore) CreateOrganization(ctx context.Context, p CreateOrgParams) (*Organization, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO organizations (name, organization_type, status, billing_status, is_active,
		                           plan, token_balance, trial_started_at, trial_expires_at,
		                           created_by_user_id)
		VALUES ($1, $2, 'active', $3, TRUE, $4, $5, $6, $7, $8)
		RETURNING ` + orgColumns + `
	`
	org, err := scanOrganization(tx.QueryRowContext(ctx, query,
		p.Name, p.OrgType, p.BillingStatus, p.Plan, p.TokenBalance,
		p.TrialStartedAt, p.TrialExpiresAt, p.CreatedByUserID))
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role, status)
		VALUES ($1, $2, $3, $4)
	`, org.ID, p.OwnerUserID, RoleOwner, MemberStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to add owner membership: %w", err)
	}

	if p.Limits != nil {
		if err := upsertLimitsTx(ctx, tx, org.ID, p.Limits); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return org, nil
}

// GetOrganization retrieves an organization by ID.
func (s *PostgresStore) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	org, err := scanOrganization(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// MarkUpgraded flips a trial organization to paid. The type predicate makes
// the update a no-op when the row already transitioned; the caller reads the
// applied flag to tell the two apart.
func (s *PostgresStore) MarkUpgraded(ctx context.Context, orgID int64, plan PlanTier, now time.Time) (bool, error) {
	query := `
		UPDATE organizations
		SET organization_type = 'paid', plan = $1, trial_expires_at = NULL,
		    trial_started_at = NULL, trial_warning_sent_at = NULL,
		    is_active = TRUE, updated_at = $2
		WHERE id = $3 AND organization_type = 'trial' AND status = 'active'
	`
	result, err := s.db.ExecContext(ctx, query, plan, now, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to upgrade organization: %w", err)
	}
	return rowsApplied(result)
}

// LockTrial deactivates an expired trial. Zero rows affected means the
// organization already transitioned; concurrent sweeps are serialized by the
// predicate rather than by any in-process lock.
func (s *PostgresStore) LockTrial(ctx context.Context, orgID int64, now time.Time) (bool, error) {
	query := `
		UPDATE organizations
		SET is_active = FALSE, updated_at = $1
		WHERE id = $2 AND organization_type = 'trial' AND status = 'active' AND is_active = TRUE
	`
	result, err := s.db.ExecContext(ctx, query, now, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to lock trial: %w", err)
	}
	return rowsApplied(result)
}

// ExtendTrial moves the expiry forward, bumps the extension counter and
// revives a locked trial.
func (s *PostgresStore) ExtendTrial(ctx context.Context, orgID int64, newExpiry time.Time, now time.Time) (bool, error) {
	query := `
		UPDATE organizations
		SET trial_expires_at = $1, trial_extension_count = trial_extension_count + 1,
		    is_active = TRUE, updated_at = $2
		WHERE id = $3 AND organization_type = 'trial' AND status = 'active'
	`
	result, err := s.db.ExecContext(ctx, query, newExpiry, now, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to extend trial: %w", err)
	}
	return rowsApplied(result)
}

// MarkWarningSent records the expiry warning timestamp. The IS NULL predicate
// is the anti-spam invariant: at most one warning per organization, ever.
func (s *PostgresStore) MarkWarningSent(ctx context.Context, orgID int64, at time.Time) (bool, error) {
	query := `
		UPDATE organizations
		SET trial_warning_sent_at = $1, updated_at = $1
		WHERE id = $2 AND trial_warning_sent_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, at, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to mark warning sent: %w", err)
	}
	return rowsApplied(result)
}

// ConvertTrial migrates a trial into a brand-new paid organization: creates
// the new row, adds the actor as owner, copies facilities and context facts,
// then freezes the old organization. Everything happens in one transaction;
// any failure rolls the whole migration back.
func (s *PostgresStore) ConvertTrial(ctx context.Context, p ConvertTrialParams) (*Organization, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO organizations (name, organization_type, status, billing_status, is_active,
		                           plan, token_balance, created_by_user_id)
		VALUES ($1, 'paid', 'active', 'pending', TRUE, $2, 0, $3)
		RETURNING ` + orgColumns + `
	`
	newOrg, err := scanOrganization(tx.QueryRowContext(ctx, query, p.NewName, PlanStarter, p.ActorUserID))
	if err != nil {
		return nil, fmt.Errorf("failed to create converted organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role, status)
		VALUES ($1, $2, $3, $4)
	`, newOrg.ID, p.ActorUserID, RoleOwner, MemberStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to add owner membership: %w", err)
	}

	// Append-only copy of tenant-scoped contextual data; the trial keeps its
	// own rows.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO facilities (organization_id, name, kind, created_at)
		SELECT $1, name, kind, created_at FROM facilities WHERE organization_id = $2
	`, newOrg.ID, p.TrialOrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to copy facilities: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO context_facts (organization_id, fact_key, fact_value, created_at)
		SELECT $1, fact_key, fact_value, created_at FROM context_facts WHERE organization_id = $2
	`, newOrg.ID, p.TrialOrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to copy context facts: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE organizations
		SET status = 'converted', is_active = FALSE, updated_at = $1
		WHERE id = $2 AND organization_type = 'trial' AND status = 'active'
	`, p.Now, p.TrialOrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to freeze trial organization: %w", err)
	}
	applied, err := rowsApplied(result)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("trial organization %d changed state mid-migration", p.TrialOrgID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return newOrg, nil
}

// DeleteExpiredDemos removes demo organizations created before the cutoff.
// Dependent rows go with the cascade. Re-running finds nothing.
func (s *PostgresStore) DeleteExpiredDemos(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM organizations
		WHERE organization_type = 'demo' AND trial_started_at < $1
	`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired demos: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

// ListTrialsExpiringOn lists active trials whose expiry falls on the given
// date and that have not been warned yet.
func (s *PostgresStore) ListTrialsExpiringOn(ctx context.Context, day time.Time) ([]*Organization, error) {
	query := `
		SELECT ` + orgColumns + `
		FROM organizations
		WHERE organization_type = 'trial' AND status = 'active' AND is_active = TRUE
		  AND trial_warning_sent_at IS NULL
		  AND trial_expires_at::date = $1::date
		ORDER BY id ASC
	`
	return s.listOrganizations(ctx, query, day)
}

// ListExpiredActiveTrials lists active trials whose expiry has passed.
func (s *PostgresStore) ListExpiredActiveTrials(ctx context.Context, now time.Time) ([]*Organization, error) {
	query := `
		SELECT ` + orgColumns + `
		FROM organizations
		WHERE organization_type = 'trial' AND status = 'active' AND is_active = TRUE
		  AND trial_expires_at < $1
		ORDER BY id ASC
	`
	return s.listOrganizations(ctx, query, now)
}

func (s *PostgresStore) listOrganizations(ctx context.Context, query string, args ...interface{}) ([]*Organization, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var out []*Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

// CreateUser creates a user row and returns its id.
func (s *PostgresStore) CreateUser(ctx context.Context, email, fullName string, isDemo bool) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, full_name, is_demo)
		VALUES ($1, $2, $3)
		RETURNING id
	`, email, fullName, isDemo).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

// GetMember retrieves a membership by (org, user).
func (s *PostgresStore) GetMember(ctx context.Context, orgID, userID int64) (*Member, error) {
	m := &Member{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, user_id, role, status, created_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// CountActiveMembers counts active members of an organization.
func (s *PostgresStore) CountActiveMembers(ctx context.Context, orgID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM organization_members
		WHERE organization_id = $1 AND status = 'active'
	`, orgID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

// ListAdmins lists the owner and admin members of an organization.
func (s *PostgresStore) ListAdmins(ctx context.Context, orgID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, user_id, role, status, created_at
		FROM organization_members
		WHERE organization_id = $1 AND status = 'active' AND role IN ('owner', 'admin')
		ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpsertLimits creates or replaces the Limits row for an organization.
func (s *PostgresStore) UpsertLimits(ctx context.Context, l *Limits) error {
	return upsertLimitsTx(ctx, s.db, l.OrganizationID, l)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertLimitsTx(ctx context.Context, e execer, orgID int64, l *Limits) error {
	rolesJSON, err := json.Marshal(l.EnabledAIRoles)
	if err != nil {
		return fmt.Errorf("failed to marshal enabled AI roles: %w", err)
	}
	_, err = e.ExecContext(ctx, `
		INSERT INTO org_limits (organization_id, max_projects, max_users, max_ai_calls_per_day,
		                        max_initiatives, max_storage_mb, enabled_ai_roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id) DO UPDATE
		SET max_projects = EXCLUDED.max_projects, max_users = EXCLUDED.max_users,
		    max_ai_calls_per_day = EXCLUDED.max_ai_calls_per_day,
		    max_initiatives = EXCLUDED.max_initiatives,
		    max_storage_mb = EXCLUDED.max_storage_mb,
		    enabled_ai_roles = EXCLUDED.enabled_ai_roles,
		    updated_at = NOW()
	`, orgID, l.MaxProjects, l.MaxUsers, l.MaxAICallsPerDay, l.MaxInitiatives,
		l.MaxStorageMB, rolesJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert limits: %w", err)
	}
	return nil
}

// GetLimits retrieves the Limits row for an organization.
func (s *PostgresStore) GetLimits(ctx context.Context, orgID int64) (*Limits, error) {
	l := &Limits{}
	var rolesJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT organization_id, max_projects, max_users, max_ai_calls_per_day,
		       max_initiatives, max_storage_mb, enabled_ai_roles, created_at, updated_at
		FROM org_limits
		WHERE organization_id = $1
	`, orgID).Scan(&l.OrganizationID, &l.MaxProjects, &l.MaxUsers, &l.MaxAICallsPerDay,
		&l.MaxInitiatives, &l.MaxStorageMB, &rolesJSON, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get limits: %w", err)
	}
	if err := json.Unmarshal(rolesJSON, &l.EnabledAIRoles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal enabled AI roles: %w", err)
	}
	return l, nil
}

// DeleteLimits removes the Limits row. Safe to call when none exists.
func (s *PostgresStore) DeleteLimits(ctx context.Context, orgID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM org_limits WHERE organization_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete limits: %w", err)
	}
	return nil
}

// IncrementUsage upserts the per-day counter row and adds amount to it.
func (s *PostgresStore) IncrementUsage(ctx context.Context, orgID int64, day time.Time, counter string, amount int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (organization_id, period_day, counter_name, value)
		VALUES ($1, $2::date, $3, $4)
		ON CONFLICT (organization_id, period_day, counter_name) DO UPDATE
		SET value = usage_counters.value + EXCLUDED.value
	`, orgID, day, counter, amount)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// GetUsage reads the per-day counter; a missing row reads as zero.
func (s *PostgresStore) GetUsage(ctx context.Context, orgID int64, day time.Time, counter string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM usage_counters
		WHERE organization_id = $1 AND period_day = $2::date AND counter_name = $3
	`, orgID, day, counter).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage: %w", err)
	}
	return value, nil
}

// AddFacility inserts a facility row.
func (s *PostgresStore) AddFacility(ctx context.Context, f *Facility) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO facilities (organization_id, name, kind)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, f.OrganizationID, f.Name, f.Kind).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add facility: %w", err)
	}
	return nil
}

// AddContextFact inserts a context fact row.
func (s *PostgresStore) AddContextFact(ctx context.Context, f *ContextFact) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO context_facts (organization_id, fact_key, fact_value)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, f.OrganizationID, f.Key, f.Value).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add context fact: %w", err)
	}
	return nil
}

// ListFacilities lists facilities for an organization.
func (s *PostgresStore) ListFacilities(ctx context.Context, orgID int64) ([]*Facility, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, kind, created_at
		FROM facilities
		WHERE organization_id = $1
		ORDER BY id ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list facilities: %w", err)
	}
	defer rows.Close()

	var out []*Facility
	for rows.Next() {
		f := &Facility{}
		if err := rows.Scan(&f.ID, &f.OrganizationID, &f.Name, &f.Kind, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan facility: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListContextFacts lists context facts for an organization.
func (s *PostgresStore) ListContextFacts(ctx context.Context, orgID int64) ([]*ContextFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, fact_key, fact_value, created_at
		FROM context_facts
		WHERE organization_id = $1
		ORDER BY id ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list context facts: %w", err)
	}
	defer rows.Close()

	var out []*ContextFact
	for rows.Next() {
		f := &ContextFact{}
		if err := rows.Scan(&f.ID, &f.OrganizationID, &f.Key, &f.Value, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan context fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func rowsApplied(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
