package orgs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation used by service-level
// tests. It mirrors the transactional semantics of PostgresStore: multi-row
// writes either fully apply or leave no trace.
type MemoryStore struct {
	mu sync.Mutex

	nextOrgID    int64
	nextUserID   int64
	nextMemberID int64
	nextRowID    int64

	orgs       map[int64]*Organization
	users      map[int64]string
	members    map[int64][]*Member
	limits     map[int64]*Limits
	usage      map[string]int64
	facilities map[int64][]*Facility
	facts      map[int64][]*ContextFact

	// FailConvertCopy, when set, forces the contextual-data copy step of
	// ConvertTrial to fail so callers can exercise rollback behavior.
	FailConvertCopy bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:       make(map[int64]*Organization),
		users:      make(map[int64]string),
		members:    make(map[int64][]*Member),
		limits:     make(map[int64]*Limits),
		usage:      make(map[string]int64),
		facilities: make(map[int64][]*Facility),
		facts:      make(map[int64][]*ContextFact),
	}
}

func (s *MemoryStore) usageKey(orgID int64, day time.Time, counter string) string {
	return fmt.Sprintf("%d|%s|%s", orgID, day.UTC().Format("2006-01-02"), counter)
}

func cloneOrg(org *Organization) *Organization {
	c := *org
	if org.TrialStartedAt != nil {
		t := *org.TrialStartedAt
		c.TrialStartedAt = &t
	}
	if org.TrialExpiresAt != nil {
		t := *org.TrialExpiresAt
		c.TrialExpiresAt = &t
	}
	if org.TrialWarningSentAt != nil {
		t := *org.TrialWarningSentAt
		c.TrialWarningSentAt = &t
	}
	return &c
}

// CreateOrganization creates an organization, owner membership and optional
// Limits atomically.
func (s *MemoryStore) CreateOrganization(ctx context.Context, p CreateOrgParams) (*Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOrgID++
	now := time.Now().UTC()
	org := &Organization{
		ID:              s.nextOrgID,
		Name:            p.Name,
		OrgType:         p.OrgType,
		Status:          OrgStatusActive,
		BillingStatus:   p.BillingStatus,
		IsActive:        true,
		Plan:            p.Plan,
		TokenBalance:    p.TokenBalance,
		TrialStartedAt:  p.TrialStartedAt,
		TrialExpiresAt:  p.TrialExpiresAt,
		CreatedByUserID: p.CreatedByUserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.orgs[org.ID] = org

	s.nextMemberID++
	s.members[org.ID] = append(s.members[org.ID], &Member{
		ID:             s.nextMemberID,
		OrganizationID: org.ID,
		UserID:         p.OwnerUserID,
		Role:           RoleOwner,
		Status:         MemberStatusActive,
		CreatedAt:      now,
	})

	if p.Limits != nil {
		l := *p.Limits
		l.OrganizationID = org.ID
		l.CreatedAt = now
		l.UpdatedAt = now
		s.limits[org.ID] = &l
	}
	return cloneOrg(org), nil
}

// GetOrganization retrieves an organization by ID.
func (s *MemoryStore) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrg(org), nil
}

// MarkUpgraded flips a trial organization to paid.
func (s *MemoryStore) MarkUpgraded(ctx context.Context, orgID int64, plan PlanTier, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok || org.OrgType != OrgTypeTrial || org.Status != OrgStatusActive {
		return false, nil
	}
	org.OrgType = OrgTypePaid
	org.Plan = plan
	org.TrialStartedAt = nil
	org.TrialExpiresAt = nil
	org.TrialWarningSentAt = nil
	org.IsActive = true
	org.UpdatedAt = now
	return true, nil
}

// LockTrial deactivates an active trial.
func (s *MemoryStore) LockTrial(ctx context.Context, orgID int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok || org.OrgType != OrgTypeTrial || org.Status != OrgStatusActive || !org.IsActive {
		return false, nil
	}
	org.IsActive = false
	org.UpdatedAt = now
	return true, nil
}

// ExtendTrial applies a new expiry, bumps the counter and revives the trial.
func (s *MemoryStore) ExtendTrial(ctx context.Context, orgID int64, newExpiry time.Time, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok || org.OrgType != OrgTypeTrial || org.Status != OrgStatusActive {
		return false, nil
	}
	expiry := newExpiry
	org.TrialExpiresAt = &expiry
	org.TrialExtensionCount++
	org.IsActive = true
	org.UpdatedAt = now
	return true, nil
}

// MarkWarningSent sets the warning timestamp if it is still unset.
func (s *MemoryStore) MarkWarningSent(ctx context.Context, orgID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok || org.TrialWarningSentAt != nil {
		return false, nil
	}
	sent := at
	org.TrialWarningSentAt = &sent
	org.UpdatedAt = at
	return true, nil
}

// ConvertTrial migrates a trial into a new paid organization atomically.
func (s *MemoryStore) ConvertTrial(ctx context.Context, p ConvertTrialParams) (*Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.orgs[p.TrialOrgID]
	if !ok || old.OrgType != OrgTypeTrial || old.Status != OrgStatusActive {
		return nil, fmt.Errorf("trial organization %d changed state mid-migration", p.TrialOrgID)
	}
	if s.FailConvertCopy {
		return nil, fmt.Errorf("failed to copy context facts: injected failure")
	}

	s.nextOrgID++
	newOrg := &Organization{
		ID:              s.nextOrgID,
		Name:            p.NewName,
		OrgType:         OrgTypePaid,
		Status:          OrgStatusActive,
		BillingStatus:   BillingPending,
		IsActive:        true,
		Plan:            PlanStarter,
		CreatedByUserID: p.ActorUserID,
		CreatedAt:       p.Now,
		UpdatedAt:       p.Now,
	}
	s.orgs[newOrg.ID] = newOrg

	s.nextMemberID++
	s.members[newOrg.ID] = append(s.members[newOrg.ID], &Member{
		ID:             s.nextMemberID,
		OrganizationID: newOrg.ID,
		UserID:         p.ActorUserID,
		Role:           RoleOwner,
		Status:         MemberStatusActive,
		CreatedAt:      p.Now,
	})

	for _, f := range s.facilities[p.TrialOrgID] {
		s.nextRowID++
		s.facilities[newOrg.ID] = append(s.facilities[newOrg.ID], &Facility{
			ID: s.nextRowID, OrganizationID: newOrg.ID,
			Name: f.Name, Kind: f.Kind, CreatedAt: f.CreatedAt,
		})
	}
	for _, f := range s.facts[p.TrialOrgID] {
		s.nextRowID++
		s.facts[newOrg.ID] = append(s.facts[newOrg.ID], &ContextFact{
			ID: s.nextRowID, OrganizationID: newOrg.ID,
			Key: f.Key, Value: f.Value, CreatedAt: f.CreatedAt,
		})
	}

	old.Status = OrgStatusConverted
	old.IsActive = false
	old.UpdatedAt = p.Now
	return cloneOrg(newOrg), nil
}

// DeleteExpiredDemos removes demo organizations older than the cutoff along
// with their dependent rows.
func (s *MemoryStore) DeleteExpiredDemos(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, org := range s.orgs {
		if org.OrgType != OrgTypeDemo || org.TrialStartedAt == nil || !org.TrialStartedAt.Before(cutoff) {
			continue
		}
		delete(s.orgs, id)
		delete(s.members, id)
		delete(s.limits, id)
		delete(s.facilities, id)
		delete(s.facts, id)
		for key := range s.usage {
			if strings.HasPrefix(key, fmt.Sprintf("%d|", id)) {
				delete(s.usage, key)
			}
		}
		count++
	}
	return count, nil
}

// ListTrialsExpiringOn lists unwarned active trials expiring on the given day.
func (s *MemoryStore) ListTrialsExpiringOn(ctx context.Context, day time.Time) ([]*Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := day.UTC().Format("2006-01-02")
	var out []*Organization
	for _, org := range s.orgs {
		if org.OrgType != OrgTypeTrial || org.Status != OrgStatusActive || !org.IsActive {
			continue
		}
		if org.TrialWarningSentAt != nil || org.TrialExpiresAt == nil {
			continue
		}
		if org.TrialExpiresAt.UTC().Format("2006-01-02") == target {
			out = append(out, cloneOrg(org))
		}
	}
	sortOrgsByID(out)
	return out, nil
}

// ListExpiredActiveTrials lists active trials whose expiry has passed.
func (s *MemoryStore) ListExpiredActiveTrials(ctx context.Context, now time.Time) ([]*Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Organization
	for _, org := range s.orgs {
		if org.OrgType != OrgTypeTrial || org.Status != OrgStatusActive || !org.IsActive {
			continue
		}
		if org.TrialExpiresAt != nil && org.TrialExpiresAt.Before(now) {
			out = append(out, cloneOrg(org))
		}
	}
	sortOrgsByID(out)
	return out, nil
}

func sortOrgsByID(orgs []*Organization) {
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })
}

// CreateUser creates a user and returns its id.
func (s *MemoryStore) CreateUser(ctx context.Context, email, fullName string, isDemo bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	s.users[s.nextUserID] = email
	return s.nextUserID, nil
}

// GetMember retrieves a membership by (org, user).
func (s *MemoryStore) GetMember(ctx context.Context, orgID, userID int64) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[orgID] {
		if m.UserID == userID {
			c := *m
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// CountActiveMembers counts active members of an organization.
func (s *MemoryStore) CountActiveMembers(ctx context.Context, orgID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, m := range s.members[orgID] {
		if m.Status == MemberStatusActive {
			count++
		}
	}
	return count, nil
}

// ListAdmins lists owner and admin members.
func (s *MemoryStore) ListAdmins(ctx context.Context, orgID int64) ([]*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Member
	for _, m := range s.members[orgID] {
		if m.Status == MemberStatusActive && (m.Role == RoleOwner || m.Role == RoleAdmin) {
			c := *m
			out = append(out, &c)
		}
	}
	return out, nil
}

// AddMember adds a membership row. Test helper beyond the Store interface.
func (s *MemoryStore) AddMember(orgID, userID int64, role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMemberID++
	s.members[orgID] = append(s.members[orgID], &Member{
		ID:             s.nextMemberID,
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		Status:         MemberStatusActive,
		CreatedAt:      time.Now().UTC(),
	})
}

// SetTrialStartedAt rewrites the trial start timestamp. Test helper beyond
// the Store interface.
func (s *MemoryStore) SetTrialStartedAt(orgID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org, ok := s.orgs[orgID]; ok {
		t := at
		org.TrialStartedAt = &t
	}
}

// UpsertLimits creates or replaces the Limits row.
func (s *MemoryStore) UpsertLimits(ctx context.Context, l *Limits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *l
	c.UpdatedAt = time.Now().UTC()
	s.limits[l.OrganizationID] = &c
	return nil
}

// GetLimits retrieves the Limits row.
func (s *MemoryStore) GetLimits(ctx context.Context, orgID int64) (*Limits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limits[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *l
	return &c, nil
}

// DeleteLimits removes the Limits row; safe when none exists.
func (s *MemoryStore) DeleteLimits(ctx context.Context, orgID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limits, orgID)
	return nil
}

// IncrementUsage adds amount to the per-day counter.
func (s *MemoryStore) IncrementUsage(ctx context.Context, orgID int64, day time.Time, counter string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[s.usageKey(orgID, day, counter)] += amount
	return nil
}

// GetUsage reads the per-day counter; missing rows read as zero.
func (s *MemoryStore) GetUsage(ctx context.Context, orgID int64, day time.Time, counter string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[s.usageKey(orgID, day, counter)], nil
}

// AddFacility inserts a facility row.
func (s *MemoryStore) AddFacility(ctx context.Context, f *Facility) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRowID++
	c := *f
	c.ID = s.nextRowID
	c.CreatedAt = time.Now().UTC()
	s.facilities[f.OrganizationID] = append(s.facilities[f.OrganizationID], &c)
	f.ID = c.ID
	return nil
}

// AddContextFact inserts a context fact row.
func (s *MemoryStore) AddContextFact(ctx context.Context, f *ContextFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRowID++
	c := *f
	c.ID = s.nextRowID
	c.CreatedAt = time.Now().UTC()
	s.facts[f.OrganizationID] = append(s.facts[f.OrganizationID], &c)
	f.ID = c.ID
	return nil
}

// ListFacilities lists facilities for an organization.
func (s *MemoryStore) ListFacilities(ctx context.Context, orgID int64) ([]*Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Facility, 0, len(s.facilities[orgID]))
	for _, f := range s.facilities[orgID] {
		c := *f
		out = append(out, &c)
	}
	return out, nil
}

// ListContextFacts lists context facts for an organization.
func (s *MemoryStore) ListContextFacts(ctx context.Context, orgID int64) ([]*ContextFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ContextFact, 0, len(s.facts[orgID]))
	for _, f := range s.facts[orgID] {
		c := *f
		out = append(out, &c)
	}
	return out, nil
}
