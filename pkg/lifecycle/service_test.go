package lifecycle

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianhq/veridian/pkg/audit"
	"github.com/veridianhq/veridian/pkg/config"
	"github.com/veridianhq/veridian/pkg/orgs"
	"github.com/veridianhq/veridian/pkg/policy"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// captureAudit records events in memory for assertions.
type captureAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (c *captureAudit) Log(ctx context.Context, event *audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureAudit) Close() error { return nil }

func (c *captureAudit) byType(t audit.EventType) []*audit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*audit.Event
	for _, e := range c.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		TrialDurationDays:  14,
		MaxExtensions:      2,
		MaxExtensionDays:   14,
		WarningLeadDays:    7,
		DemoTTL:            24 * time.Hour,
		InitialTokenCredit: 1000,
	}
}

func newTestService(t *testing.T) (*Service, *orgs.MemoryStore, *captureAudit) {
	t.Helper()
	store := orgs.NewMemoryStore()
	clock := func() time.Time { return testNow }
	engine := policy.NewEngine(store, config.DefaultLimitsConfig(), policy.WithClock(clock))
	sink := &captureAudit{}
	svc := NewService(store, engine, testConfig(),
		WithClock(clock),
		WithAuditLogger(sink),
	)
	return svc, store, sink
}

func TestCreateTrialOrganization(t *testing.T) {
	svc, store, sink := newTestService(t)

	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{
		Name:        "Acme Corp",
		OwnerUserID: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, orgs.OrgTypeTrial, org.OrgType)
	assert.Equal(t, orgs.OrgStatusActive, org.Status)
	assert.True(t, org.IsActive)
	require.NotNil(t, org.TrialExpiresAt)
	assert.Equal(t, testNow.Add(14*24*time.Hour), org.TrialExpiresAt.UTC())

	limits, err := store.GetLimits(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, limits.MaxAICallsPerDay)

	member, err := store.GetMember(context.Background(), org.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, orgs.RoleOwner, member.Role)

	assert.Len(t, sink.byType(audit.EventTypeTrialCreated), 1)
}

func TestCreateTrialOrganization_RequiresName(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "  ", OwnerUserID: 1})
	assert.Error(t, err)
}

func TestCreateDemoOrganization(t *testing.T) {
	svc, store, sink := newTestService(t)

	result, err := svc.CreateDemoOrganization(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Email, "demo-"))
	assert.True(t, strings.HasSuffix(result.Email, "@demo.veridian.app"))
	assert.Equal(t, orgs.OrgTypeDemo, result.Organization.OrgType)
	require.NotNil(t, result.Organization.TrialExpiresAt)
	assert.Equal(t, testNow.Add(24*time.Hour), result.Organization.TrialExpiresAt.UTC())

	limits, err := store.GetLimits(context.Background(), result.Organization.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, limits.MaxAICallsPerDay)
	assert.Equal(t, 1, limits.MaxUsers)

	assert.Len(t, sink.byType(audit.EventTypeDemoCreated), 1)
}

func TestCreateDemoOrganization_WithEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	result, err := svc.CreateDemoOrganization(context.Background(), "prospect@example.com")
	require.NoError(t, err)
	assert.Equal(t, "prospect@example.com", result.Email)
}

func TestUpgradeToPaid_Idempotent(t *testing.T) {
	svc, store, sink := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme", OwnerUserID: 1})
	require.NoError(t, err)

	first, err := svc.UpgradeToPaid(context.Background(), org.ID, orgs.PlanPro, 1)
	require.NoError(t, err)
	assert.False(t, first.AlreadyUpgraded)
	assert.Equal(t, orgs.OrgTypePaid, first.Organization.OrgType)
	assert.Equal(t, orgs.PlanPro, first.Organization.Plan)
	assert.Nil(t, first.Organization.TrialExpiresAt)

	// Limits are lifted on upgrade.
	_, err = store.GetLimits(context.Background(), org.ID)
	assert.Equal(t, orgs.ErrNotFound, err)

	second, err := svc.UpgradeToPaid(context.Background(), org.ID, orgs.PlanPro, 1)
	require.NoError(t, err)
	assert.True(t, second.AlreadyUpgraded)
	assert.Equal(t, orgs.OrgTypePaid, second.Organization.OrgType)

	// Exactly one upgrade event despite two calls.
	assert.Len(t, sink.byType(audit.EventTypeOrgUpgraded), 1)
}

func TestUpgradeToPaid_DemoRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	result, err := svc.CreateDemoOrganization(context.Background(), "")
	require.NoError(t, err)

	_, err = svc.UpgradeToPaid(context.Background(), result.Organization.ID, orgs.PlanStarter, result.UserID)
	require.Error(t, err)
	coded, ok := orgs.AsCoded(err)
	require.True(t, ok)
	assert.Equal(t, orgs.CodeNotTrial, coded.Code)
}

func TestUpgradeToPaid_UnknownOrg(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.UpgradeToPaid(context.Background(), 404, orgs.PlanStarter, 1)
	require.Error(t, err)
	coded, ok := orgs.AsCoded(err)
	require.True(t, ok)
	assert.Equal(t, orgs.CodeOrgNotFound, coded.Code)
}

func TestExtendTrial_AddsToCurrentExpiry(t *testing.T) {
	svc, _, sink := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme", OwnerUserID: 1})
	require.NoError(t, err)

	extended, err := svc.ExtendTrial(context.Background(), org.ID, 7, "customer evaluating SSO", 99)
	require.NoError(t, err)

	// 14 remaining + 7 extension = 21 days out.
	assert.Equal(t, testNow.Add(21*24*time.Hour), extended.TrialExpiresAt.UTC())
	assert.Equal(t, 1, extended.TrialExtensionCount)

	events := sink.byType(audit.EventTypeTrialExtended)
	require.Len(t, events, 1)
	assert.Equal(t, "customer evaluating SSO", events[0].Metadata["reason"])
}

func TestExtendTrial_RevivesLockedTrial(t *testing.T) {
	svc, store, _ := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme", OwnerUserID: 1})
	require.NoError(t, err)

	// Force the trial into the expired-and-locked state.
	expired := testNow.Add(-48 * time.Hour)
	_, err = store.ExtendTrial(context.Background(), org.ID, expired, testNow)
	require.NoError(t, err)
	locked, err := svc.LockExpiredTrial(context.Background(), org.ID)
	require.NoError(t, err)
	require.True(t, locked)

	extended, err := svc.ExtendTrial(context.Background(), org.ID, 5, "second chance", 99)
	require.NoError(t, err)
	assert.True(t, extended.IsActive)

	// The expired clock restarts from now, not from the stale expiry.
	assert.Equal(t, testNow.Add(5*24*time.Hour), extended.TrialExpiresAt.UTC())
}

func TestExtendTrial_ValidationOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme", OwnerUserID: 1})
	require.NoError(t, err)
	demo, err := svc.CreateDemoOrganization(context.Background(), "")
	require.NoError(t, err)

	tests := []struct {
		name  string
		orgID int64
		days  int
		code  orgs.Code
	}{
		{"unknown org", 404, 7, orgs.CodeOrgNotFound},
		{"not a trial", demo.Organization.ID, 7, orgs.CodeNotTrial},
		{"zero days", org.ID, 0, orgs.CodeInvalidDays},
		{"negative days", org.ID, -3, orgs.CodeInvalidDays},
		{"above ceiling", org.ID, 30, orgs.CodeInvalidDays},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ExtendTrial(context.Background(), tt.orgID, tt.days, "because", 99)
			require.Error(t, err)
			coded, ok := orgs.AsCoded(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, coded.Code)
		})
	}
}

func TestExtendTrial_RequiresReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme", OwnerUserID: 1})
	require.NoError(t, err)

	_, err = svc.ExtendTrial(context.Background(), org.ID, 7, "   ", 99)
	assert.Error(t, err)
}

func TestExtendTrial_Bounded(t *testing.T) {
	svc, _, _ := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme", OwnerUserID: 1})
	require.NoError(t, err)

	_, err = svc.ExtendTrial(context.Background(), org.ID, 7, "first", 99)
	require.NoError(t, err)
	_, err = svc.ExtendTrial(context.Background(), org.ID, 7, "second", 99)
	require.NoError(t, err)

	_, err = svc.ExtendTrial(context.Background(), org.ID, 7, "third", 99)
	require.Error(t, err)
	coded, ok := orgs.AsCoded(err)
	require.True(t, ok)
	assert.Equal(t, orgs.CodeExtensionLimitReached, coded.Code)
}

func TestLockExpiredTrial_AppliesOnce(t *testing.T) {
	svc, store, sink := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme", OwnerUserID: 1})
	require.NoError(t, err)
	_, err = store.ExtendTrial(context.Background(), org.ID, testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)

	locked, err := svc.LockExpiredTrial(context.Background(), org.ID)
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = svc.LockExpiredTrial(context.Background(), org.ID)
	require.NoError(t, err)
	assert.False(t, locked)

	assert.Len(t, sink.byType(audit.EventTypeTrialLocked), 1)
}

func TestConvertTrialToOrg(t *testing.T) {
	svc, store, sink := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme Trial", OwnerUserID: 1})
	require.NoError(t, err)

	require.NoError(t, store.AddFacility(context.Background(), &orgs.Facility{
		OrganizationID: org.ID, Name: "Plant A", Kind: "factory",
	}))
	require.NoError(t, store.AddContextFact(context.Background(), &orgs.ContextFact{
		OrganizationID: org.ID, Key: "industry", Value: "manufacturing",
	}))

	newOrg, err := svc.ConvertTrialToOrg(context.Background(), org.ID, 1, "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, orgs.OrgTypePaid, newOrg.OrgType)
	assert.Equal(t, "Acme Corp", newOrg.Name)
	assert.Equal(t, orgs.BillingPending, newOrg.BillingStatus)

	// Contextual data is copied, the trial keeps its rows and is frozen.
	facilities, err := store.ListFacilities(context.Background(), newOrg.ID)
	require.NoError(t, err)
	assert.Len(t, facilities, 1)
	old, err := store.GetOrganization(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, orgs.OrgStatusConverted, old.Status)
	assert.False(t, old.IsActive)
	oldFacilities, err := store.ListFacilities(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Len(t, oldFacilities, 1)

	assert.Len(t, sink.byType(audit.EventTypeOrgConverted), 1)
}

func TestUpgradeToPaid_ConvertedTrialRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme", OwnerUserID: 1})
	require.NoError(t, err)

	_, err = svc.ConvertTrialToOrg(context.Background(), org.ID, 1, "Acme Inc")
	require.NoError(t, err)

	// The frozen trial row keeps its stable code instead of a generic error.
	_, err = svc.UpgradeToPaid(context.Background(), org.ID, orgs.PlanPro, 1)
	require.Error(t, err)
	coded, ok := orgs.AsCoded(err)
	require.True(t, ok)
	assert.Equal(t, orgs.CodeNotTrial, coded.Code)
}

func TestConvertTrialToOrg_OwnerOnly(t *testing.T) {
	svc, store, _ := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme", OwnerUserID: 1})
	require.NoError(t, err)
	store.AddMember(org.ID, 2, orgs.RoleAdmin)

	_, err = svc.ConvertTrialToOrg(context.Background(), org.ID, 2, "Acme Corp")
	require.Error(t, err)
	coded, ok := orgs.AsCoded(err)
	require.True(t, ok)
	assert.Equal(t, orgs.CodeNotOwner, coded.Code)
}

func TestConvertTrialToOrg_MigrationFailureLeavesTrialUntouched(t *testing.T) {
	svc, store, _ := newTestService(t)
	org, err := svc.CreateTrialOrganization(context.Background(), CreateTrialParams{Name: "Acme", OwnerUserID: 1})
	require.NoError(t, err)

	store.FailConvertCopy = true
	_, err = svc.ConvertTrialToOrg(context.Background(), org.ID, 1, "Acme Corp")
	require.Error(t, err)
	coded, ok := orgs.AsCoded(err)
	require.True(t, ok)
	assert.Equal(t, orgs.CodeMigrationFailed, coded.Code)

	// The trial is fully usable after the failed migration.
	current, err := store.GetOrganization(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, orgs.OrgStatusActive, current.Status)
	assert.True(t, current.IsActive)
	assert.Equal(t, orgs.OrgTypeTrial, current.OrgType)
}

func TestCleanupExpiredDemos(t *testing.T) {
	svc, store, sink := newTestService(t)

	stale, err := svc.CreateDemoOrganization(context.Background(), "")
	require.NoError(t, err)
	fresh, err := svc.CreateDemoOrganization(context.Background(), "")
	require.NoError(t, err)

	// Age the first demo past the TTL.
	store.SetTrialStartedAt(stale.Organization.ID, testNow.Add(-25*time.Hour))

	count, err := svc.CleanupExpiredDemos(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = store.GetOrganization(context.Background(), stale.Organization.ID)
	assert.Equal(t, orgs.ErrNotFound, err)
	_, err = store.GetOrganization(context.Background(), fresh.Organization.ID)
	assert.NoError(t, err)

	// Re-running reaps nothing and emits nothing new.
	count, err = svc.CleanupExpiredDemos(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Len(t, sink.byType(audit.EventTypeDemosCleaned), 1)
}
