package orgs

import (
	"github.com/veridianhq/veridian/pkg/database"
)

// Migrations returns the core tenant schema migrations in order.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					full_name VARCHAR(255) NOT NULL DEFAULT '',
					is_demo BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					organization_type VARCHAR(16) NOT NULL,
					status VARCHAR(16) NOT NULL DEFAULT 'active',
					billing_status VARCHAR(16) NOT NULL DEFAULT 'pending',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					plan VARCHAR(32) NOT NULL DEFAULT 'free',
					token_balance BIGINT NOT NULL DEFAULT 0,
					trial_started_at TIMESTAMPTZ,
					trial_expires_at TIMESTAMPTZ,
					trial_extension_count INT NOT NULL DEFAULT 0,
					trial_warning_sent_at TIMESTAMPTZ,
					created_by_user_id BIGINT NOT NULL REFERENCES users(id),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_organizations_type ON organizations(organization_type);
				CREATE INDEX IF NOT EXISTS idx_organizations_trial_expires_at ON organizations(trial_expires_at)
					WHERE trial_expires_at IS NOT NULL;
			`,
		},
		{
			Version:     3,
			Description: "Create organization_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_members (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(16) NOT NULL,
					status VARCHAR(16) NOT NULL DEFAULT 'active',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_org_members_org_id ON organization_members(organization_id);
				CREATE INDEX IF NOT EXISTS idx_org_members_user_id ON organization_members(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create org_limits table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_limits (
					organization_id BIGINT PRIMARY KEY REFERENCES organizations(id) ON DELETE CASCADE,
					max_projects INT NOT NULL,
					max_users INT NOT NULL,
					max_ai_calls_per_day INT NOT NULL,
					max_initiatives INT NOT NULL,
					max_storage_mb BIGINT NOT NULL,
					enabled_ai_roles JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     5,
			Description: "Create usage_counters table",
			SQL: `
				CREATE TABLE IF NOT EXISTS usage_counters (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					period_day DATE NOT NULL,
					counter_name VARCHAR(64) NOT NULL,
					value BIGINT NOT NULL DEFAULT 0,
					UNIQUE(organization_id, period_day, counter_name)
				);
			`,
		},
		{
			Version:     6,
			Description: "Create facilities and context_facts tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS facilities (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					kind VARCHAR(64) NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_facilities_org_id ON facilities(organization_id);

				CREATE TABLE IF NOT EXISTS context_facts (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					fact_key VARCHAR(255) NOT NULL,
					fact_value TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_context_facts_org_id ON context_facts(organization_id);
			`,
		},
	}
}
