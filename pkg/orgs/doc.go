// Package orgs is the persistence boundary for tenants.
//
// # Overview
//
// An organization moves through a fixed lifecycle: ephemeral demo, time-boxed
// trial, and paid. This package owns the Organization, Member, Limits and
// UsageCounter rows plus the tenant-scoped contextual data (facilities,
// context facts) that a trial conversion copies forward.
//
// Two implementations of the Store interface are provided:
//
//   - PostgresStore: raw SQL over database/sql. Multi-row writes run in a
//     single transaction; conditional transitions carry their precondition in
//     the UPDATE predicate and report whether any row was affected, so
//     concurrent callers are serialized by the database rather than by locks.
//   - MemoryStore: mutex-guarded maps with the same semantics, for
//     service-level tests.
//
// # Conditional transitions
//
//	applied, err := store.LockTrial(ctx, orgID, now)
//	if !applied {
//		// already locked, upgraded or converted by a concurrent caller
//	}
//
// # Related Packages
//
//   - pkg/policy: capability/quota snapshots over this store
//   - pkg/lifecycle: the state machine driving the transitions
package orgs
