// Package lifecycle orchestrates the tenant lifecycle state machine: demo
// and trial provisioning, trial extension and expiry, in-place upgrade to
// paid and trial-to-organization conversion.
//
// The store commits each transition atomically and the service layers the
// business rules on top: bounded extensions, owner-only conversion,
// idempotent upgrades. Audit events, metrics and notifications are emitted
// after the transition commits and are strictly best-effort.
package lifecycle
