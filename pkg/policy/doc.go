// Package policy evaluates per-tenant access rules for demo, trial and paid
// organizations.
//
// The engine is stateless: every Authorize call reads the organization, its
// limits row and today's usage counters from the store and derives a
// Decision. Expected denials (demo read-only, expired trial, quota
// exceeded) are returned as Decision values with stable codes; errors are
// reserved for store failures and unknown organizations.
//
// Quota enforcement is soft. Authorize reads the counter and IncrementUsage
// writes it after the action succeeds, so concurrent bursts can overshoot a
// ceiling by a few calls. The ceilings are product guardrails, not billing
// meters.
package policy
