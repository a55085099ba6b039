// Package audit provides the append-only audit event sink for tenant
// lifecycle transitions.
//
// Emission is best-effort by contract: a failing sink must never block or
// reverse the state change it describes. Callers log sink errors locally and
// move on.
package audit
