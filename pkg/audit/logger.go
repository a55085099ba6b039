package audit

import (
	"context"
)

// Logger is the interface for the append-only audit sink. Implementations
// may fail; callers treat emission as best-effort and never let a sink error
// reverse or block a state transition.
type Logger interface {
	// Log appends an audit event.
	Log(ctx context.Context, event *Event) error

	// Close flushes and closes the sink.
	Close() error
}

// NopLogger is a Logger that discards everything. Used when auditing is
// disabled and as the default in tests.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                { return nil }
