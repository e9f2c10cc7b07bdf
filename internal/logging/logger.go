// Package logging defines the structured logger used across the asset service.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are key-value pairs:
//
//	log.Info(ctx, "asset stored", "storage_name", name, "owner_id", owner)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	// Warn is for recovered failures such as a skipped thumbnail.
	Warn(ctx context.Context, msg string, args ...any)
	// Error is for faults that need reconciliation.
	Error(ctx context.Context, msg string, args ...any)
	With(args ...any) Logger
}
