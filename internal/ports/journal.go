package ports

import (
	"context"

	"upbitSignalBot/internal/domain"
)

// EventJournal persists position lifecycle events for the dashboard's history
// view. It is a write-mostly sink; the trading core never reads position
// state back from it.
type EventJournal interface {
	// Record saves a lifecycle event and returns its assigned ID.
	Record(ctx context.Context, event *domain.LifecycleEvent) (int64, error)
	// Recent retrieves the most recent events, newest first, up to a limit.
	Recent(ctx context.Context, limit int) ([]*domain.LifecycleEvent, error)
}
