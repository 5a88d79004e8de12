// Package position owns the bot's single-position state. All reads and
// writes go through the Manager so the rest of the app never shares a
// mutable Position.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"upbitSignalBot/internal/domain"
	"upbitSignalBot/internal/ports"
)

// Manager holds at most one open position. It is safe for concurrent use;
// accessors return copies so callers cannot mutate the held state.
type Manager struct {
	mu      sync.Mutex
	current *domain.Position
	logger  ports.Logger
}

// NewManager creates a position manager.
func NewManager(logger ports.Logger) *Manager {
	return &Manager{logger: logger}
}

// HasOpen reports whether an open position is currently held.
func (m *Manager) HasOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.IsOpen()
}

// Get returns a copy of the current position and whether one is held.
func (m *Manager) Get() (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return domain.Position{}, false
	}
	return *m.current, true
}

// Open installs a new open position. It fails with ErrPositionAlreadyOpen if
// one is already held.
func (m *Manager) Open(ctx context.Context, pos domain.Position) error {
	op := "Open"
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.IsOpen() {
		return fmt.Errorf("%s failed for %s: %w", op, pos.Market, ports.ErrPositionAlreadyOpen)
	}

	pos.Status = domain.StatusOpen
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now()
	}
	m.current = &pos
	m.logger.Info(ctx, "Position opened", map[string]interface{}{
		"market": pos.Market, "entryPrice": pos.EntryPrice, "amount": pos.Amount,
	})
	return nil
}

// Close marks the held position closed and returns a copy of it. The
// closed position stays readable through Get until the next Open replaces
// it. Closing with no open position is a no-op.
func (m *Manager) Close(ctx context.Context) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.IsOpen() {
		return domain.Position{}, false
	}
	m.current.Status = domain.StatusClosed
	closed := *m.current
	m.logger.Info(ctx, "Position closed", map[string]interface{}{"market": closed.Market})
	return closed, true
}

// ReplaceWithRecovered overwrites whatever is held with a position rebuilt
// from exchange balances at startup. Unlike Open it never fails: recovery is
// authoritative about what the account actually holds.
func (m *Manager) ReplaceWithRecovered(ctx context.Context, pos domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos.Status = domain.StatusOpen
	pos.OrderID = domain.RecoveredOrderID
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now()
	}
	m.current = &pos
	m.logger.Warn(ctx, "Position replaced from recovery", map[string]interface{}{
		"market": pos.Market, "entryPrice": pos.EntryPrice, "amount": pos.Amount,
	})
}
