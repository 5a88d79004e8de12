package position

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbitSignalBot/internal/domain"
	"upbitSignalBot/internal/ports"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func testPosition() domain.Position {
	return domain.Position{
		Market:     "KRW-BTC",
		Side:       domain.SideLong,
		EntryPrice: 50000000,
		Amount:     0.0002,
		TakeProfit: 0.01,
		StopLoss:   0.005,
		OrderID:    "order-1",
	}
}

func TestManager_OpenAndGet(t *testing.T) {
	m := NewManager(noopLogger{})
	assert.False(t, m.HasOpen())

	require.NoError(t, m.Open(context.Background(), testPosition()))
	assert.True(t, m.HasOpen())

	pos, ok := m.Get()
	require.True(t, ok)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	assert.False(t, pos.OpenedAt.IsZero())
}

func TestManager_SecondOpenFails(t *testing.T) {
	m := NewManager(noopLogger{})
	require.NoError(t, m.Open(context.Background(), testPosition()))

	err := m.Open(context.Background(), testPosition())
	assert.ErrorIs(t, err, ports.ErrPositionAlreadyOpen)
}

func TestManager_Close(t *testing.T) {
	m := NewManager(noopLogger{})
	require.NoError(t, m.Open(context.Background(), testPosition()))

	closed, ok := m.Close(context.Background())
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.False(t, m.HasOpen())

	// The closed position stays readable for status reporting.
	last, ok := m.Get()
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosed, last.Status)
	assert.Equal(t, "KRW-BTC", last.Market)

	// Closing again is a no-op.
	_, ok = m.Close(context.Background())
	assert.False(t, ok)
}

func TestManager_OpenReplacesClosedPosition(t *testing.T) {
	m := NewManager(noopLogger{})
	require.NoError(t, m.Open(context.Background(), testPosition()))
	_, ok := m.Close(context.Background())
	require.True(t, ok)

	next := testPosition()
	next.OrderID = "order-2"
	require.NoError(t, m.Open(context.Background(), next))

	pos, ok := m.Get()
	require.True(t, ok)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	assert.Equal(t, "order-2", pos.OrderID)
}

func TestManager_GetReturnsCopy(t *testing.T) {
	m := NewManager(noopLogger{})
	require.NoError(t, m.Open(context.Background(), testPosition()))

	pos, _ := m.Get()
	pos.EntryPrice = 1

	again, _ := m.Get()
	assert.InDelta(t, 50000000.0, again.EntryPrice, 1e-9)
}

func TestManager_ReplaceWithRecovered(t *testing.T) {
	m := NewManager(noopLogger{})
	require.NoError(t, m.Open(context.Background(), testPosition()))

	recovered := testPosition()
	recovered.EntryPrice = 48000000
	m.ReplaceWithRecovered(context.Background(), recovered)

	pos, ok := m.Get()
	require.True(t, ok)
	assert.InDelta(t, 48000000.0, pos.EntryPrice, 1e-9)
	assert.Equal(t, domain.RecoveredOrderID, pos.OrderID)
}

func TestPosition_TriggerPrices(t *testing.T) {
	pos := testPosition()
	pos.EntryPrice = 100
	pos.TakeProfit = 0.10
	pos.StopLoss = 0.05
	assert.InDelta(t, 110.0, pos.TakeProfitPrice(), 1e-9)
	assert.InDelta(t, 95.0, pos.StopLossPrice(), 1e-9)
}
