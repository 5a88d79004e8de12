package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"upbitSignalBot/internal/ports"
)

// resolveFill settles what actually happened to a freshly placed market
// order. The happy path is WaitOrderFilled returning a terminal order. On a
// timeout or partial fill it re-checks once, cancels whatever is still
// resting, waits one poll for the cancel to settle, and judges the final
// snapshot: done or any executed volume counts, so a partial fill that
// survives the cancel is reported rather than lost.
func resolveFill(ctx context.Context, exchange ports.ExchangeClient, logger ports.Logger, poll time.Duration, orderID string) (*ports.Order, error) {
	order, err := exchange.WaitOrderFilled(ctx, orderID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, ports.ErrPartiallyFilled) && !errors.Is(err, ports.ErrFillTimeout) {
		cancelQuietly(ctx, exchange, logger, orderID)
		return nil, err
	}
	logger.Warn(ctx, "Order did not fill cleanly, re-checking", map[string]interface{}{
		"orderID": orderID, "error": err.Error(),
	})

	order, err = exchange.GetOrder(ctx, orderID)
	if err != nil {
		// State unknown, so make sure nothing stays resting.
		cancelQuietly(ctx, exchange, logger, orderID)
		return nil, err
	}
	if order.IsDone() {
		return order, nil
	}

	cancelQuietly(ctx, exchange, logger, orderID)
	if err := sleepCtx(ctx, poll); err != nil {
		return nil, err
	}

	order, err = exchange.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsDone() || order.FilledVolume() > 0 {
		return order, nil
	}
	return nil, fmt.Errorf("order %s: %w", orderID, ports.ErrOrderNotFilled)
}

// cancelQuietly attempts a cancel and only logs on failure. The order may
// already be terminal, in which case the exchange rejects the cancel and
// that is fine.
func cancelQuietly(ctx context.Context, exchange ports.ExchangeClient, logger ports.Logger, orderID string) {
	if _, err := exchange.CancelOrder(ctx, orderID); err != nil {
		logger.Warn(ctx, "Cancel attempt failed", map[string]interface{}{
			"orderID": orderID, "error": err.Error(),
		})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
	}
}
