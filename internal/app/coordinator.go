package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"upbitSignalBot/internal/domain"
	"upbitSignalBot/internal/guard"
	"upbitSignalBot/internal/metrics"
	"upbitSignalBot/internal/ports"
	"upbitSignalBot/internal/position"
	"upbitSignalBot/internal/telemetry"
)

// DefaultMinOrderKRW is the exchange's published minimum notional for a KRW
// market order.
const DefaultMinOrderKRW = 5000

// Signal is a validated trading instruction extracted from a webhook.
type Signal struct {
	Action     string
	Market     string
	AmountKRW  float64
	TakeProfit float64
	StopLoss   float64
	Key        string
}

// Coordinator runs the entry workflow: deduplicate the signal, take the
// order lock, place the buy, resolve the fill, and install the position.
// One order lock serializes every entry and keeps the single-position
// invariant honest under concurrent webhooks.
type Coordinator struct {
	orderMu sync.Mutex

	exchange  ports.ExchangeClient
	positions *position.Manager
	guard     *guard.SignalGuard
	watcher   *Watcher
	sink      *eventSink
	logger    ports.Logger

	minOrderKRW float64
	fillPoll    time.Duration
}

// CoordinatorConfig holds dependencies and settings for the Coordinator.
type CoordinatorConfig struct {
	Exchange  ports.ExchangeClient
	Positions *position.Manager
	Guard     *guard.SignalGuard
	Watcher   *Watcher
	Logger    ports.Logger
	Tracker   *telemetry.Tracker
	Journal   ports.EventJournal

	MinOrderKRW float64
	FillPoll    time.Duration
}

// NewCoordinator creates the entry coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Exchange == nil || cfg.Positions == nil || cfg.Guard == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("exchange, positions, guard, and logger are required for coordinator")
	}
	if cfg.MinOrderKRW <= 0 {
		cfg.MinOrderKRW = DefaultMinOrderKRW
	}
	if cfg.FillPoll <= 0 {
		cfg.FillPoll = time.Second
	}
	return &Coordinator{
		exchange:    cfg.Exchange,
		positions:   cfg.Positions,
		guard:       cfg.Guard,
		watcher:     cfg.Watcher,
		sink:        &eventSink{logger: cfg.Logger, tracker: cfg.Tracker, journal: cfg.Journal},
		logger:      cfg.Logger,
		minOrderKRW: cfg.MinOrderKRW,
		fillPoll:    cfg.FillPoll,
	}, nil
}

// HandleSignal processes one trading signal end to end.
func (c *Coordinator) HandleSignal(ctx context.Context, sig Signal) error {
	op := "HandleSignal"

	if !strings.EqualFold(sig.Action, "BUY") {
		return fmt.Errorf("%s: action %q: %w", op, sig.Action, ports.ErrUnsupportedAction)
	}
	if quote, _, found := strings.Cut(sig.Market, "-"); !found || !strings.EqualFold(quote, "KRW") {
		return fmt.Errorf("%s: market %q is not a KRW pair: %w", op, sig.Market, ports.ErrInvalidRequest)
	}
	if sig.TakeProfit <= 0 || sig.StopLoss <= 0 {
		return fmt.Errorf("%s: tp and sl must both be positive: %w", op, ports.ErrInvalidRequest)
	}
	if sig.AmountKRW < c.minOrderKRW {
		return fmt.Errorf("%s: amount %.0f KRW below minimum %.0f: %w", op, sig.AmountKRW, c.minOrderKRW, ports.ErrBelowMinOrderSize)
	}

	if !c.guard.Register(sig.Key) {
		c.logger.Info(ctx, "Duplicate signal ignored", map[string]interface{}{"key": sig.Key})
		return fmt.Errorf("%s: signal %q: %w", op, sig.Key, ports.ErrDuplicateSignal)
	}

	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	if c.positions.HasOpen() {
		return fmt.Errorf("%s: %w", op, ports.ErrPositionAlreadyOpen)
	}

	c.logger.Info(ctx, "Opening position", map[string]interface{}{
		"market": sig.Market, "amountKRW": sig.AmountKRW, "tp": sig.TakeProfit, "sl": sig.StopLoss,
	})
	order, err := c.exchange.PlaceMarketBuy(ctx, sig.Market, sig.AmountKRW)
	if err != nil {
		c.sink.record(ctx, domain.EventError, sig.Market, "entry order failed: "+telemetry.ErrorMessage(err), 0, "error")
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.Orders.WithLabelValues("bid").Inc()

	resolved, err := resolveFill(ctx, c.exchange, c.logger, c.fillPoll, order.UUID)
	if err != nil {
		c.sink.record(ctx, domain.EventError, sig.Market, "entry fill failed: "+telemetry.ErrorMessage(err), 0, "error")
		return fmt.Errorf("%s: order %s: %w", op, order.UUID, err)
	}

	entryPrice, volume, err := c.deriveFill(ctx, resolved)
	if err != nil {
		c.sink.record(ctx, domain.EventError, sig.Market, "entry fill data invalid: "+telemetry.ErrorMessage(err), 0, "error")
		return fmt.Errorf("%s: order %s: %w", op, order.UUID, err)
	}
	if !resolved.IsDone() {
		// A cancelled partial still bought coins; the position tracks
		// what was actually executed.
		c.logger.Warn(ctx, "Order not marked done, using executed volume", map[string]interface{}{
			"orderID": resolved.UUID, "volume": volume,
		})
	}

	pos := domain.Position{
		Market:     sig.Market,
		Side:       domain.SideLong,
		EntryPrice: entryPrice,
		Amount:     volume,
		TakeProfit: sig.TakeProfit,
		StopLoss:   sig.StopLoss,
		OrderID:    resolved.UUID,
	}
	if err := c.positions.Open(ctx, pos); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.PositionOpen.Set(1)

	msg := fmt.Sprintf("opened %s: %.8f @ %.2f", sig.Market, volume, entryPrice)
	c.sink.record(ctx, domain.EventOpen, sig.Market, msg, 0, "info")

	if c.watcher != nil {
		c.watcher.EnsureRunning()
	}
	return nil
}

// deriveFill extracts entry price and volume from a settled order. A fill
// with no usable numbers gets one re-fetch before it is declared invalid;
// the position then exists on the exchange but not in the bot, which is an
// operator problem, not something to guess around.
func (c *Coordinator) deriveFill(ctx context.Context, order *ports.Order) (price, volume float64, err error) {
	price = order.AvgFillPrice()
	volume = order.FilledVolume()
	if price > 0 && volume > 0 {
		return price, volume, nil
	}

	c.logger.Warn(ctx, "Fill data incomplete, re-fetching order", map[string]interface{}{"orderID": order.UUID})
	refetched, err := c.exchange.GetOrder(ctx, order.UUID)
	if err != nil {
		return 0, 0, err
	}
	price = refetched.AvgFillPrice()
	volume = refetched.FilledVolume()
	if price > 0 && volume > 0 {
		return price, volume, nil
	}
	return 0, 0, fmt.Errorf("order %s price=%.8f volume=%.8f: %w", order.UUID, price, volume, ports.ErrInvalidFillData)
}
