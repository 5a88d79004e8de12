package app

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"upbitSignalBot/internal/domain"
	"upbitSignalBot/internal/metrics"
	"upbitSignalBot/internal/ports"
	"upbitSignalBot/internal/position"
	"upbitSignalBot/internal/telemetry"
)

// Watcher polls the ticker while a position is open and exits it when the
// take-profit or stop-loss level is reached. The loop terminates itself as
// soon as no open position remains, so EnsureRunning is cheap to call on
// every entry.
type Watcher struct {
	mu      sync.Mutex
	running bool

	exchange  ports.ExchangeClient
	positions *position.Manager
	sink      *eventSink
	logger    ports.Logger

	baseCtx  context.Context
	interval time.Duration
	fillPoll time.Duration
}

// WatcherConfig holds dependencies and settings for the Watcher.
type WatcherConfig struct {
	Exchange  ports.ExchangeClient
	Positions *position.Manager
	Logger    ports.Logger
	Tracker   *telemetry.Tracker
	Journal   ports.EventJournal

	// BaseContext bounds the polling goroutine's lifetime. Defaults to
	// context.Background.
	BaseContext context.Context
	Interval    time.Duration
	FillPoll    time.Duration
}

// NewWatcher creates the price watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Exchange == nil || cfg.Positions == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("exchange, positions, and logger are required for watcher")
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.FillPoll <= 0 {
		cfg.FillPoll = time.Second
	}
	return &Watcher{
		exchange:  cfg.Exchange,
		positions: cfg.Positions,
		sink:      &eventSink{logger: cfg.Logger, tracker: cfg.Tracker, journal: cfg.Journal},
		logger:    cfg.Logger,
		baseCtx:   cfg.BaseContext,
		interval:  cfg.Interval,
		fillPoll:  cfg.FillPoll,
	}, nil
}

// EnsureRunning starts the polling goroutine if it is not already running.
func (w *Watcher) EnsureRunning() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	go w.run(w.baseCtx)
}

// IsRunning reports whether the polling goroutine is live.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.stop()
	w.logger.Info(ctx, "Price watcher started", map[string]interface{}{"interval": w.interval.String()})

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Price watcher stopping: context cancelled")
			return
		case <-time.After(w.interval):
		}

		pos, ok := w.positions.Get()
		if !ok || !pos.IsOpen() {
			w.logger.Info(ctx, "Price watcher stopping: no open position")
			return
		}
		if pos.TakeProfit <= 0 || pos.StopLoss <= 0 {
			w.logger.Warn(ctx, "Position is missing take-profit or stop-loss, watcher stopping", map[string]interface{}{
				"market": pos.Market, "tp": pos.TakeProfit, "sl": pos.StopLoss,
			})
			return
		}

		price, err := w.exchange.GetTicker(ctx, pos.Market)
		if err != nil {
			w.logger.Warn(ctx, "Ticker fetch failed, will retry", map[string]interface{}{
				"market": pos.Market, "error": err.Error(),
			})
			continue
		}
		metrics.LastPrice.WithLabelValues(pos.Market).Set(price)
		if w.sink.tracker != nil {
			w.sink.tracker.RecordPrice(pos.Market, price)
		}

		tpPrice := pos.TakeProfitPrice()
		slPrice := pos.StopLossPrice()
		switch {
		case price > tpPrice || nearlyEqual(price, tpPrice):
			w.closePosition(ctx, pos, domain.CloseReasonTakeProfit, price)
		case price < slPrice || nearlyEqual(price, slPrice):
			w.closePosition(ctx, pos, domain.CloseReasonStopLoss, price)
		}
	}
}

// closePosition sells the full position at market. Any failure before the
// fill is confirmed leaves the position open so the next tick retries; the
// position is only marked closed once the sell verifiably executed.
func (w *Watcher) closePosition(ctx context.Context, pos domain.Position, reason domain.CloseReason, triggerPrice float64) {
	w.logger.Info(ctx, "Exit triggered", map[string]interface{}{
		"market": pos.Market, "reason": string(reason), "price": triggerPrice,
	})

	order, err := w.exchange.PlaceMarketSell(ctx, pos.Market, pos.Amount)
	if err != nil {
		w.logger.Error(ctx, err, "Exit order failed, position stays open", map[string]interface{}{"market": pos.Market})
		w.sink.record(ctx, domain.EventError, pos.Market, "exit order failed: "+telemetry.ErrorMessage(err), 0, "error")
		return
	}
	metrics.Orders.WithLabelValues("ask").Inc()

	resolved, err := resolveFill(ctx, w.exchange, w.logger, w.fillPoll, order.UUID)
	if err != nil {
		w.logger.Error(ctx, err, "Exit fill unresolved, position stays open", map[string]interface{}{
			"market": pos.Market, "orderID": order.UUID,
		})
		w.sink.record(ctx, domain.EventError, pos.Market, "exit fill unresolved: "+telemetry.ErrorMessage(err), 0, "error")
		return
	}

	// The resolved order occasionally carries no usable price; the trigger
	// price then stands in for ROI reporting only.
	closePrice := triggerPrice
	level := "warn"
	if p := resolved.AvgFillPrice(); p > 0 {
		closePrice = p
		level = "info"
	}

	closed, ok := w.positions.Close(ctx)
	if !ok {
		return
	}
	metrics.PositionOpen.Set(0)
	metrics.Exits.WithLabelValues(string(reason)).Inc()

	var roi float64
	if closed.EntryPrice > 0 {
		roi = closePrice/closed.EntryPrice - 1
	}
	msg := fmt.Sprintf("closed %s (%s): %.8f @ %.2f, roi %.4f%%", closed.Market, reason, closed.Amount, closePrice, roi*100)
	w.sink.record(ctx, domain.EventClose, closed.Market, msg, roi, level)
}

// nearlyEqual treats prices within a small relative or absolute tolerance as
// touching the trigger level, so a tick that lands a rounding error away
// still fires.
func nearlyEqual(a, b float64) bool {
	const tol = 1e-6
	diff := math.Abs(a - b)
	if diff <= tol {
		return true
	}
	return diff <= tol*math.Max(math.Abs(a), math.Abs(b))
}
