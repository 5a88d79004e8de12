package app

import (
	"context"
	"fmt"
	"strings"

	"upbitSignalBot/internal/domain"
	"upbitSignalBot/internal/metrics"
	"upbitSignalBot/internal/ports"
	"upbitSignalBot/internal/position"
	"upbitSignalBot/internal/telemetry"
)

// dustThreshold filters out residual balances the exchange leaves behind
// after market sells.
const dustThreshold = 1e-8

// RecoveryConfig holds dependencies and settings for startup recovery.
type RecoveryConfig struct {
	Exchange  ports.ExchangeClient
	Positions *position.Manager
	Watcher   *Watcher
	Logger    ports.Logger
	Tracker   *telemetry.Tracker
	Journal   ports.EventJournal

	Skip bool

	// Market names the KRW pair a leftover holding is recovered into.
	// Empty disables recovery, holdings are then reported and left alone.
	Market     string
	TakeProfit float64
	StopLoss   float64
}

// RunRecovery reconciles exchange balances with the bot's in-memory state at
// startup. A non-KRW holding means the previous run died with a position
// open; the position is rebuilt from the account's average buy price so the
// watcher can resume managing it. A configured recovery market that matches
// none of the holdings is a configuration problem and fails startup, because
// silently ignoring real money is worse than refusing to boot.
func RunRecovery(ctx context.Context, cfg RecoveryConfig) error {
	op := "RunRecovery"
	if cfg.Skip {
		cfg.Logger.Info(ctx, "Startup recovery skipped by configuration")
		return nil
	}

	accounts, err := cfg.Exchange.GetAccounts(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	var holdings []ports.Account
	for _, acct := range accounts {
		if strings.EqualFold(acct.Currency, "KRW") {
			continue
		}
		if acct.BalanceValue() > dustThreshold {
			holdings = append(holdings, acct)
		}
	}
	if len(holdings) == 0 {
		cfg.Logger.Info(ctx, "Recovery: no holdings, starting flat")
		return nil
	}

	if cfg.Market == "" {
		cfg.Logger.Warn(ctx, "Recovery: holdings present but no market configured, skipping", map[string]interface{}{
			"holdings": len(holdings),
		})
		return nil
	}

	quote, base, found := strings.Cut(cfg.Market, "-")
	if !found || !strings.EqualFold(quote, "KRW") {
		return fmt.Errorf("%s: market %q is not a KRW pair: %w", op, cfg.Market, ports.ErrConfigurationError)
	}

	var match *ports.Account
	for i := range holdings {
		if strings.EqualFold(holdings[i].Currency, base) {
			match = &holdings[i]
			break
		}
	}
	if match == nil {
		return fmt.Errorf("%s: holding %s does not match recovery market %s: %w",
			op, holdings[0].Currency, cfg.Market, ports.ErrConfigurationError)
	}
	if len(holdings) > 1 {
		cfg.Logger.Warn(ctx, "Recovery: additional holdings exist, recovering only the configured market", map[string]interface{}{
			"market": cfg.Market, "holdings": len(holdings),
		})
	}

	entryPrice := match.AvgBuyPriceValue()
	if entryPrice <= 0 {
		entryPrice, err = cfg.Exchange.GetTicker(ctx, cfg.Market)
		if err != nil {
			return fmt.Errorf("%s: no entry price for recovered position: %w", op, err)
		}
		cfg.Logger.Warn(ctx, "Recovery: avg buy price unavailable, using current ticker", map[string]interface{}{
			"market": cfg.Market, "price": entryPrice,
		})
	}

	pos := domain.Position{
		Market:     cfg.Market,
		Side:       domain.SideLong,
		EntryPrice: entryPrice,
		Amount:     match.BalanceValue(),
		TakeProfit: cfg.TakeProfit,
		StopLoss:   cfg.StopLoss,
	}
	cfg.Positions.ReplaceWithRecovered(ctx, pos)
	metrics.PositionOpen.Set(1)

	sink := &eventSink{logger: cfg.Logger, tracker: cfg.Tracker, journal: cfg.Journal}
	msg := fmt.Sprintf("recovered %s: %.8f @ %.2f", cfg.Market, pos.Amount, pos.EntryPrice)
	sink.record(ctx, domain.EventRecovered, cfg.Market, msg, 0, "warn")

	if cfg.TakeProfit > 0 && cfg.StopLoss > 0 {
		if cfg.Watcher != nil {
			cfg.Watcher.EnsureRunning()
		}
	} else {
		cfg.Logger.Warn(ctx, "Recovery: take-profit or stop-loss not configured, watcher not started", map[string]interface{}{
			"market": cfg.Market,
		})
	}
	return nil
}
