// Package metrics exposes Prometheus counters and gauges for the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookSignals counts webhook signals by outcome: accepted, duplicate,
	// rejected, failed.
	WebhookSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_webhook_signals_total",
		Help: "Webhook signals received, labelled by outcome.",
	}, []string{"result"})

	// Orders counts orders placed on the exchange by side.
	Orders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_orders_total",
		Help: "Orders placed on the exchange, labelled by side.",
	}, []string{"side"})

	// Exits counts closed positions by trigger reason.
	Exits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_exits_total",
		Help: "Positions closed, labelled by trigger reason.",
	}, []string{"reason"})

	// APIErrors counts failed exchange API calls.
	APIErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_api_errors_total",
		Help: "Failed exchange API calls.",
	})

	// LastPrice is the most recent traded price observed by the watcher.
	LastPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bot_last_price",
		Help: "Most recent traded price observed, labelled by market.",
	}, []string{"market"})

	// PositionOpen is 1 while a position is held, 0 otherwise.
	PositionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_position_open",
		Help: "Whether a position is currently held.",
	})
)
