// Package server exposes the bot's HTTP surface: the TradingView webhook,
// operator status endpoints, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"upbitSignalBot/internal/app"
	"upbitSignalBot/internal/metrics"
	"upbitSignalBot/internal/ports"
	"upbitSignalBot/internal/position"
	"upbitSignalBot/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP front door.
type Server struct {
	httpServer  *http.Server
	coordinator *app.Coordinator
	watcher     *app.Watcher
	positions   *position.Manager
	exchange    ports.ExchangeClient
	tracker     *telemetry.Tracker
	journal     ports.EventJournal
	logger      ports.Logger
	token       string
}

// Config holds dependencies and settings for the Server.
type Config struct {
	Addr        string
	Coordinator *app.Coordinator
	Watcher     *app.Watcher
	Positions   *position.Manager
	Exchange    ports.ExchangeClient
	Tracker     *telemetry.Tracker
	Journal     ports.EventJournal
	Logger      ports.Logger

	// Token, when set, must match the webhook payload's token field.
	Token string
}

// New creates the HTTP server.
func New(cfg Config) (*Server, error) {
	if cfg.Coordinator == nil || cfg.Positions == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("coordinator, positions, and logger are required for server")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{
		coordinator: cfg.Coordinator,
		watcher:     cfg.Watcher,
		positions:   cfg.Positions,
		exchange:    cfg.Exchange,
		tracker:     cfg.Tracker,
		journal:     cfg.Journal,
		logger:      cfg.Logger,
		token:       cfg.Token,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/tradingview", s.handleWebhook)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /account/balances", s.handleBalances)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", s.handleDashboard)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the route tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "HTTP server listening", map[string]interface{}{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// webhookPayload is the TradingView alert body. Numbers arrive as JSON
// numbers or quoted strings depending on how the alert template was written,
// so everything numeric is a json.Number. Price is the KRW notional to
// spend on the entry.
type webhookPayload struct {
	Action     string      `json:"action"`
	Market     string      `json:"market"`
	Price      json.Number `json:"price"`
	TakeProfit json.Number `json:"tp"`
	StopLoss   json.Number `json:"sl"`
	SignalID   string      `json:"signal_id"`
	Token      string      `json:"token"`
}

// validate enforces the wire contract: every field present, every number
// positive. Failures are client errors, not signals.
func (p *webhookPayload) validate() error {
	var missing []string
	if p.Market == "" {
		missing = append(missing, "market")
	}
	if p.Action == "" {
		missing = append(missing, "action")
	}
	if p.SignalID == "" {
		missing = append(missing, "signal_id")
	}
	if p.Price == "" {
		missing = append(missing, "price")
	}
	if p.TakeProfit == "" {
		missing = append(missing, "tp")
	}
	if p.StopLoss == "" {
		missing = append(missing, "sl")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	for _, n := range []json.Number{p.Price, p.TakeProfit, p.StopLoss} {
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("invalid numeric field %q", n.String())
		}
		if f <= 0 {
			return fmt.Errorf("price, tp, sl must be positive")
		}
	}
	return nil
}

func numberValue(n json.Number) float64 {
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return f
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.recordWebhook(false, "", "malformed payload", "rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed JSON payload"})
		return
	}
	if s.token != "" && payload.Token != s.token {
		s.logger.Warn(ctx, "Webhook rejected: bad token")
		s.recordWebhook(false, payload.SignalID, "bad token", "rejected")
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "invalid token"})
		return
	}
	if err := payload.validate(); err != nil {
		s.logger.Warn(ctx, "Webhook rejected: invalid payload", map[string]interface{}{"error": err.Error()})
		s.recordWebhook(false, payload.SignalID, err.Error(), "rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	sig := app.Signal{
		Action:     payload.Action,
		Market:     payload.Market,
		AmountKRW:  numberValue(payload.Price),
		TakeProfit: numberValue(payload.TakeProfit),
		StopLoss:   numberValue(payload.StopLoss),
		Key:        payload.SignalID,
	}

	if err := s.coordinator.HandleSignal(ctx, sig); err != nil {
		status, result := statusForError(err)
		msg := telemetry.ErrorMessage(err)
		s.logger.Warn(ctx, "Webhook signal not executed", map[string]interface{}{"result": result, "error": err.Error()})
		s.recordWebhook(false, sig.Key, msg, result)
		writeJSON(w, status, map[string]string{"detail": msg})
		return
	}

	s.recordWebhook(true, sig.Key, "position opened", "accepted")
	writeJSON(w, http.StatusOK, map[string]string{"detail": "position opened"})
}

func (s *Server) recordWebhook(accepted bool, signalID, message, result string) {
	metrics.WebhookSignals.WithLabelValues(result).Inc()
	if s.tracker != nil {
		s.tracker.RecordWebhook(accepted, signalID, message)
	}
}

// statusForError maps a signal-handling failure to an HTTP status and a
// metrics result label.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, ports.ErrDuplicateSignal):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, ports.ErrPositionAlreadyOpen):
		return http.StatusConflict, "rejected"
	case errors.Is(err, ports.ErrUnsupportedAction),
		errors.Is(err, ports.ErrBelowMinOrderSize),
		errors.Is(err, ports.ErrInvalidRequest):
		return http.StatusBadRequest, "rejected"
	}

	// Exchange rejections surface with the exchange's own status for 4xx
	// and 502 for server-side failures.
	var apiErr interface{ HTTPStatus() int }
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus(), "failed"
	}
	return http.StatusInternalServerError, "failed"
}

type statusResponse struct {
	API            telemetry.APIStatus     `json:"api"`
	Webhook        telemetry.WebhookStatus `json:"webhook"`
	LastPrice      telemetry.PriceStatus   `json:"last_price"`
	Position       interface{}             `json:"position"`
	WatcherRunning bool                    `json:"watcher_running"`
	RecentEvents   []telemetry.Event       `json:"recent_events"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}
	if s.tracker != nil {
		resp.API = s.tracker.APIStatus()
		resp.Webhook = s.tracker.WebhookStatus()
		resp.LastPrice = s.tracker.LastPrice()
		resp.RecentEvents = s.tracker.Events()
	}
	if pos, ok := s.positions.Get(); ok {
		resp.Position = pos
	}
	if s.watcher != nil {
		resp.WatcherRunning = s.watcher.IsRunning()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if s.exchange == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "exchange unavailable"})
		return
	}
	accounts, err := s.exchange.GetAccounts(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), err, "Balance fetch failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"detail": telemetry.ErrorMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal != nil {
		events, err := s.journal.Recent(r.Context(), 50)
		if err != nil {
			s.logger.Error(r.Context(), err, "Event listing failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "event listing failed"})
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}
	if s.tracker != nil {
		writeJSON(w, http.StatusOK, s.tracker.Events())
		return
	}
	writeJSON(w, http.StatusOK, []struct{}{})
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head><title>Upbit Signal Bot</title></head>
<body>
<h1>Upbit Signal Bot</h1>
<ul>
<li><a href="/status">status</a></li>
<li><a href="/account/balances">balances</a></li>
<li><a href="/events">events</a></li>
<li><a href="/metrics">metrics</a></li>
</ul>
</body>
</html>
`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, dashboardHTML)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
