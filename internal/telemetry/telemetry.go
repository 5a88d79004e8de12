// Package telemetry tracks operator-facing runtime health: the outcome of
// the last exchange API call, the last webhook handled, and a small ring of
// recent lifecycle events served by the status endpoints.
package telemetry

import (
	"errors"
	"sync"
	"time"

	"upbitSignalBot/internal/metrics"
)

const (
	defaultMaxEvents = 50
	maxMessageLength = 160
)

// APIStatus is the outcome of the most recent exchange API call.
type APIStatus struct {
	OK        bool      `json:"ok"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookStatus is the outcome of the most recent webhook signal.
type WebhookStatus struct {
	Accepted  bool      `json:"accepted"`
	SignalID  string    `json:"signal_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceStatus is the most recent traded price observed by the watcher.
type PriceStatus struct {
	Market    string    `json:"market,omitempty"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is one entry in the recent-events ring.
type Event struct {
	Time    time.Time `json:"ts"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Tracker aggregates health state. It implements ports.HealthRecorder and is
// safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	maxEvents int
	api       APIStatus
	webhook   WebhookStatus
	price     PriceStatus
	events    []Event
}

// NewTracker creates an empty tracker. A non-positive maxEvents selects the
// default ring size.
func NewTracker(maxEvents int) *Tracker {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return &Tracker{maxEvents: maxEvents, api: APIStatus{OK: true}}
}

// RecordAPIOK marks the exchange API healthy.
func (t *Tracker) RecordAPIOK() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.api = APIStatus{OK: true, UpdatedAt: time.Now()}
}

// RecordAPIError marks the exchange API unhealthy with the given message.
func (t *Tracker) RecordAPIError(message string) {
	metrics.APIErrors.Inc()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.api = APIStatus{OK: false, Message: truncate(message), UpdatedAt: time.Now()}
}

// RecordWebhook records the outcome of a webhook signal.
func (t *Tracker) RecordWebhook(accepted bool, signalID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.webhook = WebhookStatus{Accepted: accepted, SignalID: truncate(signalID), Message: truncate(message), UpdatedAt: time.Now()}
}

// RecordPrice notes the latest observed traded price.
func (t *Tracker) RecordPrice(market string, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.price = PriceStatus{Market: market, Price: price, UpdatedAt: time.Now()}
}

// LastPrice returns the most recent observed traded price.
func (t *Tracker) LastPrice() PriceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.price
}

// AddEvent appends to the recent-events ring, evicting the oldest entry once
// the ring is full.
func (t *Tracker) AddEvent(level, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, Event{Time: time.Now(), Level: level, Message: truncate(message)})
	if len(t.events) > t.maxEvents {
		t.events = t.events[len(t.events)-t.maxEvents:]
	}
}

// APIStatus returns the last exchange API outcome.
func (t *Tracker) APIStatus() APIStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.api
}

// WebhookStatus returns the last webhook outcome.
func (t *Tracker) WebhookStatus() WebhookStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.webhook
}

// Events returns the recent events, newest last.
func (t *Tracker) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

func truncate(s string) string {
	if len(s) > maxMessageLength {
		return s[:maxMessageLength]
	}
	return s
}

type userMessager interface {
	UserMessage() string
}

// ErrorMessage extracts the short operator-facing description from an error,
// preferring a structured exchange message when one is wrapped inside.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var um userMessager
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return err.Error()
}
