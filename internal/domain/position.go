package domain

import "time"

// RecoveredOrderID marks a position reconstructed from account balances at
// startup, for which no originating order is known.
const RecoveredOrderID = "RECOVERED"

// Position represents the single holding tracked by the bot.
type Position struct {
	Market     string         `json:"market"`      // e.g. "KRW-BTC"
	Side       PositionSide   `json:"side"`        // always LONG for now
	EntryPrice float64        `json:"entry_price"` // volume-weighted fill price of the entry order
	Amount     float64        `json:"amount"`      // base-currency volume held
	TakeProfit float64        `json:"tp"`          // fraction above entry that triggers an exit, e.g. 0.05
	StopLoss   float64        `json:"sl"`          // fraction below entry that triggers an exit
	Status     PositionStatus `json:"status"`
	OpenedAt   time.Time      `json:"opened_at"`
	OrderID    string         `json:"order_uuid"` // originating order uuid, or RecoveredOrderID
}

// IsOpen checks if the position status is open.
func (p Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// TakeProfitPrice returns the absolute price at which the take-profit triggers.
func (p Position) TakeProfitPrice() float64 {
	return p.EntryPrice * (1 + p.TakeProfit)
}

// StopLossPrice returns the absolute price at which the stop-loss triggers.
func (p Position) StopLossPrice() float64 {
	return p.EntryPrice * (1 - p.StopLoss)
}
