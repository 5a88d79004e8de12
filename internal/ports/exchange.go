package ports

import (
	"context"
	"strconv"
	"strings"
)

// Trade is a single execution belonging to an order.
// Numeric fields are kept in the exchange's string encoding; an empty string
// means the field was absent from the response.
type Trade struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
}

// Order holds the fields of an exchange-side order as reported by the REST
// API. The exchange encodes numbers as strings, so fields are kept verbatim
// and derived values are computed on demand.
type Order struct {
	UUID            string  `json:"uuid"`
	Side            string  `json:"side"`     // "bid" or "ask"
	OrdType         string  `json:"ord_type"` // "price" (amount-denominated buy), "market", "limit"
	State           string  `json:"state"`    // "wait", "done", "cancel"
	Market          string  `json:"market"`
	Price           string  `json:"price"` // notional amount for ord_type=price buys, else quoted price
	AvgPrice        string  `json:"avg_price"`
	Volume          string  `json:"volume"`
	RemainingVolume string  `json:"remaining_volume"`
	ExecutedVolume  string  `json:"executed_volume"`
	Trades          []Trade `json:"trades"`
}

// IsDone reports whether the order reached the fully-executed terminal state.
func (o *Order) IsDone() bool {
	return strings.EqualFold(o.State, "done")
}

// FilledVolume returns how much of the order actually executed: the explicit
// executed-volume field when present, otherwise the sum of trade volumes.
func (o *Order) FilledVolume() float64 {
	if o.ExecutedVolume != "" {
		return parseFloat(o.ExecutedVolume)
	}
	var total float64
	for _, t := range o.Trades {
		total += parseFloat(t.Volume)
	}
	return total
}

// RemainingVolumeValue returns the unexecuted remainder of the order.
func (o *Order) RemainingVolumeValue() float64 {
	return parseFloat(o.RemainingVolume)
}

// AvgFillPrice derives the average execution price, in falling precedence:
// volume-weighted average of trades, explicit avg_price, notional/volume for
// amount-denominated buys, quoted price. Zero means "unknown"; callers must
// not open a position from it.
func (o *Order) AvgFillPrice() float64 {
	if len(o.Trades) > 0 {
		var notional, volume float64
		for _, t := range o.Trades {
			v := parseFloat(t.Volume)
			notional += parseFloat(t.Price) * v
			volume += v
		}
		if volume > 0 {
			return notional / volume
		}
	}
	if o.AvgPrice != "" {
		return parseFloat(o.AvgPrice)
	}
	if o.OrdType == "price" {
		executed := o.FilledVolume()
		total := parseFloat(o.Price)
		if executed > 0 && total > 0 {
			return total / executed
		}
	}
	if o.Price != "" {
		return parseFloat(o.Price)
	}
	return 0
}

// Account is a single asset balance reported by the exchange.
type Account struct {
	Currency     string `json:"currency"`
	Balance      string `json:"balance"`
	Locked       string `json:"locked"`
	AvgBuyPrice  string `json:"avg_buy_price"`
	UnitCurrency string `json:"unit_currency"`
}

// BalanceValue returns the available balance as a float.
func (a *Account) BalanceValue() float64 {
	return parseFloat(a.Balance)
}

// AvgBuyPriceValue returns the account's average buy price as a float.
func (a *Account) AvgBuyPriceValue() float64 {
	return parseFloat(a.AvgBuyPrice)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// HealthRecorder receives the outcome of every exchange call, feeding the
// dashboard's API health view.
type HealthRecorder interface {
	RecordAPIOK()
	RecordAPIError(message string)
}

// ExchangeClient defines the interface for interacting with the exchange's
// signed REST API. This abstraction decouples the trading core from the
// concrete HTTP client.
type ExchangeClient interface {
	// PlaceMarketBuy places an amount-denominated market buy (spend amountKRW
	// of the quote currency). Transient failures are retried internally.
	PlaceMarketBuy(ctx context.Context, market string, amountKRW float64) (*Order, error)

	// PlaceMarketSell places a market sell for the given base-currency volume.
	// Transient failures are retried internally.
	PlaceMarketSell(ctx context.Context, market string, volume float64) (*Order, error)

	// CancelOrder requests cancellation of an open order.
	CancelOrder(ctx context.Context, orderID string) (*Order, error)

	// GetOrder fetches a single order snapshot. Not auto-retried; callers decide.
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// WaitOrderFilled polls GetOrder until the order is terminal or the
	// configured fill timeout elapses. Non-success outcomes are distinguished:
	// ErrPartiallyFilled when terminal with remaining volume, ErrFillTimeout
	// when still pending at the deadline.
	WaitOrderFilled(ctx context.Context, orderID string) (*Order, error)

	// GetTicker returns the last trade price, with its own retry policy since
	// it is polled continuously by the watcher.
	GetTicker(ctx context.Context, market string) (float64, error)

	// GetAccounts fetches all asset balances. Not auto-retried.
	GetAccounts(ctx context.Context) ([]Account, error)
}
