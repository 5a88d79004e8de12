package upbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"upbitSignalBot/internal/ports"

	"github.com/jpillora/backoff"
)

const defaultBaseURL = "https://api.upbit.com"

// APIError is a non-2xx response from the Upbit REST API. Name and Message
// carry the exchange's structured error payload when it was present.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("upbit API error %d: %s", e.StatusCode, e.UserMessage())
}

// Retryable reports whether the request may be retried: server-side failures
// and rate limiting only.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPStatus maps the failure onto the status the bot's own HTTP surface
// should report: the exchange's status for client-side rejections, 502 for
// anything server-side.
func (e *APIError) HTTPStatus() int {
	if e.Retryable() {
		return http.StatusBadGateway
	}
	return e.StatusCode
}

// UserMessage returns the short operator-facing description of the failure,
// preferring the exchange's structured error name/message over the raw body.
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		if e.Name != "" {
			return e.Name + ": " + e.Message
		}
		return e.Message
	}
	return e.Body
}

// Client implements the ports.ExchangeClient interface against the Upbit REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     ports.Logger
	health     ports.HealthRecorder
}

// Config holds configuration specific to the Upbit client adapter.
type Config struct {
	AccessKey string
	SecretKey string
	BaseURL   string
	Logger    ports.Logger
	Health    ports.HealthRecorder // optional

	// Retry policy for order placement.
	OrderRetryAttempts int
	OrderRetryWaitMin  time.Duration
	OrderRetryWaitMax  time.Duration

	// Fill resolution.
	FillTimeout time.Duration
	FillPoll    time.Duration

	// Retry policy for ticker reads, polled continuously by the watcher.
	PriceRetryAttempts int
	PriceRetryWaitMin  time.Duration
	PriceRetryWaitMax  time.Duration

	// HTTPClient overrides the transport, used by tests.
	HTTPClient *http.Client
}

// New creates a new Upbit client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Upbit client")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "AccessKey or SecretKey is empty. Client will only work for public endpoints.")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.OrderRetryAttempts <= 0 {
		cfg.OrderRetryAttempts = 3
	}
	if cfg.OrderRetryWaitMin <= 0 {
		cfg.OrderRetryWaitMin = time.Second
	}
	if cfg.OrderRetryWaitMax <= 0 {
		cfg.OrderRetryWaitMax = 4 * time.Second
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = 10 * time.Second
	}
	if cfg.FillPoll <= 0 {
		cfg.FillPoll = time.Second
	}
	if cfg.PriceRetryAttempts <= 0 {
		cfg.PriceRetryAttempts = 3
	}
	if cfg.PriceRetryWaitMin <= 0 {
		cfg.PriceRetryWaitMin = 500 * time.Millisecond
	}
	if cfg.PriceRetryWaitMax <= 0 {
		cfg.PriceRetryWaitMax = 2 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     cfg.Logger,
		health:     cfg.Health,
	}, nil
}

func (c *Client) recordOK() {
	if c.health != nil {
		c.health.RecordAPIOK()
	}
}

func (c *Client) recordError(message string) {
	if c.health != nil {
		c.health.RecordAPIError(message)
	}
}

// classify maps an HTTP status to the matching standard error.
func classify(statusCode int) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ports.ErrRateLimited
	case statusCode >= 500:
		return ports.ErrExchangeUnavailable
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ports.ErrAuthenticationFailed
	default:
		return ports.ErrInvalidRequest
	}
}

func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Body: string(body)}
	var payload struct {
		Error struct {
			// The exchange reports name as a string or a numeric code.
			Name    interface{} `json:"name"`
			Message string      `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error.Name != nil {
			apiErr.Name = fmt.Sprint(payload.Error.Name)
		}
		apiErr.Message = payload.Error.Message
	}
	return apiErr
}

// request performs one signed HTTP round-trip. The query string is encoded
// exactly once and that same encoding is both transmitted and covered by the
// request signature; re-encoding would break signature verification.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, auth bool, out interface{}) error {
	var rawQuery string
	if params != nil {
		rawQuery = params.Encode()
	}
	endpoint := c.cfg.BaseURL + path
	if rawQuery != "" {
		endpoint += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if auth {
		token, err := signToken(c.cfg.AccessKey, c.cfg.SecretKey, rawQuery)
		if err != nil {
			return fmt.Errorf("signing request %s %s: %w", method, path, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordError(err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w: %w", method, path, ports.ErrTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s %s: %w: %w", method, path, ports.ErrContextCanceled, err)
		}
		return fmt.Errorf("%s %s: %w: %w", method, path, ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordError(err.Error())
		return fmt.Errorf("%s %s: reading response: %w: %w", method, path, ports.ErrConnectionFailed, err)
	}

	if remaining := resp.Header.Get("Remaining-Req"); remaining != "" {
		c.logger.Debug(ctx, "Rate limit remaining", map[string]interface{}{"remaining": remaining})
	}
	c.logger.Debug(ctx, "Upbit response", map[string]interface{}{"method": method, "path": path, "status": resp.StatusCode})

	if resp.StatusCode >= 400 {
		apiErr := parseAPIError(resp.StatusCode, body)
		c.recordError(apiErr.UserMessage())
		return fmt.Errorf("%s %s: %w: %w", method, path, classify(resp.StatusCode), apiErr)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			c.recordError(err.Error())
			return fmt.Errorf("%s %s: decoding response: %w: %w", method, path, ports.ErrUnknown, err)
		}
	}
	c.recordOK()
	return nil
}

// isRetryable reports whether a failed request may be attempted again:
// connection failures, server-side errors, and rate limiting.
func isRetryable(err error) bool {
	return errors.Is(err, ports.ErrConnectionFailed) ||
		errors.Is(err, ports.ErrExchangeUnavailable) ||
		errors.Is(err, ports.ErrRateLimited)
}

// withRetry runs fn up to attempts times with exponential backoff between
// waitMin and waitMax. Non-retryable failures propagate immediately.
func (c *Client) withRetry(ctx context.Context, attempts int, waitMin, waitMax time.Duration, fn func() error) error {
	b := &backoff.Backoff{Min: waitMin, Max: waitMax, Factor: 2}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		delay := b.Duration()
		c.logger.Warn(ctx, "Retryable exchange failure, backing off", map[string]interface{}{
			"attempt": attempt, "delay": delay.String(), "error": err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
		}
	}
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// PlaceMarketBuy places an amount-denominated market buy (ord_type=price).
func (c *Client) PlaceMarketBuy(ctx context.Context, market string, amountKRW float64) (*ports.Order, error) {
	op := "PlaceMarketBuy"
	params := url.Values{}
	params.Set("market", market)
	params.Set("side", "bid")
	params.Set("price", formatFloat(amountKRW))
	params.Set("ord_type", "price")

	c.logger.Info(ctx, op, map[string]interface{}{"market": market, "amountKRW": amountKRW})
	var order ports.Order
	err := c.withRetry(ctx, c.cfg.OrderRetryAttempts, c.cfg.OrderRetryWaitMin, c.cfg.OrderRetryWaitMax, func() error {
		order = ports.Order{}
		return c.request(ctx, http.MethodPost, "/v1/orders", params, true, &order)
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrOrderPlacementFailed, err)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"market": market, "orderID": order.UUID})
	return &order, nil
}

// PlaceMarketSell places a volume-denominated market sell (ord_type=market).
func (c *Client) PlaceMarketSell(ctx context.Context, market string, volume float64) (*ports.Order, error) {
	op := "PlaceMarketSell"
	params := url.Values{}
	params.Set("market", market)
	params.Set("side", "ask")
	params.Set("volume", formatFloat(volume))
	params.Set("ord_type", "market")

	c.logger.Info(ctx, op, map[string]interface{}{"market": market, "volume": volume})
	var order ports.Order
	err := c.withRetry(ctx, c.cfg.OrderRetryAttempts, c.cfg.OrderRetryWaitMin, c.cfg.OrderRetryWaitMax, func() error {
		order = ports.Order{}
		return c.request(ctx, http.MethodPost, "/v1/orders", params, true, &order)
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrOrderPlacementFailed, err)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"market": market, "orderID": order.UUID})
	return &order, nil
}

// CancelOrder requests cancellation of an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*ports.Order, error) {
	op := "CancelOrder"
	params := url.Values{}
	params.Set("uuid", orderID)

	c.logger.Info(ctx, op, map[string]interface{}{"orderID": orderID})
	var order ports.Order
	if err := c.request(ctx, http.MethodDelete, "/v1/order", params, true, &order); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrOrderCancelFailed, err)
	}
	return &order, nil
}

// GetOrder fetches a single order snapshot.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*ports.Order, error) {
	op := "GetOrder"
	params := url.Values{}
	params.Set("uuid", orderID)

	var order ports.Order
	if err := c.request(ctx, http.MethodGet, "/v1/order", params, true, &order); err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	return &order, nil
}

// WaitOrderFilled polls the order until it is terminal or the configured fill
// timeout elapses. A done-but-partially-filled order fails with
// ErrPartiallyFilled; an order still pending at the deadline fails with
// ErrFillTimeout. Callers fall back to the cancel/re-check sequence on either.
func (c *Client) WaitOrderFilled(ctx context.Context, orderID string) (*ports.Order, error) {
	deadline := time.Now().Add(c.cfg.FillTimeout)
	for time.Now().Before(deadline) {
		order, err := c.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.IsDone() {
			return c.checkFullyFilled(order)
		}
		select {
		case <-time.After(c.cfg.FillPoll):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
		}
	}
	// One final check: the fill may have landed on the last poll boundary.
	order, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsDone() {
		return c.checkFullyFilled(order)
	}
	return nil, fmt.Errorf("order %s after %s: %w", orderID, c.cfg.FillTimeout, ports.ErrFillTimeout)
}

func (c *Client) checkFullyFilled(order *ports.Order) (*ports.Order, error) {
	if order.RemainingVolumeValue() > 0 {
		return nil, fmt.Errorf("order %s remaining %s: %w", order.UUID, order.RemainingVolume, ports.ErrPartiallyFilled)
	}
	return order, nil
}

// GetTicker returns the last trade price for a market.
func (c *Client) GetTicker(ctx context.Context, market string) (float64, error) {
	op := "GetTicker"
	params := url.Values{}
	params.Set("markets", market)

	var ticks []struct {
		TradePrice float64 `json:"trade_price"`
	}
	err := c.withRetry(ctx, c.cfg.PriceRetryAttempts, c.cfg.PriceRetryWaitMin, c.cfg.PriceRetryWaitMax, func() error {
		ticks = nil
		if err := c.request(ctx, http.MethodGet, "/v1/ticker", params, false, &ticks); err != nil {
			return err
		}
		if len(ticks) == 0 {
			return fmt.Errorf("empty ticker response for %s: %w", market, ports.ErrExchangeUnavailable)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w: %w", op, ports.ErrPriceFetchFailed, err)
	}
	return ticks[0].TradePrice, nil
}

// GetAccounts fetches all asset balances for the account.
func (c *Client) GetAccounts(ctx context.Context) ([]ports.Account, error) {
	op := "GetAccounts"
	var accounts []ports.Account
	if err := c.request(ctx, http.MethodGet, "/v1/accounts", nil, true, &accounts); err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	return accounts, nil
}
