package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")
	ErrPriceFetchFailed     = errors.New("failed to fetch ticker price")

	// Fill Resolution Errors
	ErrFillTimeout     = errors.New("order not filled within timeout")
	ErrPartiallyFilled = errors.New("order terminal but partially filled")
	ErrOrderNotFilled  = errors.New("order could not be filled")
	ErrInvalidFillData = errors.New("order fill data is invalid")

	// Entry Workflow Errors
	ErrDuplicateSignal     = errors.New("signal already processed")
	ErrPositionAlreadyOpen = errors.New("position already open")
	ErrUnsupportedAction   = errors.New("unsupported signal action")
	ErrBelowMinOrderSize   = errors.New("order amount below configured minimum")
)
