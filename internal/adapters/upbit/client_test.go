package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbitSignalBot/internal/ports"
)

type testLogger struct{}

func (testLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (testLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (testLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (testLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type testHealth struct {
	mu     sync.Mutex
	ok     int
	errors []string
}

func (h *testHealth) RecordAPIOK() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ok++
}

func (h *testHealth) RecordAPIError(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, message)
}

func newTestClient(t *testing.T, baseURL string) (*Client, *testHealth) {
	t.Helper()
	health := &testHealth{}
	client, err := New(Config{
		AccessKey:          "test-access",
		SecretKey:          "test-secret",
		BaseURL:            baseURL,
		Logger:             testLogger{},
		Health:             health,
		OrderRetryAttempts: 3,
		OrderRetryWaitMin:  time.Millisecond,
		OrderRetryWaitMax:  2 * time.Millisecond,
		FillTimeout:        50 * time.Millisecond,
		FillPoll:           5 * time.Millisecond,
		PriceRetryAttempts: 2,
		PriceRetryWaitMin:  time.Millisecond,
		PriceRetryWaitMax:  2 * time.Millisecond,
	})
	require.NoError(t, err)
	return client, health
}

func TestPlaceMarketBuy_SignsExactQueryString(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"uuid":"order-1","state":"wait","market":"KRW-BTC"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	order, err := client.PlaceMarketBuy(context.Background(), "KRW-BTC", 10000)
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.UUID)

	// url.Values.Encode sorts keys, so the wire order is deterministic.
	assert.Equal(t, "market=KRW-BTC&ord_type=price&price=10000&side=bid", gotQuery)

	require.True(t, strings.HasPrefix(gotAuth, "Bearer "))
	token, err := jwt.Parse(strings.TrimPrefix(gotAuth, "Bearer "), func(tok *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "test-access", claims["access_key"])
	assert.NotEmpty(t, claims["nonce"])
	assert.Equal(t, "SHA512", claims["query_hash_alg"])

	sum := sha512.Sum512([]byte(gotQuery))
	assert.Equal(t, hex.EncodeToString(sum[:]), claims["query_hash"])
}

func TestPlaceMarketBuy_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"name":"server_error","message":"temporary"}}`)
			return
		}
		fmt.Fprint(w, `{"uuid":"order-1","state":"wait"}`)
	}))
	defer srv.Close()

	client, health := newTestClient(t, srv.URL)
	order, err := client.PlaceMarketBuy(context.Background(), "KRW-BTC", 10000)
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.UUID)
	assert.Equal(t, 2, calls)
	assert.Len(t, health.errors, 1)
	assert.Equal(t, 1, health.ok)
}

func TestPlaceMarketBuy_ClientErrorIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"name":"insufficient_funds_bid","message":"not enough KRW"}}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.PlaceMarketBuy(context.Background(), "KRW-BTC", 10000)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ports.ErrOrderPlacementFailed)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "insufficient_funds_bid", apiErr.Name)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, "insufficient_funds_bid: not enough KRW", apiErr.UserMessage())
}

func TestPlaceMarketSell_SendsVolume(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"uuid":"sell-1","state":"wait"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.PlaceMarketSell(context.Background(), "KRW-BTC", 0.0002)
	require.NoError(t, err)
	assert.Equal(t, "market=KRW-BTC&ord_type=market&side=ask&volume=0.0002", gotQuery)
}

func TestWaitOrderFilled_ResolvesWhenDone(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			fmt.Fprint(w, `{"uuid":"order-1","state":"wait","remaining_volume":"0.0002"}`)
			return
		}
		fmt.Fprint(w, `{"uuid":"order-1","state":"done","remaining_volume":"0","executed_volume":"0.0002"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	order, err := client.WaitOrderFilled(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, order.IsDone())
	assert.GreaterOrEqual(t, calls, 3)
}

func TestWaitOrderFilled_PartialFill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"uuid":"order-1","state":"done","remaining_volume":"0.0001","executed_volume":"0.0001"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.WaitOrderFilled(context.Background(), "order-1")
	assert.ErrorIs(t, err, ports.ErrPartiallyFilled)
}

func TestWaitOrderFilled_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"uuid":"order-1","state":"wait","remaining_volume":"0.0002"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.WaitOrderFilled(context.Background(), "order-1")
	assert.ErrorIs(t, err, ports.ErrFillTimeout)
}

func TestGetTicker_UnauthenticatedAndRetried(t *testing.T) {
	var calls int
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		gotAuth = r.Header.Get("Authorization")
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[{"market":"KRW-BTC","trade_price":51234000.5}]`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	price, err := client.GetTicker(context.Background(), "KRW-BTC")
	require.NoError(t, err)
	assert.InDelta(t, 51234000.5, price, 1e-6)
	assert.Empty(t, gotAuth)
	assert.Equal(t, 2, calls)
}

func TestGetTicker_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	_, err := client.GetTicker(context.Background(), "KRW-BTC")
	assert.ErrorIs(t, err, ports.ErrPriceFetchFailed)
}

func TestGetAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"currency":"KRW","balance":"100000","avg_buy_price":"0"},{"currency":"BTC","balance":"0.0002","avg_buy_price":"50000000"}]`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	accounts, err := client.GetAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "BTC", accounts[1].Currency)
	assert.InDelta(t, 0.0002, accounts[1].BalanceValue(), 1e-12)
}

func TestCancelOrder(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		fmt.Fprint(w, `{"uuid":"order-1","state":"cancel"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	order, err := client.CancelOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "cancel", order.State)
}

func TestRequest_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Refuses connections from here on.

	client, health := newTestClient(t, srv.URL)
	_, err := client.GetOrder(context.Background(), "order-1")
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
	assert.NotEmpty(t, health.errors)
}
