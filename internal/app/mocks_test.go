package app

import (
	"context"
	"sync"

	"upbitSignalBot/internal/domain"
	"upbitSignalBot/internal/ports"
)

// Mock implementations

type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockExchange struct {
	mu sync.Mutex

	buyOrder *ports.Order
	buyErr   error
	buyCalls int

	sellOrder *ports.Order
	sellErr   error
	sellCalls int

	cancelErr   error
	cancelCalls int

	waitOrder *ports.Order
	waitErr   error
	waitCalls int

	// getOrders is consumed in sequence; the last entry repeats.
	getOrders     []*ports.Order
	getOrderErr   error
	getOrderCalls int

	tickerSeq    []float64
	ticker       float64
	tickerErr    error
	tickerCalls  int
	accounts     []ports.Account
	accountsErr  error
	accountCalls int
}

func (m *mockExchange) PlaceMarketBuy(ctx context.Context, market string, amountKRW float64) (*ports.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buyCalls++
	return m.buyOrder, m.buyErr
}

func (m *mockExchange) PlaceMarketSell(ctx context.Context, market string, volume float64) (*ports.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sellCalls++
	return m.sellOrder, m.sellErr
}

func (m *mockExchange) CancelOrder(ctx context.Context, orderID string) (*ports.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls++
	return &ports.Order{UUID: orderID, State: "cancel"}, m.cancelErr
}

func (m *mockExchange) GetOrder(ctx context.Context, orderID string) (*ports.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrderCalls++
	if m.getOrderErr != nil {
		return nil, m.getOrderErr
	}
	if len(m.getOrders) == 0 {
		return &ports.Order{UUID: orderID, State: "wait"}, nil
	}
	order := m.getOrders[0]
	if len(m.getOrders) > 1 {
		m.getOrders = m.getOrders[1:]
	}
	return order, nil
}

func (m *mockExchange) WaitOrderFilled(ctx context.Context, orderID string) (*ports.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitCalls++
	return m.waitOrder, m.waitErr
}

func (m *mockExchange) GetTicker(ctx context.Context, market string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickerCalls++
	if m.tickerErr != nil {
		return 0, m.tickerErr
	}
	if len(m.tickerSeq) > 0 {
		price := m.tickerSeq[0]
		if len(m.tickerSeq) > 1 {
			m.tickerSeq = m.tickerSeq[1:]
		}
		return price, nil
	}
	return m.ticker, nil
}

func (m *mockExchange) GetAccounts(ctx context.Context) ([]ports.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountCalls++
	return m.accounts, m.accountsErr
}

func (m *mockExchange) tickerCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickerCalls
}

func (m *mockExchange) sellCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sellCalls
}

type mockJournal struct {
	mu     sync.Mutex
	events []*domain.LifecycleEvent
}

func (m *mockJournal) Record(ctx context.Context, event *domain.LifecycleEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return int64(len(m.events)), nil
}

func (m *mockJournal) Recent(ctx context.Context, limit int) ([]*domain.LifecycleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.LifecycleEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *mockJournal) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		out = append(out, ev.Kind)
	}
	return out
}
