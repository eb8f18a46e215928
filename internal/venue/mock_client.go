package venue

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-memory venue for tests and dry runs. It assigns
// tickets sequentially and supports per-ticket failure injection so
// partial-failure handling can be exercised.
type MockClient struct {
	mu         sync.Mutex
	nextTicket int64
	positions  map[int64]Position
	orders     map[int64]Order

	// FailTickets makes operations on these tickets return an error.
	FailTickets map[int64]error
	// FailPlace makes every PlaceOrder call fail.
	FailPlace error

	// Call log for assertions.
	Cancelled []int64
	Modified  []int64
	ClosedVol map[int64]float64
}

var _ Client = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		nextTicket:  700000,
		positions:   make(map[int64]Position),
		orders:      make(map[int64]Order),
		FailTickets: make(map[int64]error),
		ClosedVol:   make(map[int64]float64),
	}
}

// AddPosition seeds an open position and returns its ticket.
func (m *MockClient) AddPosition(p Position) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Ticket == 0 {
		m.nextTicket++
		p.Ticket = m.nextTicket
	}
	m.positions[p.Ticket] = p
	return p.Ticket
}

// AddOrder seeds a pending order and returns its ticket.
func (m *MockClient) AddOrder(o Order) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.Ticket == 0 {
		m.nextTicket++
		o.Ticket = m.nextTicket
	}
	m.orders[o.Ticket] = o
	return o.Ticket
}

func (m *MockClient) Positions(_ context.Context, symbol string) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Position
	for _, p := range m.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockClient) Orders(_ context.Context, symbol string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockClient) PlaceOrder(_ context.Context, req OrderRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPlace != nil {
		return 0, m.FailPlace
	}
	m.nextTicket++
	ticket := m.nextTicket
	m.orders[ticket] = Order{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Comment:    req.Comment,
	}
	return ticket, nil
}

func (m *MockClient) ModifyPosition(_ context.Context, ticket int64, stopLoss, takeProfit float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailTickets[ticket]; err != nil {
		return err
	}
	p, ok := m.positions[ticket]
	if !ok {
		return fmt.Errorf("modify position %d: %w", ticket, ErrTicketNotFound)
	}
	p.StopLoss = stopLoss
	p.TakeProfit = takeProfit
	m.positions[ticket] = p
	m.Modified = append(m.Modified, ticket)
	return nil
}

func (m *MockClient) ModifyOrder(_ context.Context, ticket int64, stopLoss, takeProfit float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailTickets[ticket]; err != nil {
		return err
	}
	o, ok := m.orders[ticket]
	if !ok {
		return fmt.Errorf("modify order %d: %w", ticket, ErrTicketNotFound)
	}
	o.StopLoss = stopLoss
	o.TakeProfit = takeProfit
	m.orders[ticket] = o
	m.Modified = append(m.Modified, ticket)
	return nil
}

func (m *MockClient) CancelOrder(_ context.Context, ticket int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailTickets[ticket]; err != nil {
		return err
	}
	if _, ok := m.orders[ticket]; !ok {
		return fmt.Errorf("cancel order %d: %w", ticket, ErrTicketNotFound)
	}
	delete(m.orders, ticket)
	m.Cancelled = append(m.Cancelled, ticket)
	return nil
}

func (m *MockClient) ClosePosition(_ context.Context, ticket int64, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailTickets[ticket]; err != nil {
		return err
	}
	p, ok := m.positions[ticket]
	if !ok {
		return fmt.Errorf("close position %d: %w", ticket, ErrTicketNotFound)
	}
	m.ClosedVol[ticket] += volume
	if volume >= p.Volume {
		delete(m.positions, ticket)
	} else {
		p.Volume -= volume
		m.positions[ticket] = p
	}
	return nil
}

func (m *MockClient) Ping(context.Context) error { return nil }

func (m *MockClient) Close() error { return nil }

// Fill converts a pending order into an open position, simulating
// a venue fill.
func (m *MockClient) Fill(ticket int64) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[ticket]
	if !ok {
		return Position{}, false
	}
	delete(m.orders, ticket)
	p := Position{
		Ticket:     ticket,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Volume:     o.Volume,
		OpenPrice:  o.Price,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		Comment:    o.Comment,
	}
	m.positions[ticket] = p
	return p, true
}
