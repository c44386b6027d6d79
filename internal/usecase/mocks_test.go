package usecase_test

import (
	"context"
	"sort"
	"sync"

	"github.com/akursin/profitpilot/internal/domain"
)

// MemoryStore is an in-memory LedgerStore for tests.
type MemoryStore struct {
	mu          sync.Mutex
	Algorithms  map[string]*domain.Algorithm
	Positions   map[string]*domain.Position
	Trades      []*domain.Trade
	Signals     []*domain.Signal
	Withdrawals map[string]*domain.Withdrawal
	withdrawSeq []string // enqueue order
	Audits      []*domain.AuditRecord

	SaveAlgorithmErr  error
	SavePositionErr   error
	SaveWithdrawalErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Algorithms:  make(map[string]*domain.Algorithm),
		Positions:   make(map[string]*domain.Position),
		Withdrawals: make(map[string]*domain.Withdrawal),
	}
}

func (m *MemoryStore) SaveAlgorithm(ctx context.Context, a *domain.Algorithm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveAlgorithmErr != nil {
		return m.SaveAlgorithmErr
	}
	cp := *a
	m.Algorithms[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAlgorithm(ctx context.Context, id string) (*domain.Algorithm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Algorithms[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) FindAlgorithmByName(ctx context.Context, name string) (*domain.Algorithm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Algorithms {
		if a.Name == name {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryStore) ListAlgorithms(ctx context.Context) ([]*domain.Algorithm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Algorithm, 0, len(m.Algorithms))
	for _, a := range m.Algorithms {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CountAlgorithms(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Algorithms), nil
}

func (m *MemoryStore) SavePosition(ctx context.Context, p *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SavePositionErr != nil {
		return m.SavePositionErr
	}
	cp := *p
	m.Positions[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Positions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdatePosition(ctx context.Context, p *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Positions[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	m.Positions[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ListOpenPositions(ctx context.Context, algorithmID string) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Position
	for _, p := range m.Positions {
		if p.AlgorithmID == algorithmID && p.Status != domain.PositionClosed {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (m *MemoryStore) CountOpenPositions(ctx context.Context, algorithmID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.Positions {
		if p.AlgorithmID == algorithmID && p.Status != domain.PositionClosed {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SaveTrade(ctx context.Context, t *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.Trades = append(m.Trades, &cp)
	return nil
}

func (m *MemoryStore) UpdateTradeStatus(ctx context.Context, id string, status domain.TradeStatus, fillPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Trades {
		if t.ID == id {
			t.Status = status
			t.Price = fillPrice
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MemoryStore) CountTrades(ctx context.Context, algorithmID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.Trades {
		if t.AlgorithmID == algorithmID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SaveSignal(ctx context.Context, s *domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.Signals = append(m.Signals, &cp)
	return nil
}

func (m *MemoryStore) ListSignals(ctx context.Context, symbol string, limit int) ([]*domain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Signal
	for i := len(m.Signals) - 1; i >= 0 && len(out) < limit; i-- {
		if m.Signals[i].Symbol == symbol {
			cp := *m.Signals[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveWithdrawalErr != nil {
		return m.SaveWithdrawalErr
	}
	cp := *w
	m.Withdrawals[w.ID] = &cp
	m.withdrawSeq = append(m.withdrawSeq, w.ID)
	return nil
}

func (m *MemoryStore) GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.Withdrawals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) UpdateWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Withdrawals[w.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Status == domain.WithdrawalConfirmed {
		return domain.ErrConstraintViolation
	}
	cp := *w
	m.Withdrawals[w.ID] = &cp
	return nil
}

func (m *MemoryStore) ListPendingWithdrawals(ctx context.Context, limit int) ([]*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Withdrawal
	for _, id := range m.withdrawSeq {
		if len(out) >= limit {
			break
		}
		if w := m.Withdrawals[id]; w.Status == domain.WithdrawalPending {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountWithdrawals(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Withdrawals), nil
}

func (m *MemoryStore) SaveAuditRecord(ctx context.Context, r *domain.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.Audits = append(m.Audits, &cp)
	return nil
}

func (m *MemoryStore) ListAuditRecords(ctx context.Context, withdrawalID string) ([]*domain.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AuditRecord
	for _, r := range m.Audits {
		if r.WithdrawalID == withdrawalID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MockExecution records submitted orders and can be told to fail.
type MockExecution struct {
	mu        sync.Mutex
	Orders    []MockOrder
	Err       error
	FillPrice float64
}

type MockOrder struct {
	Symbol   string
	Side     domain.TradeSide
	Quantity float64
}

func (m *MockExecution) SubmitOrder(ctx context.Context, symbol string, side domain.TradeSide, quantity float64) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Orders = append(m.Orders, MockOrder{Symbol: symbol, Side: side, Quantity: quantity})
	return &domain.OrderResult{OrderID: "mock-1", Status: domain.TradeFilled, FillPrice: m.FillPrice}, nil
}

func (m *MockExecution) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

// MockTransfer is one chain member with a scripted outcome.
type MockTransfer struct {
	Method  string
	Succeed bool
	Calls   int
}

func (m *MockTransfer) Name() string { return m.Method }

func (m *MockTransfer) Send(ctx context.Context, req domain.TransferRequest) domain.TransferResult {
	m.Calls++
	if m.Succeed {
		return domain.TransferResult{Success: true, Reference: m.Method + "-ref"}
	}
	return domain.TransferResult{Success: false, Detail: m.Method + " unavailable"}
}

// MockQuotes serves a fixed snapshot per Fetch.
type MockQuotes struct {
	mu     sync.Mutex
	Quotes []domain.Quote
	Err    error
	Calls  int
}

func (m *MockQuotes) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]domain.Quote(nil), m.Quotes...), nil
}
