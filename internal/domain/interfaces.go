package domain

import "context"

// QuoteService pulls current market data for a set of symbols. Partial
// failures are allowed: symbols that could not be fetched are simply absent
// from the result, and callers must skip them rather than abort.
type QuoteService interface {
	Fetch(ctx context.Context, symbols []string) ([]Quote, error)
}

// OrderResult is the venue's acknowledgement of a submitted order.
type OrderResult struct {
	OrderID   string
	Status    TradeStatus
	FillPrice float64 // 0 when the venue did not report a fill price
}

// ExecutionClient submits orders to an execution venue.
type ExecutionClient interface {
	SubmitOrder(ctx context.Context, symbol string, side TradeSide, quantity float64) (*OrderResult, error)
}

// TransferRequest describes one value transfer to an external address.
type TransferRequest struct {
	Asset          string
	Amount         float64
	TargetAddress  string
	Network        string
	DestinationTag string
}

// TransferResult is a tagged outcome: transfer failures are data, not
// exceptions, so the withdrawal engine can walk its fallback chain.
type TransferResult struct {
	Success   bool
	Reference string
	Detail    string
}

// TransferClient is one concrete transfer method in the fallback chain.
type TransferClient interface {
	Name() string
	Send(ctx context.Context, req TransferRequest) TransferResult
}

// AlgorithmRepository persists Algorithm records.
type AlgorithmRepository interface {
	SaveAlgorithm(ctx context.Context, a *Algorithm) error
	GetAlgorithm(ctx context.Context, id string) (*Algorithm, error)
	FindAlgorithmByName(ctx context.Context, name string) (*Algorithm, error)
	ListAlgorithms(ctx context.Context) ([]*Algorithm, error)
	CountAlgorithms(ctx context.Context) (int, error)
}

// PositionRepository persists Position records.
type PositionRepository interface {
	SavePosition(ctx context.Context, p *Position) error
	GetPosition(ctx context.Context, id string) (*Position, error)
	UpdatePosition(ctx context.Context, p *Position) error
	ListOpenPositions(ctx context.Context, algorithmID string) ([]*Position, error)
	CountOpenPositions(ctx context.Context, algorithmID string) (int, error)
}

// TradeRepository persists Trade records.
type TradeRepository interface {
	SaveTrade(ctx context.Context, t *Trade) error
	UpdateTradeStatus(ctx context.Context, id string, status TradeStatus, fillPrice float64) error
	CountTrades(ctx context.Context, algorithmID string) (int, error)
}

// SignalRepository persists Signal records.
type SignalRepository interface {
	SaveSignal(ctx context.Context, s *Signal) error
	ListSignals(ctx context.Context, symbol string, limit int) ([]*Signal, error)
}

// WithdrawalRepository persists Withdrawal records. ListPendingWithdrawals
// must return rows in enqueue (created_at) order: the queue is a strict FIFO.
type WithdrawalRepository interface {
	SaveWithdrawal(ctx context.Context, w *Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w *Withdrawal) error
	ListPendingWithdrawals(ctx context.Context, limit int) ([]*Withdrawal, error)
	CountWithdrawals(ctx context.Context) (int, error)
}

// AuditRepository persists the append-only transfer audit trail.
type AuditRepository interface {
	SaveAuditRecord(ctx context.Context, r *AuditRecord) error
	ListAuditRecords(ctx context.Context, withdrawalID string) ([]*AuditRecord, error)
}

// LedgerStore is the full persistence surface. It exclusively owns all
// persisted state; runner state (timers, client handles) is never persisted.
type LedgerStore interface {
	AlgorithmRepository
	PositionRepository
	TradeRepository
	SignalRepository
	WithdrawalRepository
	AuditRepository
}
