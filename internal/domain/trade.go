package domain

import "time"

type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeFilled    TradeStatus = "filled"
	TradeCancelled TradeStatus = "cancelled"
	TradeRejected  TradeStatus = "rejected"
)

// Trade is an execution record. Trades are append-only; only status and fill
// price may change, on execution confirmation.
type Trade struct {
	ID          string
	PositionID  string // empty when no position exists yet
	AlgorithmID string
	Symbol      string
	Side        TradeSide
	Quantity    float64
	Price       float64
	Status      TradeStatus
	Confidence  float64
	SignalRefs  []string
	CreatedAt   time.Time
}
