package domain

import "time"

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign is +1 for long exposure, -1 for short.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

type PositionStatus string

const (
	PositionOpen    PositionStatus = "open"
	PositionClosing PositionStatus = "closing"
	PositionClosed  PositionStatus = "closed"
)

// rank orders statuses for the forward-only transition check.
func (s PositionStatus) rank() int {
	switch s {
	case PositionOpen:
		return 0
	case PositionClosing:
		return 1
	case PositionClosed:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next respects the
// open -> closing -> closed ordering. Backward moves are never allowed.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	return next.rank() > s.rank()
}

// Position is a directional exposure to a symbol, owned by one Algorithm.
type Position struct {
	ID           string
	AlgorithmID  string
	Symbol       string
	Side         Side
	Quantity     float64
	EntryPrice   float64
	CurrentPrice float64
	StopLoss     float64
	TakeProfit   float64
	Status       PositionStatus
	PnL          float64
	PnLPercent   float64
	OpenedAt     time.Time
	ClosedAt     time.Time // zero until closed
	CloseReason  string
}

// UnrealizedPnL returns the mark-to-market profit at price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity * p.Side.Sign()
}

// UnrealizedPnLPercent returns the percentage move relative to entry,
// signed by side.
func (p *Position) UnrealizedPnLPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100 * p.Side.Sign()
}

// Age returns how long the position has been open as of now.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}
