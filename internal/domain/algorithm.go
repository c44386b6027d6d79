package domain

import "time"

type AlgorithmStatus string

const (
	AlgorithmActive   AlgorithmStatus = "active"
	AlgorithmInactive AlgorithmStatus = "inactive"
	AlgorithmPaused   AlgorithmStatus = "paused"
)

// Algorithm is a named, configured trading strategy instance. Algorithms are
// never hard-deleted; disabling one is a status update.
type Algorithm struct {
	ID                string
	Name              string
	Strategy          string
	Status            AlgorithmStatus
	RiskLevel         int // 1..5
	MaxPositions      int
	MaxPositionSize   float64 // quote-currency cap per position
	StopLossPercent   float64 // e.g. 5 means 5%
	TakeProfitPercent float64
	Config            map[string]any // strategy-specific blob, stored as JSON
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Tradable reports whether new positions may be opened for this algorithm.
func (a *Algorithm) Tradable() bool {
	return a.Status == AlgorithmActive
}
