package domain

import "time"

const (
	SignalMomentum = "momentum"
	SignalVolume   = "volume_surge"
	SignalBreakout = "breakout"
	SignalSpread   = "venue_spread"
)

// Signal is a scored directional indicator derived from market data.
// Strength is bounded to [-100, 100]; positive means long bias.
// Signals are append-only audit records.
type Signal struct {
	ID        string
	Symbol    string
	Type      string
	Strength  float64
	Timeframe string
	Payload   map[string]any
	CreatedAt time.Time
}
