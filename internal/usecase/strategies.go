package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akursin/profitpilot/internal/domain"
)

// Strategy names double as Algorithm names; the bootstrap step is keyed on
// them, so they must stay stable across restarts.
const (
	StrategyArbitrage = "arbitrage"
	StrategyMomentum  = "momentum"
	StrategyGrid      = "grid"
	StrategyDefiYield = "defi_yield"
	StrategyWeb3Bot   = "web3_bot"
)

// StrategyOverrides carries the config-file knobs shared by all profiles.
type StrategyOverrides struct {
	Interval        time.Duration
	Symbols         []string
	BaseQuantity    float64
	MaxPositions    int
	MaxPositionSize float64
}

func (o StrategyOverrides) apply(p StrategyProfile) StrategyProfile {
	if o.Interval > 0 {
		p.Interval = o.Interval
	}
	if len(o.Symbols) > 0 {
		p.Symbols = o.Symbols
	}
	if o.BaseQuantity > 0 {
		p.BaseQuantity = o.BaseQuantity
	}
	if o.MaxPositions > 0 {
		p.MaxPositions = o.MaxPositions
	}
	if o.MaxPositionSize > 0 {
		p.MaxPositionSize = o.MaxPositionSize
	}
	return p
}

// MomentumProfile trades in the direction of strong 24h moves.
func MomentumProfile(o StrategyOverrides) StrategyProfile {
	return o.apply(StrategyProfile{
		Name:              StrategyMomentum,
		Interval:          10 * time.Second,
		Symbols:           []string{"BTCUSDT", "ETHUSDT"},
		DeployThreshold:   35,
		BaseQuantity:      0.05,
		RiskLevel:         3,
		MaxPositions:      3,
		MaxPositionSize:   1500,
		StopLossPercent:   5,
		TakeProfitPercent: 15,
		Signals: SignalConfig{
			MomentumThreshold: 2.5,
			VolumePeriod:      20,
			VolumeMultiplier:  2,
			BreakoutPeriod:    30,
			BreakoutMargin:    0.5,
			SignificanceFloor: 20,
			Timeframe:         "10s",
		},
		Config: map[string]any{"lookback": 30},
	})
}

// GridProfile buys below and sells above a per-symbol anchor price, set from
// the first quote seen after start.
func GridProfile(o StrategyOverrides) StrategyProfile {
	anchors := make(map[string]float64)
	p := StrategyProfile{
		Name:              StrategyGrid,
		Interval:          15 * time.Second,
		Symbols:           []string{"BTCUSDT"},
		DeployThreshold:   15,
		BaseQuantity:      0.02,
		RiskLevel:         2,
		MaxPositions:      6,
		MaxPositionSize:   800,
		StopLossPercent:   4,
		TakeProfitPercent: 6,
		Signals: SignalConfig{
			MomentumThreshold: 1,
			VolumePeriod:      20,
			VolumeMultiplier:  2.5,
			BreakoutPeriod:    20,
			BreakoutMargin:    0.3,
			SignificanceFloor: 10,
			Timeframe:         "15s",
		},
		Config: map[string]any{"levels": 6, "spacing_percent": 1.0},
	}
	p.PickSide = func(sig *domain.Signal, q domain.Quote) domain.Side {
		anchor, ok := anchors[q.Symbol]
		if !ok {
			anchors[q.Symbol] = q.Price
			anchor = q.Price
		}
		if q.Price < anchor {
			return domain.SideLong
		}
		return domain.SideShort
	}
	return o.apply(p)
}

// DefiYieldProfile is long-only: deposits into yield venues have no short
// direction, a negative signal just keeps it flat.
func DefiYieldProfile(o StrategyOverrides) StrategyProfile {
	p := StrategyProfile{
		Name:              StrategyDefiYield,
		Interval:          30 * time.Second,
		Symbols:           []string{"ETHUSDT"},
		DeployThreshold:   25,
		BaseQuantity:      0.1,
		RiskLevel:         2,
		MaxPositions:      2,
		MaxPositionSize:   2000,
		StopLossPercent:   8,
		TakeProfitPercent: 12,
		Signals: SignalConfig{
			MomentumThreshold: 3,
			VolumePeriod:      20,
			VolumeMultiplier:  2,
			BreakoutPeriod:    40,
			BreakoutMargin:    0.8,
			SignificanceFloor: 25,
			Timeframe:         "30s",
		},
		Config: map[string]any{"pool": "stETH", "target_apr": 4.2},
	}
	p.PickSide = func(sig *domain.Signal, q domain.Quote) domain.Side {
		return domain.SideLong
	}
	return o.apply(p)
}

// Web3BotProfile is the generic threshold bot: any significant signal in
// either direction is traded as-is.
func Web3BotProfile(o StrategyOverrides) StrategyProfile {
	return o.apply(StrategyProfile{
		Name:              StrategyWeb3Bot,
		Interval:          20 * time.Second,
		Symbols:           []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		DeployThreshold:   30,
		BaseQuantity:      0.05,
		RiskLevel:         4,
		MaxPositions:      4,
		MaxPositionSize:   1000,
		StopLossPercent:   6,
		TakeProfitPercent: 10,
		Signals: SignalConfig{
			MomentumThreshold: 2,
			VolumePeriod:      15,
			VolumeMultiplier:  1.8,
			BreakoutPeriod:    25,
			BreakoutMargin:    0.4,
			SignificanceFloor: 15,
			Timeframe:         "20s",
		},
		Config: map[string]any{"chain": "ethereum"},
	})
}

// ArbitrageProfile compares the primary venue's quote with a secondary
// venue's and fires a spread signal when they diverge. The spread signal is
// long when the secondary venue prices the asset higher (buy here, value
// there), short in the opposite case.
func ArbitrageProfile(o StrategyOverrides, secondary domain.QuoteService, spreadThresholdPct float64, logger *zap.Logger) StrategyProfile {
	if spreadThresholdPct <= 0 {
		spreadThresholdPct = 0.4
	}
	p := StrategyProfile{
		Name:              StrategyArbitrage,
		Interval:          5 * time.Second,
		Symbols:           []string{"BTCUSDT", "ETHUSDT"},
		DeployThreshold:   30,
		BaseQuantity:      0.05,
		RiskLevel:         3,
		MaxPositions:      4,
		MaxPositionSize:   1200,
		StopLossPercent:   2,
		TakeProfitPercent: 3,
		Signals: SignalConfig{
			// The generic rules stay quiet here; the spread rule drives entries.
			MomentumThreshold: 100,
			SignificanceFloor: 100,
			Timeframe:         "5s",
		},
		Config: map[string]any{"spread_threshold_percent": spreadThresholdPct},
	}
	p.ExtraSignals = func(ctx context.Context, q domain.Quote) []*domain.Signal {
		if secondary == nil {
			return nil
		}
		others, err := secondary.Fetch(ctx, []string{q.Symbol})
		if err != nil || len(others) == 0 {
			if err != nil {
				logger.Warn("arbitrage: secondary venue fetch failed",
					zap.String("symbol", q.Symbol), zap.Error(err))
			}
			return nil
		}
		other := others[0]
		if q.Price <= 0 {
			return nil
		}
		spreadPct := (other.Price - q.Price) / q.Price * 100
		if absFloat(spreadPct) < spreadThresholdPct {
			return nil
		}
		return []*domain.Signal{{
			ID:        uuid.NewString(),
			Symbol:    q.Symbol,
			Type:      domain.SignalSpread,
			Strength:  clampStrength(spreadPct * 50),
			Timeframe: p.Signals.Timeframe,
			Payload: map[string]any{
				"primary_price":   q.Price,
				"secondary_price": other.Price,
				"spread_percent":  spreadPct,
			},
			CreatedAt: time.Now().UTC(),
		}}
	}
	return o.apply(p)
}
