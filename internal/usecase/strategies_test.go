package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/akursin/profitpilot/internal/domain"
	"github.com/akursin/profitpilot/internal/usecase"
)

func TestStrategyOverrides_Apply(t *testing.T) {
	p := usecase.MomentumProfile(usecase.StrategyOverrides{
		Interval:        time.Minute,
		Symbols:         []string{"SOLUSDT"},
		BaseQuantity:    0.5,
		MaxPositions:    1,
		MaxPositionSize: 250,
	})
	if p.Interval != time.Minute || p.BaseQuantity != 0.5 || p.MaxPositions != 1 || p.MaxPositionSize != 250 {
		t.Errorf("overrides not applied: %+v", p)
	}
	if len(p.Symbols) != 1 || p.Symbols[0] != "SOLUSDT" {
		t.Errorf("symbols override not applied: %v", p.Symbols)
	}

	defaults := usecase.MomentumProfile(usecase.StrategyOverrides{})
	if defaults.Interval != 10*time.Second || defaults.MaxPositions != 3 {
		t.Errorf("zero overrides changed the defaults: %+v", defaults)
	}
}

func TestGridProfile_TradesAroundAnchor(t *testing.T) {
	p := usecase.GridProfile(usecase.StrategyOverrides{})
	sig := &domain.Signal{Type: domain.SignalMomentum, Strength: 20}

	// First quote sets the anchor; at the anchor the grid sells.
	if side := p.PickSide(sig, domain.Quote{Symbol: "BTCUSDT", Price: 50000}); side != domain.SideShort {
		t.Errorf("side at anchor = %s, want short", side)
	}
	if side := p.PickSide(sig, domain.Quote{Symbol: "BTCUSDT", Price: 49500}); side != domain.SideLong {
		t.Errorf("side below anchor = %s, want long", side)
	}
	if side := p.PickSide(sig, domain.Quote{Symbol: "BTCUSDT", Price: 50500}); side != domain.SideShort {
		t.Errorf("side above anchor = %s, want short", side)
	}
	// Anchors are per symbol.
	if side := p.PickSide(sig, domain.Quote{Symbol: "ETHUSDT", Price: 3000}); side != domain.SideShort {
		t.Errorf("fresh symbol side = %s, want short at its own anchor", side)
	}
}

func TestDefiYieldProfile_LongOnly(t *testing.T) {
	p := usecase.DefiYieldProfile(usecase.StrategyOverrides{})
	short := &domain.Signal{Type: domain.SignalMomentum, Strength: -60}

	if side := p.PickSide(short, domain.Quote{Symbol: "ETHUSDT", Price: 3000}); side != domain.SideLong {
		t.Errorf("side = %s, want long even on a short signal", side)
	}
}

func TestArbitrageProfile_SpreadSignal(t *testing.T) {
	secondary := &MockQuotes{Quotes: []domain.Quote{{Symbol: "BTCUSDT", Price: 50500}}}
	p := usecase.ArbitrageProfile(usecase.StrategyOverrides{}, secondary, 0.4, zap.NewNop())

	sigs := p.ExtraSignals(context.Background(), domain.Quote{Symbol: "BTCUSDT", Price: 50000})
	if len(sigs) != 1 {
		t.Fatalf("signals = %d, want 1 for a 1%% spread", len(sigs))
	}
	s := sigs[0]
	if s.Type != domain.SignalSpread {
		t.Errorf("type = %q, want venue_spread", s.Type)
	}
	// 1% spread scores 50, long because the secondary venue is richer.
	if s.Strength != 50 {
		t.Errorf("strength = %f, want 50", s.Strength)
	}
}

func TestArbitrageProfile_NegativeSpreadIsShort(t *testing.T) {
	secondary := &MockQuotes{Quotes: []domain.Quote{{Symbol: "BTCUSDT", Price: 49500}}}
	p := usecase.ArbitrageProfile(usecase.StrategyOverrides{}, secondary, 0.4, zap.NewNop())

	sigs := p.ExtraSignals(context.Background(), domain.Quote{Symbol: "BTCUSDT", Price: 50000})
	if len(sigs) != 1 || sigs[0].Strength != -50 {
		t.Fatalf("want one signal with strength -50, got %v", sigs)
	}
}

func TestArbitrageProfile_TightSpreadIgnored(t *testing.T) {
	secondary := &MockQuotes{Quotes: []domain.Quote{{Symbol: "BTCUSDT", Price: 50100}}}
	p := usecase.ArbitrageProfile(usecase.StrategyOverrides{}, secondary, 0.4, zap.NewNop())

	// 0.2% is under the 0.4% threshold.
	if sigs := p.ExtraSignals(context.Background(), domain.Quote{Symbol: "BTCUSDT", Price: 50000}); len(sigs) != 0 {
		t.Fatalf("signals = %d, want 0 under the spread threshold", len(sigs))
	}
}

func TestArbitrageProfile_SecondaryFailureIsQuiet(t *testing.T) {
	secondary := &MockQuotes{Err: errors.New("venue down")}
	p := usecase.ArbitrageProfile(usecase.StrategyOverrides{}, secondary, 0.4, zap.NewNop())

	if sigs := p.ExtraSignals(context.Background(), domain.Quote{Symbol: "BTCUSDT", Price: 50000}); sigs != nil {
		t.Fatalf("signals = %v, want none when the secondary venue fails", sigs)
	}
}
