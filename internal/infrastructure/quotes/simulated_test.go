package quotes

import (
	"context"
	"testing"
)

func TestSimulatedQuotes_WalksFromStartPrices(t *testing.T) {
	s := NewSimulatedQuoteService(42, map[string]float64{"BTCUSDT": 50000})
	ctx := context.Background()

	first, err := s.Fetch(ctx, []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("quotes = %d, want 2", len(first))
	}
	// One drift step away from the start price, well within 1%.
	if first[0].Price < 49000 || first[0].Price > 51000 {
		t.Errorf("BTCUSDT price = %f, want near 50000", first[0].Price)
	}
	// Unseeded symbols start at the default.
	if first[1].Price < 99 || first[1].Price > 101 {
		t.Errorf("ETHUSDT price = %f, want near 100", first[1].Price)
	}

	second, err := s.Fetch(ctx, []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if second[0].Price == first[0].Price {
		t.Error("price did not move between fetches")
	}
	// The walk continues from the previous price, it does not reset.
	step := second[0].Price/first[0].Price - 1
	if step < -0.01 || step > 0.01 {
		t.Errorf("step = %f, want within the drift bound", step)
	}
}

func TestSimulatedQuotes_SameSeedSameSeries(t *testing.T) {
	a := NewSimulatedQuoteService(7, nil)
	b := NewSimulatedQuoteService(7, nil)
	ctx := context.Background()

	qa, _ := a.Fetch(ctx, []string{"BTCUSDT"})
	qb, _ := b.Fetch(ctx, []string{"BTCUSDT"})
	if qa[0].Price != qb[0].Price || qa[0].Volume != qb[0].Volume {
		t.Error("identical seeds produced different series")
	}
}
