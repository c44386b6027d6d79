package quotes

import (
	"context"
	"math/rand"
	"sync"

	"github.com/akursin/profitpilot/internal/domain"
)

// SimulatedQuoteService produces a random-walk price series per symbol.
// Useful for dry runs and tests; never fails.
type SimulatedQuoteService struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	drift  float64 // per-fetch percentage step bound

	startPrices map[string]float64
}

func NewSimulatedQuoteService(seed int64, startPrices map[string]float64) *SimulatedQuoteService {
	return &SimulatedQuoteService{
		rng:         rand.New(rand.NewSource(seed)),
		prices:      make(map[string]float64),
		drift:       0.8,
		startPrices: startPrices,
	}
}

func (s *SimulatedQuoteService) Fetch(_ context.Context, symbols []string) ([]domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quotes := make([]domain.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		price, ok := s.prices[symbol]
		if !ok {
			price = s.startPrices[symbol]
			if price <= 0 {
				price = 100
			}
		}
		stepPct := (s.rng.Float64()*2 - 1) * s.drift
		price *= 1 + stepPct/100
		s.prices[symbol] = price

		quotes = append(quotes, domain.Quote{
			Symbol:        symbol,
			Price:         price,
			Volume:        1000 + s.rng.Float64()*9000,
			ChangePercent: (s.rng.Float64()*2 - 1) * 6,
		})
	}
	return quotes, nil
}

var _ domain.QuoteService = (*SimulatedQuoteService)(nil)
