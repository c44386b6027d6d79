package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/akursin/profitpilot/internal/domain"
)

// SimulatedExecutionClient fills every order immediately at the looked-up
// price plus a fixed slippage. Order ids are deterministic, which the tests
// rely on.
type SimulatedExecutionClient struct {
	priceFn     func(symbol string) float64
	slippagePct float64

	mu      sync.Mutex
	counter int
}

func NewSimulatedExecutionClient(priceFn func(symbol string) float64, slippagePct float64) *SimulatedExecutionClient {
	return &SimulatedExecutionClient{priceFn: priceFn, slippagePct: slippagePct}
}

func (c *SimulatedExecutionClient) SubmitOrder(_ context.Context, symbol string, side domain.TradeSide, quantity float64) (*domain.OrderResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("simulated execution: invalid quantity %f: %w", quantity, domain.ErrExecutionFailed)
	}

	c.mu.Lock()
	c.counter++
	orderID := fmt.Sprintf("sim-%06d", c.counter)
	c.mu.Unlock()

	var fill float64
	if c.priceFn != nil {
		fill = c.priceFn(symbol)
	}
	if fill > 0 {
		// Slippage works against the taker on both sides.
		if side == domain.TradeBuy {
			fill *= 1 + c.slippagePct/100
		} else {
			fill *= 1 - c.slippagePct/100
		}
	}

	return &domain.OrderResult{
		OrderID:   orderID,
		Status:    domain.TradeFilled,
		FillPrice: fill,
	}, nil
}

var _ domain.ExecutionClient = (*SimulatedExecutionClient)(nil)
