package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"github.com/akursin/profitpilot/internal/domain"
)

const maxWindowSize = 200 // rolling history cap per symbol

// SignalConfig tunes the deterministic rule set of a SignalGenerator.
type SignalConfig struct {
	MomentumThreshold float64 // min |24h change %| for a momentum signal
	VolumePeriod      int     // EMA period for the volume baseline
	VolumeMultiplier  float64 // volume must exceed multiplier * baseline
	BreakoutPeriod    int     // lookback for the high/low band
	BreakoutMargin    float64 // % beyond the band required to fire
	SignificanceFloor float64 // |strength| below this is discarded
	Timeframe         string
}

// SignalGenerator turns market snapshots into scored directional signals.
// It keeps a rolling per-symbol price/volume history fed by each snapshot.
type SignalGenerator struct {
	repo   domain.SignalRepository
	logger *zap.Logger

	mu      sync.Mutex
	prices  map[string][]float64
	volumes map[string][]float64
}

func NewSignalGenerator(repo domain.SignalRepository, logger *zap.Logger) *SignalGenerator {
	return &SignalGenerator{
		repo:    repo,
		logger:  logger,
		prices:  make(map[string][]float64),
		volumes: make(map[string][]float64),
	}
}

// Generate evaluates one quote against the rule set and persists every signal
// whose strength clears the significance floor. Persistence failures are
// logged and do not suppress the signal: the signal trail is audit-only.
func (g *SignalGenerator) Generate(ctx context.Context, q domain.Quote, cfg SignalConfig) []*domain.Signal {
	g.mu.Lock()
	prevPrices := append([]float64(nil), g.prices[q.Symbol]...)
	g.prices[q.Symbol] = appendBounded(g.prices[q.Symbol], q.Price)
	g.volumes[q.Symbol] = appendBounded(g.volumes[q.Symbol], q.Volume)
	volumes := append([]float64(nil), g.volumes[q.Symbol]...)
	g.mu.Unlock()

	var out []*domain.Signal

	if s := g.momentumSignal(q, cfg); s != nil {
		out = append(out, s)
	}
	if s := g.volumeSignal(q, cfg, volumes); s != nil {
		out = append(out, s)
	}
	if s := g.breakoutSignal(q, cfg, prevPrices); s != nil {
		out = append(out, s)
	}

	kept := out[:0]
	for _, s := range out {
		if math.Abs(s.Strength) < cfg.SignificanceFloor {
			continue
		}
		if err := g.repo.SaveSignal(ctx, s); err != nil {
			g.logger.Error("failed to persist signal",
				zap.String("symbol", s.Symbol), zap.String("type", s.Type), zap.Error(err))
		}
		kept = append(kept, s)
	}
	return kept
}

func (g *SignalGenerator) momentumSignal(q domain.Quote, cfg SignalConfig) *domain.Signal {
	if math.Abs(q.ChangePercent) <= cfg.MomentumThreshold {
		return nil
	}
	return g.newSignal(q.Symbol, domain.SignalMomentum, clampStrength(q.ChangePercent*10), cfg, map[string]any{
		"change_percent": q.ChangePercent,
		"price":          q.Price,
	})
}

func (g *SignalGenerator) volumeSignal(q domain.Quote, cfg SignalConfig, volumes []float64) *domain.Signal {
	if cfg.VolumePeriod <= 0 || len(volumes) <= cfg.VolumePeriod {
		return nil
	}
	ema := talib.Ema(volumes[:len(volumes)-1], cfg.VolumePeriod)
	baseline := ema[len(ema)-1]
	if baseline <= 0 || q.Volume <= cfg.VolumeMultiplier*baseline {
		return nil
	}
	// Surge direction follows the price move.
	strength := clampStrength((q.Volume/baseline - 1) * 40)
	if q.ChangePercent < 0 {
		strength = -strength
	}
	return g.newSignal(q.Symbol, domain.SignalVolume, strength, cfg, map[string]any{
		"volume":   q.Volume,
		"baseline": baseline,
	})
}

func (g *SignalGenerator) breakoutSignal(q domain.Quote, cfg SignalConfig, prevPrices []float64) *domain.Signal {
	if cfg.BreakoutPeriod <= 0 || len(prevPrices) < cfg.BreakoutPeriod {
		return nil
	}
	highs := talib.Max(prevPrices, cfg.BreakoutPeriod)
	lows := talib.Min(prevPrices, cfg.BreakoutPeriod)
	high := highs[len(highs)-1]
	low := lows[len(lows)-1]
	margin := cfg.BreakoutMargin / 100

	switch {
	case high > 0 && q.Price > high*(1+margin):
		strength := clampStrength((q.Price - high) / high * 100 * 25)
		return g.newSignal(q.Symbol, domain.SignalBreakout, strength, cfg, map[string]any{
			"band_high": high, "price": q.Price,
		})
	case low > 0 && q.Price < low*(1-margin):
		strength := -clampStrength((low - q.Price) / low * 100 * 25)
		return g.newSignal(q.Symbol, domain.SignalBreakout, strength, cfg, map[string]any{
			"band_low": low, "price": q.Price,
		})
	}
	return nil
}

func (g *SignalGenerator) newSignal(symbol, sigType string, strength float64, cfg SignalConfig, payload map[string]any) *domain.Signal {
	return &domain.Signal{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Type:      sigType,
		Strength:  strength,
		Timeframe: cfg.Timeframe,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

func appendBounded(window []float64, v float64) []float64 {
	window = append(window, v)
	if len(window) > maxWindowSize {
		window = window[len(window)-maxWindowSize:]
	}
	return window
}

func clampStrength(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}
