package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akursin/profitpilot/internal/domain"
)

// StrategyProfile is the per-strategy parameter set a Runner is built from.
// The runner engine is shared; only the profile differs between strategies.
type StrategyProfile struct {
	Name              string
	Interval          time.Duration
	Symbols           []string
	DeployThreshold   float64 // min |signal strength| to deploy
	BaseQuantity      float64 // requested quantity before the size cap
	RiskLevel         int
	MaxPositions      int
	MaxPositionSize   float64
	StopLossPercent   float64
	TakeProfitPercent float64
	Signals           SignalConfig
	Config            map[string]any

	// PickSide maps a firing signal to a direction. Nil means trade the
	// signal's own direction.
	PickSide func(sig *domain.Signal, q domain.Quote) domain.Side

	// ExtraSignals lets a strategy contribute signals the generic rule set
	// does not produce (e.g. cross-venue spread). Optional.
	ExtraSignals func(ctx context.Context, q domain.Quote) []*domain.Signal
}

// Runner is one named periodic strategy task bound to a single Algorithm.
// Cycles run sequentially; a failing cycle is logged and the schedule
// continues. Start and Stop are idempotent.
type Runner struct {
	profile   StrategyProfile
	quotes    domain.QuoteService
	signals   *SignalGenerator
	positions *PositionManager
	store     domain.LedgerStore
	logger    *zap.Logger

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	algorithmID string
	lastCycle   time.Time
}

func NewRunner(profile StrategyProfile, quotes domain.QuoteService, signals *SignalGenerator, positions *PositionManager, store domain.LedgerStore, logger *zap.Logger) *Runner {
	return &Runner{
		profile:   profile,
		quotes:    quotes,
		signals:   signals,
		positions: positions,
		store:     store,
		logger:    logger.With(zap.String("runner", profile.Name)),
	}
}

func (r *Runner) Name() string { return r.profile.Name }

// Running reports the runner state: stopped or running, nothing else.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastCycle returns when the last cycle finished.
func (r *Runner) LastCycle() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCycle
}

// AlgorithmID returns the bound algorithm's id, empty before the first start.
func (r *Runner) AlgorithmID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.algorithmID
}

// Start bootstraps the runner's algorithm and launches the cycle loop.
// Starting an already-running runner is a no-op.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	algoID, err := r.ensureBootstrapped(ctx)
	if err != nil {
		return fmt.Errorf("start %s: %w", r.profile.Name, err)
	}
	r.algorithmID = algoID

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(loopCtx, r.done)
	r.logger.Info("runner started",
		zap.String("algorithm", algoID),
		zap.Duration("interval", r.profile.Interval))
	return nil
}

// Stop halts the loop; the in-flight cycle finishes first. Stopping an
// already-stopped runner is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.running = false
	r.mu.Unlock()

	// Wait outside the lock: the in-flight cycle touches it on the way out.
	cancel()
	<-done
	r.logger.Info("runner stopped")
}

// ensureBootstrapped finds the runner's Algorithm by name, creating it with
// the profile defaults when absent. Tolerant of a concurrent create: a
// lookup races to the same row by unique name.
func (r *Runner) ensureBootstrapped(ctx context.Context) (string, error) {
	algo, err := r.store.FindAlgorithmByName(ctx, r.profile.Name)
	if err == nil {
		return algo.ID, nil
	}

	now := time.Now().UTC()
	algo = &domain.Algorithm{
		ID:                uuid.NewString(),
		Name:              r.profile.Name,
		Strategy:          r.profile.Name,
		Status:            domain.AlgorithmActive,
		RiskLevel:         r.profile.RiskLevel,
		MaxPositions:      r.profile.MaxPositions,
		MaxPositionSize:   r.profile.MaxPositionSize,
		StopLossPercent:   r.profile.StopLossPercent,
		TakeProfitPercent: r.profile.TakeProfitPercent,
		Config:            r.profile.Config,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := r.store.SaveAlgorithm(ctx, algo); err != nil {
		// Lost the create race; the row exists now.
		if existing, lookupErr := r.store.FindAlgorithmByName(ctx, r.profile.Name); lookupErr == nil {
			return existing.ID, nil
		}
		return "", fmt.Errorf("bootstrap algorithm %s: %w", r.profile.Name, err)
	}
	r.logger.Info("algorithm bootstrapped", zap.String("id", algo.ID))
	return algo.ID, nil
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.profile.Interval)
	defer ticker.Stop()

	r.safeCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.safeCycle(ctx)
		}
	}
}

// safeCycle runs one cycle and absorbs any failure. A panicking or erroring
// cycle must never take the schedule down.
func (r *Runner) safeCycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("cycle panicked", zap.Any("panic", rec))
		}
		r.mu.Lock()
		r.lastCycle = time.Now().UTC()
		r.mu.Unlock()
	}()
	if err := r.cycle(ctx); err != nil {
		r.logger.Error("cycle failed", zap.Error(err))
	}
}

func (r *Runner) cycle(ctx context.Context) error {
	quotes, err := r.quotes.Fetch(ctx, r.profile.Symbols)
	if err != nil {
		return fmt.Errorf("fetch quotes: %w", err)
	}
	prices := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		prices[q.Symbol] = q.Price
	}

	for _, q := range quotes {
		r.evaluateEntry(ctx, q)
	}

	open, err := r.store.ListOpenPositions(ctx, r.algorithmID)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}
	for _, pos := range open {
		price, ok := prices[pos.Symbol]
		if !ok {
			// Quote fetch failed for this symbol; skip it this cycle.
			continue
		}
		closed, reason, err := r.positions.EvaluateAndMaybeClose(ctx, pos, price)
		if err != nil {
			r.logger.Error("position evaluation failed",
				zap.String("position", pos.ID), zap.Error(err))
			continue
		}
		if closed {
			r.logger.Info("position exited",
				zap.String("position", pos.ID), zap.String("reason", reason))
		}
	}
	return nil
}

func (r *Runner) evaluateEntry(ctx context.Context, q domain.Quote) {
	sigs := r.signals.Generate(ctx, q, r.profile.Signals)
	if r.profile.ExtraSignals != nil {
		for _, s := range r.profile.ExtraSignals(ctx, q) {
			if err := r.store.SaveSignal(ctx, s); err != nil {
				r.logger.Error("failed to persist strategy signal",
					zap.String("symbol", s.Symbol), zap.Error(err))
			}
			sigs = append(sigs, s)
		}
	}

	best := strongestSignal(sigs)
	if best == nil || absFloat(best.Strength) < r.profile.DeployThreshold {
		return
	}

	side := signalSide(best)
	if r.profile.PickSide != nil {
		side = r.profile.PickSide(best, q)
	}

	refs := make([]string, 0, len(sigs))
	for _, s := range sigs {
		refs = append(refs, s.ID)
	}
	confidence := absFloat(best.Strength) / 100

	_, err := r.positions.Deploy(ctx, r.algorithmID, q.Symbol, side, r.profile.BaseQuantity, q.Price, confidence, refs)
	switch {
	case err == nil:
	case isConstraint(err):
		r.logger.Debug("deploy skipped", zap.String("symbol", q.Symbol), zap.Error(err))
	default:
		r.logger.Error("deploy failed", zap.String("symbol", q.Symbol), zap.Error(err))
	}
}

func strongestSignal(sigs []*domain.Signal) *domain.Signal {
	var best *domain.Signal
	for _, s := range sigs {
		if best == nil || absFloat(s.Strength) > absFloat(best.Strength) {
			best = s
		}
	}
	return best
}

func signalSide(s *domain.Signal) domain.Side {
	if s.Strength < 0 {
		return domain.SideShort
	}
	return domain.SideLong
}

func isConstraint(err error) bool {
	return errors.Is(err, domain.ErrConstraintViolation)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
