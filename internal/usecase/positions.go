package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akursin/profitpilot/internal/domain"
)

const (
	trailingStopPercent = -8.0           // close when pnl% drops below this
	harvestAge          = 24 * time.Hour // minimum age for a time-based exit
	harvestMinPercent   = 5.0            // minimum pnl% for a time-based exit
)

// Close reasons, in evaluation priority order.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonTrailing   = "trailing_stop"
	ReasonTimeProfit = "time_profit_exit"
	ReasonManual     = "manual"
)

// ProfitSweepConfig controls how realized profit is converted into a
// withdrawal request on a profitable close.
type ProfitSweepConfig struct {
	MinProfit      float64 // quote-currency floor below which no sweep happens
	ConversionRate float64 // quote currency -> target asset
	WalletRef      string
	TargetAddress  string
	Asset          string
	Network        string
	DestinationTag string
}

// PositionManager opens and closes positions against the ledger store,
// enforcing per-algorithm limits and the exit rule set.
type PositionManager struct {
	store  domain.LedgerStore
	exec   domain.ExecutionClient
	queue  *WithdrawalQueue
	sweep  ProfitSweepConfig
	logger *zap.Logger

	// Serializes the count-then-create section of Deploy so concurrent
	// deploys cannot both pass the maxPositions check.
	deployMu sync.Mutex
}

func NewPositionManager(store domain.LedgerStore, exec domain.ExecutionClient, queue *WithdrawalQueue, sweep ProfitSweepConfig, logger *zap.Logger) *PositionManager {
	return &PositionManager{
		store:  store,
		exec:   exec,
		queue:  queue,
		sweep:  sweep,
		logger: logger,
	}
}

// Deploy opens a position for the algorithm. The position and its entry trade
// are only persisted after the execution venue accepts the order; an
// execution failure leaves no partial state behind.
func (m *PositionManager) Deploy(ctx context.Context, algorithmID, symbol string, side domain.Side, requestedQty, currentPrice, confidence float64, signalRefs []string) (*domain.Position, error) {
	m.deployMu.Lock()
	defer m.deployMu.Unlock()

	algo, err := m.store.GetAlgorithm(ctx, algorithmID)
	if err != nil {
		return nil, fmt.Errorf("deploy: load algorithm %s: %w", algorithmID, err)
	}
	if !algo.Tradable() {
		return nil, fmt.Errorf("deploy: algorithm %s is %s: %w", algo.Name, algo.Status, domain.ErrConstraintViolation)
	}
	open, err := m.store.CountOpenPositions(ctx, algorithmID)
	if err != nil {
		return nil, fmt.Errorf("deploy: count open positions: %w", err)
	}
	if open >= algo.MaxPositions {
		return nil, fmt.Errorf("deploy: %s has %d/%d open positions: %w", algo.Name, open, algo.MaxPositions, domain.ErrConstraintViolation)
	}
	if currentPrice <= 0 {
		return nil, fmt.Errorf("deploy: invalid price %f for %s: %w", currentPrice, symbol, domain.ErrConstraintViolation)
	}

	quantity := requestedQty
	if maxQty := algo.MaxPositionSize / currentPrice; maxQty < quantity {
		quantity = maxQty
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("deploy: zero quantity for %s: %w", symbol, domain.ErrConstraintViolation)
	}

	tradeSide := domain.TradeBuy
	if side == domain.SideShort {
		tradeSide = domain.TradeSell
	}
	result, err := m.exec.SubmitOrder(ctx, symbol, tradeSide, quantity)
	if err != nil {
		return nil, fmt.Errorf("deploy: submit %s %s: %w: %v", tradeSide, symbol, domain.ErrExecutionFailed, err)
	}
	entryPrice := result.FillPrice
	if entryPrice == 0 {
		entryPrice = currentPrice
	}

	stopLoss, takeProfit := exitLevels(side, entryPrice, algo.StopLossPercent, algo.TakeProfitPercent)

	now := time.Now().UTC()
	pos := &domain.Position{
		ID:           uuid.NewString(),
		AlgorithmID:  algorithmID,
		Symbol:       symbol,
		Side:         side,
		Quantity:     quantity,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		Status:       domain.PositionOpen,
		OpenedAt:     now,
	}
	if err := m.store.SavePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("deploy: save position: %w", err)
	}

	trade := &domain.Trade{
		ID:          uuid.NewString(),
		PositionID:  pos.ID,
		AlgorithmID: algorithmID,
		Symbol:      symbol,
		Side:        tradeSide,
		Quantity:    quantity,
		Price:       entryPrice,
		Status:      result.Status,
		Confidence:  confidence,
		SignalRefs:  signalRefs,
		CreatedAt:   now,
	}
	if trade.Status == "" {
		trade.Status = domain.TradePending
	}
	if err := m.store.SaveTrade(ctx, trade); err != nil {
		// The position exists; losing the trade record is reconcilable.
		m.logger.Error("deploy: failed to save entry trade",
			zap.String("position", pos.ID), zap.Error(err))
	}

	m.logger.Info("position opened",
		zap.String("algorithm", algo.Name),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", quantity),
		zap.Float64("entry", entryPrice),
		zap.Float64("stop_loss", stopLoss),
		zap.Float64("take_profit", takeProfit))
	return pos, nil
}

// EvaluateAndMaybeClose refreshes the position's mark and applies the exit
// rules in priority order: stop-loss, take-profit, trailing guard, time-based
// harvest. The first matching rule closes the position.
func (m *PositionManager) EvaluateAndMaybeClose(ctx context.Context, pos *domain.Position, currentPrice float64) (bool, string, error) {
	if pos.Status == domain.PositionClosed {
		return false, "", domain.ErrAlreadyClosed
	}
	if currentPrice <= 0 {
		return false, "", nil
	}

	pos.CurrentPrice = currentPrice
	pos.PnL = pos.UnrealizedPnL(currentPrice)
	pos.PnLPercent = pos.UnrealizedPnLPercent(currentPrice)
	if err := m.store.UpdatePosition(ctx, pos); err != nil {
		m.logger.Warn("failed to refresh position mark", zap.String("position", pos.ID), zap.Error(err))
	}

	reason := m.exitReason(pos, currentPrice)
	if reason == "" {
		if pos.Status != domain.PositionClosing {
			return false, "", nil
		}
		// The exit was decided on an earlier cycle but its order failed;
		// finish the close rather than resurrecting the position.
		reason = pos.CloseReason
		if reason == "" {
			reason = ReasonManual
		}
	}
	if err := m.Close(ctx, pos, currentPrice, reason); err != nil {
		return false, "", err
	}
	return true, reason, nil
}

func (m *PositionManager) exitReason(pos *domain.Position, price float64) string {
	switch {
	case pos.Side == domain.SideLong && price <= pos.StopLoss,
		pos.Side == domain.SideShort && price >= pos.StopLoss:
		return ReasonStopLoss
	case pos.Side == domain.SideLong && price >= pos.TakeProfit,
		pos.Side == domain.SideShort && price <= pos.TakeProfit:
		return ReasonTakeProfit
	case pos.UnrealizedPnLPercent(price) < trailingStopPercent:
		return ReasonTrailing
	case pos.Age(time.Now().UTC()) > harvestAge && pos.UnrealizedPnLPercent(price) > harvestMinPercent:
		return ReasonTimeProfit
	}
	return ""
}

// Close transitions the position open -> closing -> closed, appends the
// closing trade and, when the realized pnl clears the sweep floor, enqueues a
// profit withdrawal. A failed enqueue does not undo the close; the next
// profitable close retries nothing, operators reconcile from the pnl trail.
func (m *PositionManager) Close(ctx context.Context, pos *domain.Position, exitPrice float64, reason string) error {
	if pos.Status == domain.PositionClosed {
		return fmt.Errorf("close %s: %w", pos.ID, domain.ErrAlreadyClosed)
	}
	// A position already in closing is a retry of a failed exit order.
	if pos.Status == domain.PositionOpen {
		pos.Status = domain.PositionClosing
		pos.CloseReason = reason
		if err := m.store.UpdatePosition(ctx, pos); err != nil {
			pos.Status = domain.PositionOpen
			pos.CloseReason = ""
			return fmt.Errorf("close: mark closing: %w", err)
		}
	}

	closeSide := domain.TradeSell
	if pos.Side == domain.SideShort {
		closeSide = domain.TradeBuy
	}
	result, err := m.exec.SubmitOrder(ctx, pos.Symbol, closeSide, pos.Quantity)
	if err != nil {
		// Leave the position in closing; the next evaluation retries the exit.
		m.logger.Error("close: exit order failed",
			zap.String("position", pos.ID), zap.Error(err))
		return fmt.Errorf("close: submit exit order: %w: %v", domain.ErrExecutionFailed, err)
	}
	fill := result.FillPrice
	if fill == 0 {
		fill = exitPrice
	}

	now := time.Now().UTC()
	pnl := pos.UnrealizedPnL(fill)
	pos.CurrentPrice = fill
	pos.PnL = pnl
	pos.PnLPercent = pos.UnrealizedPnLPercent(fill)
	pos.Status = domain.PositionClosed
	pos.ClosedAt = now
	pos.CloseReason = reason
	if err := m.store.UpdatePosition(ctx, pos); err != nil {
		return fmt.Errorf("close: persist closed position: %w", err)
	}

	trade := &domain.Trade{
		ID:          uuid.NewString(),
		PositionID:  pos.ID,
		AlgorithmID: pos.AlgorithmID,
		Symbol:      pos.Symbol,
		Side:        closeSide,
		Quantity:    pos.Quantity,
		Price:       fill,
		Status:      domain.TradeFilled,
		CreatedAt:   now,
	}
	if err := m.store.SaveTrade(ctx, trade); err != nil {
		m.logger.Error("close: failed to save closing trade",
			zap.String("position", pos.ID), zap.Error(err))
	}

	m.logger.Info("position closed",
		zap.String("position", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("reason", reason),
		zap.Float64("exit", fill),
		zap.Float64("pnl", pnl))

	m.maybeSweepProfit(ctx, pos, pnl)
	return nil
}

func (m *PositionManager) maybeSweepProfit(ctx context.Context, pos *domain.Position, pnl float64) {
	if m.queue == nil || pnl <= m.sweep.MinProfit {
		return
	}
	rate := m.sweep.ConversionRate
	if rate <= 0 {
		rate = 1
	}
	w := &domain.Withdrawal{
		WalletRef:      m.sweep.WalletRef,
		TargetAddress:  m.sweep.TargetAddress,
		Asset:          m.sweep.Asset,
		Amount:         pnl * rate,
		Network:        m.sweep.Network,
		DestinationTag: m.sweep.DestinationTag,
		TriggerType:    domain.TriggerProfitClose,
	}
	if err := m.queue.Enqueue(ctx, w); err != nil {
		m.logger.Warn("profit sweep not enqueued",
			zap.String("position", pos.ID),
			zap.Float64("pnl", pnl),
			zap.Error(err))
	}
}

// exitLevels computes direction-aware stop-loss and take-profit prices from
// the algorithm's percentages.
func exitLevels(side domain.Side, entry, stopPct, takePct float64) (stopLoss, takeProfit float64) {
	if side == domain.SideShort {
		return entry * (1 + stopPct/100), entry * (1 - takePct/100)
	}
	return entry * (1 - stopPct/100), entry * (1 + takePct/100)
}
