package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akursin/profitpilot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleAlgorithm(id, name string) *domain.Algorithm {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Algorithm{
		ID:                id,
		Name:              name,
		Strategy:          "momentum",
		Status:            domain.AlgorithmActive,
		RiskLevel:         3,
		MaxPositions:      3,
		MaxPositionSize:   1500,
		StopLossPercent:   5,
		TakeProfitPercent: 15,
		Config:            map[string]any{"lookback": float64(30)},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func samplePosition(id, algoID string) *domain.Position {
	return &domain.Position{
		ID:           id,
		AlgorithmID:  algoID,
		Symbol:       "BTCUSDT",
		Side:         domain.SideLong,
		Quantity:     0.1,
		EntryPrice:   50000,
		CurrentPrice: 50000,
		StopLoss:     47500,
		TakeProfit:   57500,
		Status:       domain.PositionOpen,
		OpenedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func sampleWithdrawal(id string, createdAt time.Time) *domain.Withdrawal {
	return &domain.Withdrawal{
		ID:            id,
		WalletRef:     "hot-1",
		TargetAddress: "0xabc",
		Asset:         "USDT",
		Amount:        25,
		Network:       "TRC20",
		Status:        domain.WithdrawalPending,
		TriggerType:   domain.TriggerProfitClose,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestAlgorithmRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	algo := sampleAlgorithm("a1", "momentum")
	require.NoError(t, store.SaveAlgorithm(ctx, algo))

	got, err := store.GetAlgorithm(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, algo.Name, got.Name)
	assert.Equal(t, algo.Status, got.Status)
	assert.Equal(t, algo.MaxPositions, got.MaxPositions)
	assert.Equal(t, algo.Config, got.Config)

	byName, err := store.FindAlgorithmByName(ctx, "momentum")
	require.NoError(t, err)
	assert.Equal(t, "a1", byName.ID)

	n, err := store.CountAlgorithms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAlgorithmUpsertKeepsOneRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	algo := sampleAlgorithm("a1", "momentum")
	require.NoError(t, store.SaveAlgorithm(ctx, algo))

	algo.Status = domain.AlgorithmPaused
	algo.MaxPositions = 1
	require.NoError(t, store.SaveAlgorithm(ctx, algo))

	got, err := store.GetAlgorithm(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlgorithmPaused, got.Status)
	assert.Equal(t, 1, got.MaxPositions)

	n, _ := store.CountAlgorithms(ctx)
	assert.Equal(t, 1, n)
}

func TestAlgorithmNameUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAlgorithm(ctx, sampleAlgorithm("a1", "momentum")))
	// Same name under a different id must be rejected by the unique index.
	err := store.SaveAlgorithm(ctx, sampleAlgorithm("a2", "momentum"))
	assert.Error(t, err)
}

func TestGetAlgorithmNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetAlgorithm(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.FindAlgorithmByName(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pos := samplePosition("p1", "a1")
	require.NoError(t, store.SavePosition(ctx, pos))

	got, err := store.GetPosition(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionOpen, got.Status)
	assert.True(t, got.ClosedAt.IsZero())

	got.Status = domain.PositionClosed
	got.ClosedAt = time.Now().UTC().Truncate(time.Second)
	got.CloseReason = "take_profit"
	got.PnL = 750
	require.NoError(t, store.UpdatePosition(ctx, got))

	closed, err := store.GetPosition(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, closed.Status)
	assert.Equal(t, "take_profit", closed.CloseReason)
	assert.False(t, closed.ClosedAt.IsZero())
	assert.Equal(t, 750.0, closed.PnL)
}

func TestOpenPositionsIncludeClosing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	open := samplePosition("p1", "a1")
	closing := samplePosition("p2", "a1")
	closing.Status = domain.PositionClosing
	closed := samplePosition("p3", "a1")
	closed.Status = domain.PositionClosed
	other := samplePosition("p4", "a2")
	for _, p := range []*domain.Position{open, closing, closed, other} {
		require.NoError(t, store.SavePosition(ctx, p))
	}

	got, err := store.ListOpenPositions(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	n, err := store.CountOpenPositions(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpdatePositionNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdatePosition(context.Background(), samplePosition("missing", "a1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTradeSaveAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	trade := &domain.Trade{
		ID:          "t1",
		PositionID:  "p1",
		AlgorithmID: "a1",
		Symbol:      "BTCUSDT",
		Side:        domain.TradeBuy,
		Quantity:    0.1,
		Price:       50000,
		Status:      domain.TradePending,
		Confidence:  0.8,
		SignalRefs:  []string{"s1", "s2"},
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.SaveTrade(ctx, trade))

	require.NoError(t, store.UpdateTradeStatus(ctx, "t1", domain.TradeFilled, 50010))
	assert.ErrorIs(t, store.UpdateTradeStatus(ctx, "missing", domain.TradeFilled, 1), domain.ErrNotFound)

	n, err := store.CountTrades(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSignalRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, sigType := range []string{domain.SignalMomentum, domain.SignalBreakout, domain.SignalSpread} {
		require.NoError(t, store.SaveSignal(ctx, &domain.Signal{
			ID:        sigType,
			Symbol:    "BTCUSDT",
			Type:      sigType,
			Strength:  float64(10 * (i + 1)),
			Timeframe: "1m",
			Payload:   map[string]any{"price": float64(50000)},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := store.ListSignals(ctx, "BTCUSDT", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, domain.SignalSpread, got[0].Type)
	assert.Equal(t, map[string]any{"price": float64(50000)}, got[0].Payload)
}

func TestWithdrawalFIFO(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.SaveWithdrawal(ctx, sampleWithdrawal("w2", base.Add(time.Second))))
	require.NoError(t, store.SaveWithdrawal(ctx, sampleWithdrawal("w1", base)))
	require.NoError(t, store.SaveWithdrawal(ctx, sampleWithdrawal("w3", base.Add(2*time.Second))))

	got, err := store.ListPendingWithdrawals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "w1", got[0].ID)
	assert.Equal(t, "w2", got[1].ID)
	assert.Equal(t, "w3", got[2].ID)

	limited, err := store.ListPendingWithdrawals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "w1", limited[0].ID)
}

func TestConfirmedWithdrawalImmutable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := sampleWithdrawal("w1", time.Now().UTC())
	require.NoError(t, store.SaveWithdrawal(ctx, w))

	w.Status = domain.WithdrawalConfirmed
	w.TxReference = "0xdeadbeef"
	w.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpdateWithdrawal(ctx, w))

	// Any further mutation of a confirmed row is refused.
	w.Amount = 9999
	w.Status = domain.WithdrawalPending
	err := store.UpdateWithdrawal(ctx, w)
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)

	got, err := store.GetWithdrawal(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalConfirmed, got.Status)
	assert.Equal(t, "0xdeadbeef", got.TxReference)
	assert.Equal(t, 25.0, got.Amount)

	// Confirmed rows leave the pending queue.
	pending, err := store.ListPendingWithdrawals(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWithdrawalRetryFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := sampleWithdrawal("w1", time.Now().UTC())
	require.NoError(t, store.SaveWithdrawal(ctx, w))

	w.Attempts = 2
	w.NextAttemptAt = time.Now().UTC().Add(time.Minute).Truncate(time.Second)
	w.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpdateWithdrawal(ctx, w))

	got, err := store.GetWithdrawal(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.False(t, got.NextAttemptAt.IsZero())
}

func TestAuditTrail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	methods := []string{"ledger_transfer", "exchange_transfer", "conversion_bridge"}
	for i, method := range methods {
		require.NoError(t, store.SaveAuditRecord(ctx, &domain.AuditRecord{
			ID:           method,
			WithdrawalID: "w1",
			Method:       method,
			Asset:        "USDT",
			Amount:       25,
			Source:       "hot-1",
			Success:      i == len(methods)-1,
			Detail:       "attempt",
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.SaveAuditRecord(ctx, &domain.AuditRecord{
		ID: "other", WithdrawalID: "w2", Method: "ledger_transfer",
		Asset: "USDT", Amount: 5, CreatedAt: base,
	}))

	got, err := store.ListAuditRecords(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, rec := range got {
		assert.Equal(t, methods[i], rec.Method)
	}
	assert.True(t, got[2].Success)
}

func TestCountWithdrawals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveWithdrawal(ctx, sampleWithdrawal("w1", time.Now().UTC())))
	confirmed := sampleWithdrawal("w2", time.Now().UTC())
	confirmed.Status = domain.WithdrawalConfirmed
	require.NoError(t, store.SaveWithdrawal(ctx, confirmed))

	n, err := store.CountWithdrawals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNotFoundErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetPosition(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = store.GetWithdrawal(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
