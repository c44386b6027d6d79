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

// WithdrawalQueueConfig tunes the durable withdrawal FIFO and its drain loop.
type WithdrawalQueueConfig struct {
	MinAmountUSD  float64            // requests below this USD value are rejected
	AssetRatesUSD map[string]float64 // asset -> USD rate; missing assets count 1:1
	DrainInterval time.Duration
	MaxRetries    int           // attempts after a full chain failure
	RetryBackoff  time.Duration // delay before a failed item is retried
	DrainBatch    int           // pending rows fetched per drain pass
}

func (c WithdrawalQueueConfig) usdValue(asset string, amount float64) float64 {
	if rate, ok := c.AssetRatesUSD[asset]; ok && rate > 0 {
		return amount * rate
	}
	return amount
}

// WithdrawalQueue is the durable FIFO of pending profit transfers. Enqueue is
// safe for concurrent callers; ordering is the ledger's created_at order.
type WithdrawalQueue struct {
	repo   domain.WithdrawalRepository
	cfg    WithdrawalQueueConfig
	logger *zap.Logger
	mu     sync.Mutex
}

func NewWithdrawalQueue(repo domain.WithdrawalRepository, cfg WithdrawalQueueConfig, logger *zap.Logger) *WithdrawalQueue {
	if cfg.DrainBatch <= 0 {
		cfg.DrainBatch = 20
	}
	return &WithdrawalQueue{repo: repo, cfg: cfg, logger: logger}
}

// Enqueue appends a pending withdrawal. Requests below the USD-equivalent
// floor are rejected with ErrBelowMinimum and never persisted.
func (q *WithdrawalQueue) Enqueue(ctx context.Context, w *domain.Withdrawal) error {
	if q.cfg.usdValue(w.Asset, w.Amount) < q.cfg.MinAmountUSD {
		return fmt.Errorf("enqueue %s %f %s: %w", w.TargetAddress, w.Amount, w.Asset, domain.ErrBelowMinimum)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.Status = domain.WithdrawalPending
	w.CreatedAt = now
	w.UpdatedAt = now
	if err := q.repo.SaveWithdrawal(ctx, w); err != nil {
		return fmt.Errorf("enqueue withdrawal: %w", err)
	}
	q.logger.Info("withdrawal enqueued",
		zap.String("id", w.ID),
		zap.String("asset", w.Asset),
		zap.Float64("amount", w.Amount),
		zap.String("trigger", w.TriggerType))
	return nil
}

// Pending returns the next due pending withdrawals in FIFO order.
func (q *WithdrawalQueue) Pending(ctx context.Context) ([]*domain.Withdrawal, error) {
	rows, err := q.repo.ListPendingWithdrawals(ctx, q.cfg.DrainBatch)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	due := rows[:0]
	for _, w := range rows {
		if w.NextAttemptAt.IsZero() || !w.NextAttemptAt.After(now) {
			due = append(due, w)
		}
	}
	return due, nil
}

// WithdrawalEngine drains the queue and executes each item against an ordered
// chain of transfer methods, stopping at the first success. The drain loop is
// the only consumer: items are processed one at a time, in enqueue order, so
// a shared signing key is never used concurrently.
type WithdrawalEngine struct {
	queue  *WithdrawalQueue
	repo   domain.WithdrawalRepository
	audit  domain.AuditRepository
	chain  []domain.TransferClient
	cfg    WithdrawalQueueConfig
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewWithdrawalEngine(queue *WithdrawalQueue, repo domain.WithdrawalRepository, audit domain.AuditRepository, chain []domain.TransferClient, cfg WithdrawalQueueConfig, logger *zap.Logger) *WithdrawalEngine {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Minute
	}
	return &WithdrawalEngine{
		queue:  queue,
		repo:   repo,
		audit:  audit,
		chain:  chain,
		cfg:    cfg,
		logger: logger,
	}
}

// Start launches the drain loop. Starting twice is a no-op.
func (e *WithdrawalEngine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.cfg.DrainInterval)
		defer ticker.Stop()
		e.drain(loopCtx)
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				e.drain(loopCtx)
			}
		}
	}()
	e.logger.Info("withdrawal engine started", zap.Duration("interval", e.cfg.DrainInterval))
}

// Stop halts the drain loop after the in-flight pass finishes. Stopping twice
// is a no-op.
func (e *WithdrawalEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.cancel()
	<-e.done
	e.running = false
	e.logger.Info("withdrawal engine stopped")
}

// Running reports whether the drain loop is active.
func (e *WithdrawalEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *WithdrawalEngine) drain(ctx context.Context) {
	pending, err := e.queue.Pending(ctx)
	if err != nil {
		e.logger.Error("drain: failed to list pending withdrawals", zap.Error(err))
		return
	}
	for _, w := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := e.Process(ctx, w); err != nil {
			e.logger.Error("drain: withdrawal processing failed",
				zap.String("id", w.ID), zap.Error(err))
		}
	}
}

// Process runs one withdrawal through the transfer chain. Every attempt is
// recorded in the audit trail. On success the withdrawal is confirmed with
// the transfer reference and no further methods are tried; after a full chain
// failure the item is retried with backoff up to MaxRetries, then permanently
// failed.
func (e *WithdrawalEngine) Process(ctx context.Context, w *domain.Withdrawal) error {
	if w.Status != domain.WithdrawalPending {
		return nil
	}
	req := domain.TransferRequest{
		Asset:          w.Asset,
		Amount:         w.Amount,
		TargetAddress:  w.TargetAddress,
		Network:        w.Network,
		DestinationTag: w.DestinationTag,
	}

	for _, client := range e.chain {
		result := client.Send(ctx, req)
		e.recordAttempt(ctx, w, client.Name(), result)
		if !result.Success {
			e.logger.Warn("transfer method failed",
				zap.String("id", w.ID),
				zap.String("method", client.Name()),
				zap.String("detail", result.Detail))
			continue
		}
		w.Status = domain.WithdrawalConfirmed
		w.TxReference = result.Reference
		w.UpdatedAt = time.Now().UTC()
		if err := e.repo.UpdateWithdrawal(ctx, w); err != nil {
			return fmt.Errorf("confirm withdrawal %s: %w", w.ID, err)
		}
		e.logger.Info("withdrawal confirmed",
			zap.String("id", w.ID),
			zap.String("method", client.Name()),
			zap.String("reference", result.Reference))
		return nil
	}

	return e.failWithRetry(ctx, w)
}

func (e *WithdrawalEngine) failWithRetry(ctx context.Context, w *domain.Withdrawal) error {
	w.Attempts++
	w.UpdatedAt = time.Now().UTC()
	if w.Attempts >= e.cfg.MaxRetries {
		w.Status = domain.WithdrawalFailed
		if err := e.repo.UpdateWithdrawal(ctx, w); err != nil {
			return fmt.Errorf("mark withdrawal %s failed: %w", w.ID, err)
		}
		e.logger.Error("withdrawal permanently failed",
			zap.String("id", w.ID), zap.Int("attempts", w.Attempts))
		return fmt.Errorf("withdrawal %s: all methods exhausted after %d attempts: %w", w.ID, w.Attempts, domain.ErrTransferFailed)
	}

	w.NextAttemptAt = time.Now().UTC().Add(e.cfg.RetryBackoff)
	if err := e.repo.UpdateWithdrawal(ctx, w); err != nil {
		return fmt.Errorf("schedule withdrawal %s retry: %w", w.ID, err)
	}
	e.logger.Warn("withdrawal requeued for retry",
		zap.String("id", w.ID),
		zap.Int("attempt", w.Attempts),
		zap.Time("next_attempt", w.NextAttemptAt))
	return nil
}

func (e *WithdrawalEngine) recordAttempt(ctx context.Context, w *domain.Withdrawal, method string, result domain.TransferResult) {
	rec := &domain.AuditRecord{
		ID:           uuid.NewString(),
		WithdrawalID: w.ID,
		Method:       method,
		Asset:        w.Asset,
		Amount:       w.Amount,
		Source:       w.WalletRef,
		Success:      result.Success,
		Reference:    result.Reference,
		Detail:       result.Detail,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.audit.SaveAuditRecord(ctx, rec); err != nil {
		e.logger.Error("failed to append audit record",
			zap.String("withdrawal", w.ID), zap.String("method", method), zap.Error(err))
	}
}
