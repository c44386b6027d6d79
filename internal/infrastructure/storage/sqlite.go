package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/akursin/profitpilot/internal/domain"
)

// SQLiteStore is the ledger store: algorithms, positions, trades, signals,
// withdrawals and the transfer audit trail, one table each. All mutations are
// single-row statements keyed by id.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// Serialized writes; the runners share this one handle.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS algorithms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			strategy TEXT NOT NULL,
			status TEXT NOT NULL,
			risk_level INTEGER NOT NULL,
			max_positions INTEGER NOT NULL,
			max_position_size REAL NOT NULL,
			stop_loss_percent REAL NOT NULL,
			take_profit_percent REAL NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			algorithm_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			entry_price REAL NOT NULL,
			current_price REAL NOT NULL,
			stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			status TEXT NOT NULL,
			pnl REAL NOT NULL DEFAULT 0,
			pnl_percent REAL NOT NULL DEFAULT 0,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME,
			close_reason TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_algo_status ON positions(algorithm_id, status);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			position_id TEXT NOT NULL DEFAULT '',
			algorithm_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			status TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			signal_refs TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_algorithm ON trades(algorithm_id);`,
		`CREATE TABLE IF NOT EXISTS signals (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			strength REAL NOT NULL,
			timeframe TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, created_at);`,
		`CREATE TABLE IF NOT EXISTS withdrawals (
			id TEXT PRIMARY KEY,
			wallet_ref TEXT NOT NULL,
			target_address TEXT NOT NULL,
			asset TEXT NOT NULL,
			amount REAL NOT NULL,
			network TEXT NOT NULL,
			destination_tag TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			tx_reference TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			next_attempt_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals(status, created_at);`,
		`CREATE TABLE IF NOT EXISTS audit_records (
			id TEXT PRIMARY KEY,
			withdrawal_id TEXT NOT NULL,
			method TEXT NOT NULL,
			asset TEXT NOT NULL,
			amount REAL NOT NULL,
			source TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			reference TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_withdrawal ON audit_records(withdrawal_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// AlgorithmRepository implementation

func (s *SQLiteStore) SaveAlgorithm(ctx context.Context, a *domain.Algorithm) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return err
	}
	query := `INSERT INTO algorithms (id, name, strategy, status, risk_level, max_positions, max_position_size, stop_loss_percent, take_profit_percent, config, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  status=excluded.status,
			  risk_level=excluded.risk_level,
			  max_positions=excluded.max_positions,
			  max_position_size=excluded.max_position_size,
			  stop_loss_percent=excluded.stop_loss_percent,
			  take_profit_percent=excluded.take_profit_percent,
			  config=excluded.config,
			  updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.Name, a.Strategy, a.Status, a.RiskLevel, a.MaxPositions,
		a.MaxPositionSize, a.StopLossPercent, a.TakeProfitPercent, string(cfg), a.CreatedAt, a.UpdatedAt)
	return err
}

const algorithmColumns = `id, name, strategy, status, risk_level, max_positions, max_position_size, stop_loss_percent, take_profit_percent, config, created_at, updated_at`

func scanAlgorithm(row interface{ Scan(...any) error }) (*domain.Algorithm, error) {
	var a domain.Algorithm
	var cfg string
	err := row.Scan(&a.ID, &a.Name, &a.Strategy, &a.Status, &a.RiskLevel, &a.MaxPositions,
		&a.MaxPositionSize, &a.StopLossPercent, &a.TakeProfitPercent, &cfg, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cfg != "" {
		_ = json.Unmarshal([]byte(cfg), &a.Config)
	}
	return &a, nil
}

func (s *SQLiteStore) GetAlgorithm(ctx context.Context, id string) (*domain.Algorithm, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+algorithmColumns+` FROM algorithms WHERE id = ?`, id)
	return scanAlgorithm(row)
}

func (s *SQLiteStore) FindAlgorithmByName(ctx context.Context, name string) (*domain.Algorithm, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+algorithmColumns+` FROM algorithms WHERE name = ?`, name)
	return scanAlgorithm(row)
}

func (s *SQLiteStore) ListAlgorithms(ctx context.Context) ([]*domain.Algorithm, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+algorithmColumns+` FROM algorithms ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var algos []*domain.Algorithm
	for rows.Next() {
		a, err := scanAlgorithm(rows)
		if err != nil {
			return nil, err
		}
		algos = append(algos, a)
	}
	return algos, rows.Err()
}

func (s *SQLiteStore) CountAlgorithms(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM algorithms`).Scan(&n)
	return n, err
}

// PositionRepository implementation

func (s *SQLiteStore) SavePosition(ctx context.Context, p *domain.Position) error {
	query := `INSERT INTO positions (id, algorithm_id, symbol, side, quantity, entry_price, current_price, stop_loss, take_profit, status, pnl, pnl_percent, opened_at, closed_at, close_reason)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.AlgorithmID, p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.CurrentPrice,
		p.StopLoss, p.TakeProfit, p.Status, p.PnL, p.PnLPercent, p.OpenedAt, nullTime(p.ClosedAt), p.CloseReason)
	return err
}

func (s *SQLiteStore) UpdatePosition(ctx context.Context, p *domain.Position) error {
	query := `UPDATE positions SET current_price = ?, stop_loss = ?, take_profit = ?, status = ?, pnl = ?, pnl_percent = ?, closed_at = ?, close_reason = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		p.CurrentPrice, p.StopLoss, p.TakeProfit, p.Status, p.PnL, p.PnLPercent,
		nullTime(p.ClosedAt), p.CloseReason, p.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const positionColumns = `id, algorithm_id, symbol, side, quantity, entry_price, current_price, stop_loss, take_profit, status, pnl, pnl_percent, opened_at, closed_at, close_reason`

func scanPosition(row interface{ Scan(...any) error }) (*domain.Position, error) {
	var p domain.Position
	var closedAt sql.NullTime
	err := row.Scan(&p.ID, &p.AlgorithmID, &p.Symbol, &p.Side, &p.Quantity, &p.EntryPrice,
		&p.CurrentPrice, &p.StopLoss, &p.TakeProfit, &p.Status, &p.PnL, &p.PnLPercent,
		&p.OpenedAt, &closedAt, &p.CloseReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		p.ClosedAt = closedAt.Time
	}
	return &p, nil
}

func (s *SQLiteStore) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	return scanPosition(row)
}

// ListOpenPositions returns positions still needing evaluation: open plus
// closing (a closing row is an exit retry in progress).
func (s *SQLiteStore) ListOpenPositions(ctx context.Context, algorithmID string) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE algorithm_id = ? AND status != ? ORDER BY opened_at`
	rows, err := s.db.QueryContext(ctx, query, algorithmID, domain.PositionClosed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *SQLiteStore) CountOpenPositions(ctx context.Context, algorithmID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE algorithm_id = ? AND status != ?`,
		algorithmID, domain.PositionClosed).Scan(&n)
	return n, err
}

// TradeRepository implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, t *domain.Trade) error {
	refs, err := json.Marshal(t.SignalRefs)
	if err != nil {
		return err
	}
	query := `INSERT INTO trades (id, position_id, algorithm_id, symbol, side, quantity, price, status, confidence, signal_refs, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.PositionID, t.AlgorithmID, t.Symbol, t.Side, t.Quantity, t.Price,
		t.Status, t.Confidence, string(refs), t.CreatedAt)
	return err
}

func (s *SQLiteStore) UpdateTradeStatus(ctx context.Context, id string, status domain.TradeStatus, fillPrice float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trades SET status = ?, price = ? WHERE id = ?`, status, fillPrice, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CountTrades(ctx context.Context, algorithmID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE algorithm_id = ?`, algorithmID).Scan(&n)
	return n, err
}

// SignalRepository implementation

func (s *SQLiteStore) SaveSignal(ctx context.Context, sig *domain.Signal) error {
	payload, err := json.Marshal(sig.Payload)
	if err != nil {
		return err
	}
	query := `INSERT INTO signals (id, symbol, signal_type, strength, timeframe, payload, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		sig.ID, sig.Symbol, sig.Type, sig.Strength, sig.Timeframe, string(payload), sig.CreatedAt)
	return err
}

func (s *SQLiteStore) ListSignals(ctx context.Context, symbol string, limit int) ([]*domain.Signal, error) {
	query := `SELECT id, symbol, signal_type, strength, timeframe, payload, created_at FROM signals WHERE symbol = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var payload string
		if err := rows.Scan(&sig.ID, &sig.Symbol, &sig.Type, &sig.Strength, &sig.Timeframe, &payload, &sig.CreatedAt); err != nil {
			return nil, err
		}
		if payload != "" {
			_ = json.Unmarshal([]byte(payload), &sig.Payload)
		}
		signals = append(signals, &sig)
	}
	return signals, rows.Err()
}

// WithdrawalRepository implementation

func (s *SQLiteStore) SaveWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	query := `INSERT INTO withdrawals (id, wallet_ref, target_address, asset, amount, network, destination_tag, status, trigger_type, tx_reference, attempts, next_attempt_at, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		w.ID, w.WalletRef, w.TargetAddress, w.Asset, w.Amount, w.Network, w.DestinationTag,
		w.Status, w.TriggerType, w.TxReference, w.Attempts, nullTime(w.NextAttemptAt), w.CreatedAt, w.UpdatedAt)
	return err
}

const withdrawalColumns = `id, wallet_ref, target_address, asset, amount, network, destination_tag, status, trigger_type, tx_reference, attempts, next_attempt_at, created_at, updated_at`

func scanWithdrawal(row interface{ Scan(...any) error }) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	var next sql.NullTime
	err := row.Scan(&w.ID, &w.WalletRef, &w.TargetAddress, &w.Asset, &w.Amount, &w.Network,
		&w.DestinationTag, &w.Status, &w.TriggerType, &w.TxReference, &w.Attempts, &next,
		&w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if next.Valid {
		w.NextAttemptAt = next.Time
	}
	return &w, nil
}

func (s *SQLiteStore) GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = ?`, id)
	return scanWithdrawal(row)
}

// UpdateWithdrawal refuses to touch confirmed rows: once confirmed, amount
// and tx reference are immutable.
func (s *SQLiteStore) UpdateWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	query := `UPDATE withdrawals SET status = ?, tx_reference = ?, attempts = ?, next_attempt_at = ?, updated_at = ?
			  WHERE id = ? AND status != ?`
	res, err := s.db.ExecContext(ctx, query,
		w.Status, w.TxReference, w.Attempts, nullTime(w.NextAttemptAt), w.UpdatedAt,
		w.ID, domain.WithdrawalConfirmed)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("withdrawal %s not updatable: %w", w.ID, domain.ErrConstraintViolation)
	}
	return nil
}

// ListPendingWithdrawals returns pending rows strictly in enqueue order.
func (s *SQLiteStore) ListPendingWithdrawals(ctx context.Context, limit int) ([]*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE status = ? ORDER BY created_at LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, domain.WithdrawalPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []*domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

func (s *SQLiteStore) CountWithdrawals(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM withdrawals`).Scan(&n)
	return n, err
}

// AuditRepository implementation

func (s *SQLiteStore) SaveAuditRecord(ctx context.Context, r *domain.AuditRecord) error {
	query := `INSERT INTO audit_records (id, withdrawal_id, method, asset, amount, source, success, reference, detail, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.WithdrawalID, r.Method, r.Asset, r.Amount, r.Source, r.Success,
		r.Reference, r.Detail, r.CreatedAt)
	return err
}

func (s *SQLiteStore) ListAuditRecords(ctx context.Context, withdrawalID string) ([]*domain.AuditRecord, error) {
	query := `SELECT id, withdrawal_id, method, asset, amount, source, success, reference, detail, created_at
			  FROM audit_records WHERE withdrawal_id = ? ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, withdrawalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var r domain.AuditRecord
		if err := rows.Scan(&r.ID, &r.WithdrawalID, &r.Method, &r.Asset, &r.Amount, &r.Source,
			&r.Success, &r.Reference, &r.Detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
