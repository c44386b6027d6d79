package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akursin/profitpilot/internal/domain"
)

// RunnerStatus is one runner's aggregated status snapshot.
type RunnerStatus struct {
	Name          string    `json:"name"`
	Running       bool      `json:"running"`
	AlgorithmID   string    `json:"algorithm_id,omitempty"`
	OpenPositions int       `json:"open_positions"`
	Trades        int       `json:"trades"`
	LastCycle     time.Time `json:"last_cycle"`
}

// SupervisorStatus aggregates all runners plus the shared withdrawal state.
type SupervisorStatus struct {
	Runners       []RunnerStatus `json:"runners"`
	Algorithms    int            `json:"algorithms"`
	Withdrawals   int            `json:"withdrawals"`
	DrainerActive bool           `json:"drainer_active"`
}

// Supervisor holds the runner registry. Runners are constructed lazily on
// first start; start and stop are idempotent per name. Runners touch disjoint
// algorithms, so no cross-runner locking is needed beyond the registry map.
type Supervisor struct {
	store     domain.LedgerStore
	engine    *WithdrawalEngine
	factories map[string]func() *Runner
	logger    *zap.Logger

	mu      sync.Mutex
	runners map[string]*Runner
}

func NewSupervisor(store domain.LedgerStore, engine *WithdrawalEngine, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		store:     store,
		engine:    engine,
		factories: make(map[string]func() *Runner),
		runners:   make(map[string]*Runner),
		logger:    logger,
	}
}

// Register installs a lazy constructor for a named runner.
func (s *Supervisor) Register(name string, factory func() *Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[name] = factory
}

// Names returns the registered runner names, sorted.
func (s *Supervisor) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.factories))
	for name := range s.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches the named runner, constructing it on first use.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	s.mu.Lock()
	runner, ok := s.runners[name]
	if !ok {
		factory, known := s.factories[name]
		if !known {
			s.mu.Unlock()
			return fmt.Errorf("unknown runner %q: %w", name, domain.ErrNotFound)
		}
		runner = factory()
		s.runners[name] = runner
	}
	s.mu.Unlock()
	return runner.Start(ctx)
}

// Stop halts the named runner. Stopping an unbuilt or stopped runner is a
// no-op.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	runner, ok := s.runners[name]
	s.mu.Unlock()
	if !ok {
		if _, known := s.factories[name]; !known {
			return fmt.Errorf("unknown runner %q: %w", name, domain.ErrNotFound)
		}
		return nil
	}
	runner.Stop()
	return nil
}

// StartAll starts every registered runner and the withdrawal drain loop.
func (s *Supervisor) StartAll(ctx context.Context) error {
	if s.engine != nil {
		s.engine.Start(ctx)
	}
	for _, name := range s.Names() {
		if err := s.Start(ctx, name); err != nil {
			s.logger.Error("failed to start runner", zap.String("runner", name), zap.Error(err))
		}
	}
	return nil
}

// StopAll stops every built runner, then the drain loop.
func (s *Supervisor) StopAll() {
	for _, name := range s.Names() {
		_ = s.Stop(name)
	}
	if s.engine != nil {
		s.engine.Stop()
	}
}

// Status aggregates a snapshot across all registered runners. Count queries
// that fail leave zeros; the snapshot must always be producible.
func (s *Supervisor) Status(ctx context.Context) SupervisorStatus {
	status := SupervisorStatus{}
	if s.engine != nil {
		status.DrainerActive = s.engine.Running()
	}
	if n, err := s.store.CountAlgorithms(ctx); err == nil {
		status.Algorithms = n
	}
	if n, err := s.store.CountWithdrawals(ctx); err == nil {
		status.Withdrawals = n
	}

	for _, name := range s.Names() {
		s.mu.Lock()
		runner := s.runners[name]
		s.mu.Unlock()

		rs := RunnerStatus{Name: name}
		if runner != nil {
			rs.Running = runner.Running()
			rs.AlgorithmID = runner.AlgorithmID()
			rs.LastCycle = runner.LastCycle()
			if rs.AlgorithmID != "" {
				if n, err := s.store.CountOpenPositions(ctx, rs.AlgorithmID); err == nil {
					rs.OpenPositions = n
				}
				if n, err := s.store.CountTrades(ctx, rs.AlgorithmID); err == nil {
					rs.Trades = n
				}
			}
		}
		status.Runners = append(status.Runners, rs)
	}
	return status
}
