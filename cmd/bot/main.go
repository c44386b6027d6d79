package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/akursin/profitpilot/internal/config"
	"github.com/akursin/profitpilot/internal/domain"
	"github.com/akursin/profitpilot/internal/infrastructure/execution"
	"github.com/akursin/profitpilot/internal/infrastructure/logger"
	"github.com/akursin/profitpilot/internal/infrastructure/quotes"
	"github.com/akursin/profitpilot/internal/infrastructure/storage"
	"github.com/akursin/profitpilot/internal/infrastructure/transfer"
	"github.com/akursin/profitpilot/internal/usecase"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	quoteService, secondaryQuotes := buildQuoteServices(cfg, log)
	execClient := buildExecutionClient(cfg, quoteService)
	chain := buildTransferChain(cfg, log)

	queueCfg := usecase.WithdrawalQueueConfig{
		MinAmountUSD:  cfg.Withdrawal.MinAmountUSD,
		AssetRatesUSD: cfg.Withdrawal.AssetRatesUSD,
		DrainInterval: cfg.DrainInterval(),
		MaxRetries:    cfg.Withdrawal.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff(),
	}
	queue := usecase.NewWithdrawalQueue(store, queueCfg, log)
	engine := usecase.NewWithdrawalEngine(queue, store, store, chain, queueCfg, log)

	sweep := usecase.ProfitSweepConfig{
		MinProfit:      cfg.Withdrawal.MinProfit,
		ConversionRate: cfg.Withdrawal.ConversionRate,
		WalletRef:      cfg.Withdrawal.WalletRef,
		TargetAddress:  cfg.Withdrawal.TargetAddress,
		Asset:          cfg.Withdrawal.Asset,
		Network:        cfg.Withdrawal.Network,
		DestinationTag: cfg.Withdrawal.DestinationTag,
	}
	positions := usecase.NewPositionManager(store, execClient, queue, sweep, log)

	supervisor := usecase.NewSupervisor(store, engine, log)
	registerRunners(supervisor, cfg, quoteService, secondaryQuotes, positions, store, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := supervisor.StartAll(ctx); err != nil {
		log.Fatal("Failed to start runners", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Periodic status snapshot for operators.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Strategies.StatusIntervalSecond) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshot := supervisor.Status(ctx)
				if data, err := json.Marshal(snapshot); err == nil {
					log.Info("status snapshot", zap.ByteString("status", data))
				}
			}
		}
	}()

	<-stop
	log.Info("Shutting down...")
	cancel()
	supervisor.StopAll()
}

func buildQuoteServices(cfg *config.Config, log *zap.Logger) (domain.QuoteService, domain.QuoteService) {
	var primary domain.QuoteService
	switch cfg.Quotes.Mode {
	case "rest":
		primary = quotes.NewRESTQuoteService(cfg.Quotes.RESTEndpoint, cfg.Quotes.RequestsPerSecond, log)
	case "stream":
		primary = quotes.NewStreamQuoteService(cfg.Quotes.WSEndpoint, log)
	default:
		primary = quotes.NewSimulatedQuoteService(time.Now().UnixNano(), map[string]float64{
			"BTCUSDT": 65000, "ETHUSDT": 3200, "SOLUSDT": 150,
		})
	}

	var secondary domain.QuoteService
	if cfg.Quotes.SecondaryEndpoint != "" {
		secondary = quotes.NewRESTQuoteService(cfg.Quotes.SecondaryEndpoint, cfg.Quotes.RequestsPerSecond, log)
	} else if cfg.Quotes.Mode == config.ModeSimulated {
		// A second random walk venue gives the arbitrage runner a spread.
		secondary = quotes.NewSimulatedQuoteService(time.Now().UnixNano()+1, map[string]float64{
			"BTCUSDT": 65000, "ETHUSDT": 3200, "SOLUSDT": 150,
		})
	}
	return primary, secondary
}

func buildExecutionClient(cfg *config.Config, quoteService domain.QuoteService) domain.ExecutionClient {
	if cfg.Execution.Mode == config.ModeLive {
		return execution.NewRESTExecutionClient(cfg.Execution.APIKey, cfg.Execution.APISecret, cfg.Execution.Endpoint)
	}
	priceFn := func(symbol string) float64 {
		qs, err := quoteService.Fetch(context.Background(), []string{symbol})
		if err != nil || len(qs) == 0 {
			return 0
		}
		return qs[0].Price
	}
	return execution.NewSimulatedExecutionClient(priceFn, cfg.Execution.SlippagePct)
}

// buildTransferChain assembles the fallback chain in its fixed order:
// ledger transfer, exchange transfer, conversion bridge, local record.
// Simulated and live members are never mixed.
func buildTransferChain(cfg *config.Config, log *zap.Logger) []domain.TransferClient {
	if cfg.Transfer.Mode == config.ModeLive {
		// No live chain signer or bridge is configured; the live chain is the
		// exchange withdrawal plus the record-only terminator.
		return []domain.TransferClient{
			transfer.NewLiveExchangeClient(cfg.Execution.APIKey, cfg.Execution.APISecret, cfg.Transfer.Endpoint, log),
			transfer.NewRecordOnlyClient(log),
		}
	}
	return []domain.TransferClient{
		transfer.NewSimulatedLedgerClient(log),
		transfer.NewSimulatedExchangeClient(log),
		transfer.NewSimulatedBridgeClient(map[string]float64{"USDT": 1, "BTC": 65000, "ETH": 3200}, log),
		transfer.NewRecordOnlyClient(log),
	}
}

func registerRunners(sup *usecase.Supervisor, cfg *config.Config, primary, secondary domain.QuoteService, positions *usecase.PositionManager, store domain.LedgerStore, log *zap.Logger) {
	register := func(sc config.StrategyConfig, profile usecase.StrategyProfile) {
		if !sc.Enabled {
			return
		}
		sup.Register(profile.Name, func() *usecase.Runner {
			signals := usecase.NewSignalGenerator(store, log)
			return usecase.NewRunner(profile, primary, signals, positions, store, log)
		})
	}

	register(cfg.Strategies.Arbitrage, usecase.ArbitrageProfile(overrides(cfg.Strategies.Arbitrage), secondary, cfg.Strategies.SpreadThresholdPct, log))
	register(cfg.Strategies.Momentum, usecase.MomentumProfile(overrides(cfg.Strategies.Momentum)))
	register(cfg.Strategies.Grid, usecase.GridProfile(overrides(cfg.Strategies.Grid)))
	register(cfg.Strategies.DefiYield, usecase.DefiYieldProfile(overrides(cfg.Strategies.DefiYield)))
	register(cfg.Strategies.Web3Bot, usecase.Web3BotProfile(overrides(cfg.Strategies.Web3Bot)))
}

func overrides(sc config.StrategyConfig) usecase.StrategyOverrides {
	return usecase.StrategyOverrides{
		Interval:        time.Duration(sc.IntervalSeconds) * time.Second,
		Symbols:         sc.Symbols,
		BaseQuantity:    sc.BaseQuantity,
		MaxPositions:    sc.MaxPositions,
		MaxPositionSize: sc.MaxPositionSize,
	}
}
