package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akursin/profitpilot/internal/domain"
)

// Chain method names. The withdrawal engine tries them strictly in this
// order; tests assert on the names.
const (
	MethodLedger     = "ledger_transfer"
	MethodExchange   = "exchange_transfer"
	MethodBridge     = "conversion_bridge"
	MethodRecordOnly = "local_record"
)

// SimulatedLedgerClient imitates a direct on-chain payment from a funded
// signing key. The transaction hash is fabricated and clearly marked as such
// by the sim- wallet ref convention; simulated and live clients are never
// mixed in one chain.
type SimulatedLedgerClient struct {
	logger *zap.Logger

	mu    sync.Mutex
	nonce int
}

func NewSimulatedLedgerClient(logger *zap.Logger) *SimulatedLedgerClient {
	return &SimulatedLedgerClient{logger: logger}
}

func (c *SimulatedLedgerClient) Name() string { return MethodLedger }

func (c *SimulatedLedgerClient) Send(_ context.Context, req domain.TransferRequest) domain.TransferResult {
	if req.TargetAddress == "" || req.Amount <= 0 {
		return domain.TransferResult{Detail: "invalid transfer request"}
	}
	c.mu.Lock()
	c.nonce++
	seed := fmt.Sprintf("%s|%f|%s|%d|%d", req.Asset, req.Amount, req.TargetAddress, c.nonce, time.Now().UnixNano())
	c.mu.Unlock()

	sum := sha256.Sum256([]byte(seed))
	txHash := "0x" + hex.EncodeToString(sum[:])
	c.logger.Info("simulated ledger transfer",
		zap.String("asset", req.Asset),
		zap.Float64("amount", req.Amount),
		zap.String("tx", txHash))
	return domain.TransferResult{Success: true, Reference: txHash}
}

// SimulatedExchangeClient imitates a custodial exchange withdrawal API.
type SimulatedExchangeClient struct {
	logger *zap.Logger
}

func NewSimulatedExchangeClient(logger *zap.Logger) *SimulatedExchangeClient {
	return &SimulatedExchangeClient{logger: logger}
}

func (c *SimulatedExchangeClient) Name() string { return MethodExchange }

func (c *SimulatedExchangeClient) Send(_ context.Context, req domain.TransferRequest) domain.TransferResult {
	if req.TargetAddress == "" || req.Amount <= 0 {
		return domain.TransferResult{Detail: "invalid transfer request"}
	}
	ref := "WD-" + uuid.NewString()[:8]
	c.logger.Info("simulated exchange withdrawal",
		zap.String("asset", req.Asset),
		zap.Float64("amount", req.Amount),
		zap.String("reference", ref))
	return domain.TransferResult{Success: true, Reference: ref}
}

// SimulatedBridgeClient imitates converting the source asset at an external
// venue before transferring the proceeds.
type SimulatedBridgeClient struct {
	rates  map[string]float64 // source asset -> bridge asset rate
	logger *zap.Logger
}

func NewSimulatedBridgeClient(rates map[string]float64, logger *zap.Logger) *SimulatedBridgeClient {
	return &SimulatedBridgeClient{rates: rates, logger: logger}
}

func (c *SimulatedBridgeClient) Name() string { return MethodBridge }

func (c *SimulatedBridgeClient) Send(_ context.Context, req domain.TransferRequest) domain.TransferResult {
	if req.TargetAddress == "" || req.Amount <= 0 {
		return domain.TransferResult{Detail: "invalid transfer request"}
	}
	rate, ok := c.rates[req.Asset]
	if !ok || rate <= 0 {
		return domain.TransferResult{Detail: fmt.Sprintf("no conversion route for %s", req.Asset)}
	}
	converted := req.Amount * rate
	ref := "BR-" + uuid.NewString()[:8]
	c.logger.Info("simulated bridge conversion and transfer",
		zap.String("asset", req.Asset),
		zap.Float64("amount", req.Amount),
		zap.Float64("converted", converted),
		zap.String("reference", ref))
	return domain.TransferResult{Success: true, Reference: ref}
}

// RecordOnlyClient is the terminal chain member: it never moves value, it
// just reports failure with a reconciliation note so the engine's audit
// record and retry bookkeeping kick in.
type RecordOnlyClient struct {
	logger *zap.Logger
}

func NewRecordOnlyClient(logger *zap.Logger) *RecordOnlyClient {
	return &RecordOnlyClient{logger: logger}
}

func (c *RecordOnlyClient) Name() string { return MethodRecordOnly }

func (c *RecordOnlyClient) Send(_ context.Context, req domain.TransferRequest) domain.TransferResult {
	c.logger.Warn("transfer recorded for manual reconciliation",
		zap.String("asset", req.Asset),
		zap.Float64("amount", req.Amount),
		zap.String("target", req.TargetAddress))
	return domain.TransferResult{Detail: "recorded for manual reconciliation"}
}

var (
	_ domain.TransferClient = (*SimulatedLedgerClient)(nil)
	_ domain.TransferClient = (*SimulatedExchangeClient)(nil)
	_ domain.TransferClient = (*SimulatedBridgeClient)(nil)
	_ domain.TransferClient = (*RecordOnlyClient)(nil)
)
