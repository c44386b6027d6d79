package transfer

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/akursin/profitpilot/internal/domain"
)

// LiveExchangeClient performs a real custodial withdrawal through the venue's
// signed asset-withdraw endpoint. It is only placed in the chain when the
// transfer mode is live.
type LiveExchangeClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
}

func NewLiveExchangeClient(apiKey, apiSecret, baseURL string, logger *zap.Logger) *LiveExchangeClient {
	return &LiveExchangeClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
	}
}

func (c *LiveExchangeClient) Name() string { return MethodExchange }

func (c *LiveExchangeClient) sign(payload string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10) + c.apiKey + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *LiveExchangeClient) Send(ctx context.Context, req domain.TransferRequest) domain.TransferResult {
	payload := map[string]any{
		"coin":    req.Asset,
		"chain":   req.Network,
		"address": req.TargetAddress,
		"amount":  strconv.FormatFloat(req.Amount, 'f', -1, 64),
	}
	if req.DestinationTag != "" {
		payload["tag"] = req.DestinationTag
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.TransferResult{Detail: err.Error()}
	}

	timestamp := time.Now().UnixMilli()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v5/asset/withdraw/create", bytes.NewReader(body))
	if err != nil {
		return domain.TransferResult{Detail: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-BAPI-API-KEY", c.apiKey)
	httpReq.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	httpReq.Header.Set("X-BAPI-SIGN", c.sign(string(body), timestamp))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.TransferResult{Detail: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TransferResult{Detail: err.Error()}
	}

	var parsed struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			ID string `json:"id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.TransferResult{Detail: err.Error()}
	}
	if parsed.RetCode != 0 {
		c.logger.Warn("live exchange withdrawal rejected",
			zap.String("asset", req.Asset), zap.String("message", parsed.RetMsg))
		return domain.TransferResult{Detail: parsed.RetMsg}
	}
	return domain.TransferResult{Success: true, Reference: parsed.Result.ID}
}

var _ domain.TransferClient = (*LiveExchangeClient)(nil)
