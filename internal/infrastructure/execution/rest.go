package execution

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/akursin/profitpilot/internal/domain"
)

const recvWindow = 5000

// RESTExecutionClient submits signed market orders to the venue's order
// endpoint.
type RESTExecutionClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client
}

func NewRESTExecutionClient(apiKey, apiSecret, baseURL string) *RESTExecutionClient {
	return &RESTExecutionClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *RESTExecutionClient) sign(payload string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10) + c.apiKey + strconv.Itoa(recvWindow) + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *RESTExecutionClient) SubmitOrder(ctx context.Context, symbol string, side domain.TradeSide, quantity float64) (*domain.OrderResult, error) {
	venueSide := "Buy"
	if side == domain.TradeSell {
		venueSide = "Sell"
	}
	payload := map[string]any{
		"category":  "linear",
		"symbol":    symbol,
		"side":      venueSide,
		"orderType": "Market",
		"qty":       strconv.FormatFloat(quantity, 'f', -1, 64),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().UnixMilli()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v5/order/create", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("X-BAPI-SIGN", c.sign(string(body), timestamp))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExecutionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrExecutionFailed, err)
	}

	var parsed struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			OrderID  string `json:"orderId"`
			AvgPrice string `json:"avgPrice"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrExecutionFailed, err)
	}
	if parsed.RetCode != 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrExecutionFailed, parsed.RetMsg)
	}

	fill, _ := strconv.ParseFloat(parsed.Result.AvgPrice, 64)
	return &domain.OrderResult{
		OrderID:   parsed.Result.OrderID,
		Status:    domain.TradeFilled,
		FillPrice: fill,
	}, nil
}

var _ domain.ExecutionClient = (*RESTExecutionClient)(nil)
