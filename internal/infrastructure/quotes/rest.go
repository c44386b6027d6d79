package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/akursin/profitpilot/internal/domain"
)

// RESTQuoteService polls a ticker endpoint per symbol. Fetch is
// partial-failure tolerant: a symbol whose request fails is logged and left
// out of the result.
type RESTQuoteService struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewRESTQuoteService(baseURL string, requestsPerSecond float64, logger *zap.Logger) *RESTQuoteService {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &RESTQuoteService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

func (s *RESTQuoteService) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	quotes := make([]domain.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		q, err := s.fetchOne(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return quotes, ctx.Err()
			}
			s.logger.Warn("quote fetch failed, skipping symbol",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

type tickerResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol       string `json:"symbol"`
			LastPrice    string `json:"lastPrice"`
			Volume24h    string `json:"volume24h"`
			Price24hPcnt string `json:"price24hPcnt"`
		} `json:"list"`
	} `json:"result"`
}

func (s *RESTQuoteService) fetchOne(ctx context.Context, symbol string) (domain.Quote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.Quote{}, err
	}

	endpoint := fmt.Sprintf("%s/v5/market/tickers?category=linear&symbol=%s", s.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Quote{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Quote{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("ticker request for %s: status %d", symbol, resp.StatusCode)
	}

	var parsed tickerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Quote{}, err
	}
	if parsed.RetCode != 0 {
		return domain.Quote{}, fmt.Errorf("ticker request for %s: %s", symbol, parsed.RetMsg)
	}
	if len(parsed.Result.List) == 0 {
		return domain.Quote{}, fmt.Errorf("no ticker data for %s", symbol)
	}

	t := parsed.Result.List[0]
	price, _ := strconv.ParseFloat(t.LastPrice, 64)
	volume, _ := strconv.ParseFloat(t.Volume24h, 64)
	pcnt, _ := strconv.ParseFloat(t.Price24hPcnt, 64)
	if price <= 0 {
		return domain.Quote{}, fmt.Errorf("zero price for %s", symbol)
	}
	return domain.Quote{
		Symbol:        t.Symbol,
		Price:         price,
		Volume:        volume,
		ChangePercent: pcnt * 100, // venue reports a ratio
	}, nil
}
