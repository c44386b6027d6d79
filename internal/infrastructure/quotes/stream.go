package quotes

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akursin/profitpilot/internal/domain"
)

// StreamQuoteService keeps a live quote cache fed by a websocket ticker
// stream. Fetch serves from the cache; symbols with no data yet are simply
// absent, which callers treat as a per-symbol fetch failure.
type StreamQuoteService struct {
	wsURL  string
	logger *zap.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	cache   map[string]domain.Quote
	subbed  map[string]bool
	closing bool
}

func NewStreamQuoteService(wsURL string, logger *zap.Logger) *StreamQuoteService {
	return &StreamQuoteService{
		wsURL:  wsURL,
		logger: logger,
		cache:  make(map[string]domain.Quote),
		subbed: make(map[string]bool),
	}
}

func (s *StreamQuoteService) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if err := s.ensureSubscribed(symbols); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	quotes := make([]domain.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		if q, ok := s.cache[symbol]; ok {
			quotes = append(quotes, q)
		}
	}
	return quotes, nil
}

// Close shuts the stream down; the read loop will not reconnect after this.
func (s *StreamQuoteService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *StreamQuoteService) ensureSubscribed(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for _, symbol := range symbols {
		if !s.subbed[symbol] {
			missing = append(missing, symbol)
		}
	}
	if s.conn != nil && len(missing) == 0 {
		return nil
	}

	if s.conn == nil {
		c, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
		if err != nil {
			return err
		}
		s.conn = c
		go s.readLoop(c)
		// A fresh connection needs every symbol subscribed again.
		missing = missing[:0]
		for _, symbol := range symbols {
			missing = append(missing, symbol)
		}
	}
	return s.subscribe(missing)
}

func (s *StreamQuoteService) subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	args := make([]any, len(symbols))
	for i, symbol := range symbols {
		args[i] = "tickers." + symbol
	}
	msg := map[string]any{"op": "subscribe", "args": args}
	if err := s.conn.WriteJSON(msg); err != nil {
		return err
	}
	for _, symbol := range symbols {
		s.subbed[symbol] = true
	}
	return nil
}

func (s *StreamQuoteService) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.subbed = make(map[string]bool)
		}
		closing := s.closing
		s.mu.Unlock()
		if !closing {
			// The next Fetch redials; throttle the spin.
			time.Sleep(2 * time.Second)
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("quote stream read error", zap.Error(err))
			return
		}

		var event struct {
			Topic string `json:"topic"`
			Data  struct {
				Symbol       string `json:"symbol"`
				LastPrice    string `json:"lastPrice"`
				Volume24h    string `json:"volume24h"`
				Price24hPcnt string `json:"price24hPcnt"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		if !strings.HasPrefix(event.Topic, "tickers.") {
			continue
		}

		price, _ := strconv.ParseFloat(event.Data.LastPrice, 64)
		if price <= 0 {
			continue
		}
		volume, _ := strconv.ParseFloat(event.Data.Volume24h, 64)
		pcnt, _ := strconv.ParseFloat(event.Data.Price24hPcnt, 64)

		s.mu.Lock()
		s.cache[event.Data.Symbol] = domain.Quote{
			Symbol:        event.Data.Symbol,
			Price:         price,
			Volume:        volume,
			ChangePercent: pcnt * 100,
		}
		s.mu.Unlock()
	}
}

var _ domain.QuoteService = (*StreamQuoteService)(nil)
var _ domain.QuoteService = (*RESTQuoteService)(nil)
