package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/config"
	"github.com/MAKaminski/alpha-gen-trading/internal/event"
	"github.com/MAKaminski/alpha-gen-trading/internal/market"
	"github.com/MAKaminski/alpha-gen-trading/internal/metrics"
)

// Schwab is a REST broker client. Unexpected HTTP statuses surface as
// errors so the caller can retry or alert; order rejects the API reports
// in-band come back as failed executions.
type Schwab struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	accountID  string
	log        zerolog.Logger
}

// NewSchwab builds a client from broker configuration.
func NewSchwab(cfg config.Broker, log zerolog.Logger) *Schwab {
	return &Schwab{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		accountID:  cfg.AccountID,
		log:        log,
	}
}

type schwabPositionsResponse struct {
	Positions []struct {
		Symbol       string  `json:"symbol"`
		Quantity     float64 `json:"quantity"`
		AveragePrice float64 `json:"averagePrice"`
		MarketValue  float64 `json:"marketValue"`
		AsOf         string  `json:"asOf"`
	} `json:"positions"`
}

// FetchPositions returns the authoritative account positions.
func (s *Schwab) FetchPositions(ctx context.Context) ([]event.PositionSnapshot, error) {
	endpoint := fmt.Sprintf("/trader/v1/accounts/%s/positions", s.accountID)
	var payload schwabPositionsResponse
	if err := s.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	snapshots := make([]event.PositionSnapshot, 0, len(payload.Positions))
	for _, entry := range payload.Positions {
		asOf := market.NowEastern()
		if parsed, err := time.Parse(time.RFC3339, entry.AsOf); err == nil {
			asOf = parsed.In(market.Eastern)
		}
		snapshots = append(snapshots, event.PositionSnapshot{
			Symbol:       entry.Symbol,
			Quantity:     int(entry.Quantity),
			AveragePrice: entry.AveragePrice,
			MarketValue:  entry.MarketValue,
			AsOf:         asOf,
		})
	}
	return snapshots, nil
}

type schwabOrderResponse struct {
	OrderID string `json:"orderId"`
}

// SubmitOrder places a limit order for the intent and reports it as
// submitted at the limit price; fills are reconciled via position polling.
func (s *Schwab) SubmitOrder(ctx context.Context, intent event.TradeIntent) (event.TradeExecution, error) {
	endpoint := fmt.Sprintf("/trader/v1/accounts/%s/orders", s.accountID)
	order := map[string]any{
		"orderType":         "LIMIT",
		"session":           "NORMAL",
		"duration":          "DAY",
		"orderStrategyType": "SINGLE",
		"price":             intent.LimitPrice,
		"orderLegCollection": []map[string]any{{
			"instruction": string(intent.Action),
			"quantity":    intent.Quantity,
			"instrument": map[string]string{
				"symbol":    intent.OptionSymbol,
				"assetType": "OPTION",
			},
		}},
	}

	var payload schwabOrderResponse
	if err := s.postJSON(ctx, endpoint, order, &payload); err != nil {
		metrics.OrdersTotal.WithLabelValues(string(intent.Action), StatusFailed).Inc()
		return event.TradeExecution{}, err
	}

	orderID := payload.OrderID
	if orderID == "" {
		orderID = "unknown"
	}
	metrics.OrdersTotal.WithLabelValues(string(intent.Action), StatusSubmitted).Inc()
	return event.TradeExecution{
		OrderID:   orderID,
		Status:    StatusSubmitted,
		FillPrice: intent.LimitPrice,
		AsOf:      market.NowEastern(),
		Intent:    intent,
	}, nil
}

type schwabQuotePayload struct {
	BidPrice        float64 `json:"bidPrice"`
	AskPrice        float64 `json:"askPrice"`
	StrikePrice     float64 `json:"strikePrice"`
	LastPrice       float64 `json:"lastPrice"`
	Mark            float64 `json:"mark"`
	QuoteTimeMs     int64   `json:"quoteTimeInLong"`
	ExpirationDate  string  `json:"expirationDate"`
	SessionVWAP     float64 `json:"vwap"`
	MovingAverage9  float64 `json:"ma9"`
	UnderlyingClose float64 `json:"closePrice"`
}

// FetchOptionQuote returns the current two-sided market for a contract, or
// nil when the API has no quote for it.
func (s *Schwab) FetchOptionQuote(ctx context.Context, optionSymbol string) (*event.OptionQuote, error) {
	endpoint := fmt.Sprintf("/marketdata/v1/quotes/%s", optionSymbol)
	payload := map[string]schwabQuotePayload{}
	if err := s.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	entry, ok := payload[optionSymbol]
	if !ok {
		return nil, nil
	}

	asOf := market.NowEastern()
	if entry.QuoteTimeMs > 0 {
		asOf = time.UnixMilli(entry.QuoteTimeMs).In(market.Eastern)
	}
	expiry := market.NowEastern()
	if entry.ExpirationDate != "" {
		if parsed, err := time.Parse(time.RFC3339, entry.ExpirationDate); err == nil {
			expiry = parsed.In(market.Eastern)
		}
	}
	return &event.OptionQuote{
		OptionSymbol: optionSymbol,
		Strike:       entry.StrikePrice,
		Bid:          entry.BidPrice,
		Ask:          entry.AskPrice,
		Expiry:       expiry,
		AsOf:         asOf,
	}, nil
}

// FetchEquityQuote returns the underlying's latest print and baselines, or
// nil when the API has no quote.
func (s *Schwab) FetchEquityQuote(ctx context.Context, symbol string) (*event.EquityTick, error) {
	endpoint := fmt.Sprintf("/marketdata/v1/quotes/%s", symbol)
	payload := map[string]schwabQuotePayload{}
	if err := s.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	entry, ok := payload[symbol]
	if !ok {
		return nil, nil
	}

	asOf := market.NowEastern()
	if entry.QuoteTimeMs > 0 {
		asOf = time.UnixMilli(entry.QuoteTimeMs).In(market.Eastern)
	}
	return &event.EquityTick{
		Symbol:      symbol,
		Price:       entry.LastPrice,
		SessionVWAP: entry.SessionVWAP,
		MA9:         entry.MovingAverage9,
		AsOf:        asOf,
	}, nil
}

// Close releases idle transport connections.
func (s *Schwab) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *Schwab) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return s.doJSON(req, out)
}

func (s *Schwab) postJSON(ctx context.Context, endpoint string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.doJSON(req, out)
}

func (s *Schwab) doJSON(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
