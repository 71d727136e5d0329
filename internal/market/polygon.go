package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
	"github.com/MAKaminski/alpha-gen-trading/internal/metrics"
)

// Polygon websocket payloads. Equity aggregates arrive on the stocks socket
// as "XA" events, option quotes on the options socket as "Q" events.
type polygonEquityAgg struct {
	EventType string  `json:"ev"`
	Symbol    string  `json:"sym"`
	Close     float64 `json:"c"`
	VWAP      float64 `json:"vw"`
	MA9       float64 `json:"ma"`
	StartMs   int64   `json:"s"`
}

type polygonOptionQuote struct {
	EventType string  `json:"ev"`
	Symbol    string  `json:"sym"`
	Bid       float64 `json:"bp"`
	Ask       float64 `json:"ap"`
	Strike    float64 `json:"k"`
	ExpiryMs  int64   `json:"x"`
	TimeMs    int64   `json:"t"`
}

func (f *Feed) runPolygon(ctx context.Context, cb Callbacks) error {
	if f.apiKey == "" {
		return fmt.Errorf("polygon feed requires an API key")
	}

	errs := make(chan error, 2)
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		errs <- f.consumeSocket(streamCtx, f.stockURL, "XA."+f.symbol, cb, f.decodeEquity)
	}()
	go func() {
		errs <- f.consumeSocket(streamCtx, f.optionsURL, "Q."+f.symbol, cb, f.decodeOption)
	}()

	// Either socket failing permanently takes the feed down; the caller owns
	// restart policy.
	err := <-errs
	cancel()
	<-errs
	return err
}

// decode functions return false when the message is not theirs to handle.
type polygonDecoder func(raw json.RawMessage, cb Callbacks) bool

func (f *Feed) decodeEquity(raw json.RawMessage, cb Callbacks) bool {
	var agg polygonEquityAgg
	if err := json.Unmarshal(raw, &agg); err != nil || agg.EventType != "XA" {
		return false
	}
	tick := event.EquityTick{
		Symbol:      agg.Symbol,
		Price:       agg.Close,
		SessionVWAP: agg.VWAP,
		MA9:         agg.MA9,
		AsOf:        time.UnixMilli(agg.StartMs).In(Eastern),
	}
	if cb.OnEquityTick != nil {
		cb.OnEquityTick(tick)
	}
	metrics.TicksTotal.WithLabelValues(agg.Symbol).Inc()
	return true
}

func (f *Feed) decodeOption(raw json.RawMessage, cb Callbacks) bool {
	var q polygonOptionQuote
	if err := json.Unmarshal(raw, &q); err != nil || q.EventType != "Q" {
		return false
	}
	quote := event.OptionQuote{
		OptionSymbol: q.Symbol,
		Strike:       q.Strike,
		Bid:          q.Bid,
		Ask:          q.Ask,
		Expiry:       time.UnixMilli(q.ExpiryMs).In(Eastern),
		AsOf:         time.UnixMilli(q.TimeMs).In(Eastern),
	}
	if cb.OnOptionQuote != nil {
		cb.OnOptionQuote(quote)
	}
	metrics.OptionQuotesTotal.WithLabelValues(f.symbol).Inc()
	return true
}

func (f *Feed) consumeSocket(ctx context.Context, url, subscription string, cb Callbacks, decode polygonDecoder) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeOnce(ctx, url, subscription, cb, decode); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Str("url", url).Msg("polygon stream disconnected, retrying")
			if cb.OnError != nil {
				cb.OnError(err)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumeOnce(ctx context.Context, url, subscription string, cb Callbacks, decode polygonDecoder) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	auth := map[string]string{"action": "auth", "params": f.apiKey}
	if err := conn.WriteJSON(auth); err != nil {
		return err
	}
	sub := map[string]string{"action": "subscribe", "params": subscription}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	f.log.Info().Str("url", url).Str("subscription", subscription).Msg("connected market data stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("polygon ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		// Polygon delivers batches as JSON arrays.
		var batch []json.RawMessage
		if err := json.Unmarshal(message, &batch); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode polygon message")
			continue
		}
		for _, raw := range batch {
			decode(raw, cb)
		}
	}
}
