package market

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/config"
	"github.com/MAKaminski/alpha-gen-trading/internal/event"
)

func TestStubFeedEmitsPairedEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	feed := NewFeed(config.Market{Provider: ProviderStub, EquitySymbol: "QQQ"}, zerolog.Nop(), WithStubInterval(5*time.Millisecond))

	var mu sync.Mutex
	var ticks []event.EquityTick
	var quotes []event.OptionQuote
	go func() {
		_ = feed.Run(ctx, Callbacks{
			OnEquityTick: func(tk event.EquityTick) {
				mu.Lock()
				ticks = append(ticks, tk)
				mu.Unlock()
			},
			OnOptionQuote: func(q event.OptionQuote) {
				mu.Lock()
				quotes = append(quotes, q)
				mu.Unlock()
			},
		})
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		enough := len(ticks) >= 3 && len(quotes) >= 3
		mu.Unlock()
		if enough {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) < 3 || len(quotes) < 3 {
		t.Fatalf("expected ticks and quotes, got %d/%d", len(ticks), len(quotes))
	}
	if ticks[0].Symbol != "QQQ" {
		t.Fatalf("unexpected symbol %s", ticks[0].Symbol)
	}
	if !strings.HasPrefix(quotes[0].OptionSymbol, "QQQ") {
		t.Fatalf("option symbol must be prefixed by the underlying, got %s", quotes[0].OptionSymbol)
	}
	if quotes[0].Expiry.In(Eastern).Format("2006-01-02") != quotes[0].AsOf.In(Eastern).Format("2006-01-02") {
		t.Fatalf("stub contract must expire same day")
	}
}

func TestDecodeEquityAggregate(t *testing.T) {
	feed := NewFeed(config.Market{Provider: ProviderPolygon, EquitySymbol: "QQQ"}, zerolog.Nop())

	raw := json.RawMessage(`{"ev":"XA","sym":"QQQ","c":401.25,"vw":400.9,"ma":401.1,"s":1748874600000}`)
	var got *event.EquityTick
	ok := feed.decodeEquity(raw, Callbacks{OnEquityTick: func(tk event.EquityTick) { got = &tk }})
	if !ok || got == nil {
		t.Fatalf("expected XA aggregate to decode")
	}
	if got.Price != 401.25 || got.SessionVWAP != 400.9 || got.MA9 != 401.1 {
		t.Fatalf("unexpected tick: %+v", got)
	}
	if got.AsOf.Location() != Eastern {
		t.Fatalf("timestamps must land in the exchange timezone")
	}

	if feed.decodeEquity(json.RawMessage(`{"ev":"status"}`), Callbacks{}) {
		t.Fatalf("status frames must not decode as ticks")
	}
}

func TestDecodeOptionQuote(t *testing.T) {
	feed := NewFeed(config.Market{Provider: ProviderPolygon, EquitySymbol: "QQQ"}, zerolog.Nop())

	raw := json.RawMessage(`{"ev":"Q","sym":"QQQ250602C00400000","bp":5.5,"ap":5.75,"k":400,"x":1748898000000,"t":1748874600000}`)
	var got *event.OptionQuote
	ok := feed.decodeOption(raw, Callbacks{OnOptionQuote: func(q event.OptionQuote) { got = &q }})
	if !ok || got == nil {
		t.Fatalf("expected Q event to decode")
	}
	if got.Mid() != 5.625 {
		t.Fatalf("unexpected mid %v", got.Mid())
	}
	if got.Strike != 400 {
		t.Fatalf("unexpected strike %v", got.Strike)
	}
}

func TestRunUnknownProvider(t *testing.T) {
	feed := NewFeed(config.Market{Provider: "bogus"}, zerolog.Nop())
	if err := feed.Run(context.Background(), Callbacks{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
