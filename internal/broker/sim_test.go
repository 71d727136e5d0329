package broker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
)

var simNow = time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)

func newTestSim(maxNotional float64) *Sim {
	return NewSim(1_000_000, maxNotional, 100, zerolog.Nop(), WithClock(func() time.Time { return simNow }))
}

func shortIntent(symbol string, qty int, price float64) event.TradeIntent {
	return event.TradeIntent{
		AsOf:         simNow,
		Action:       event.SellCallToOpen,
		OptionSymbol: symbol,
		Quantity:     qty,
		LimitPrice:   price,
		StopLoss:     price * 3,
		TakeProfit:   price / 2,
	}
}

func TestSimFillsShortAtLimit(t *testing.T) {
	sim := newTestSim(0)

	exec, err := sim.SubmitOrder(context.Background(), shortIntent("QQQ250602C00400000", 25, 5.50))
	if err != nil {
		t.Fatalf("SubmitOrder returned error: %v", err)
	}
	if exec.Status != StatusFilled {
		t.Fatalf("expected filled, got %s", exec.Status)
	}
	if exec.FillPrice != 5.50 {
		t.Fatalf("expected fill at limit 5.50, got %v", exec.FillPrice)
	}
	if exec.OrderID == "" {
		t.Fatalf("expected an order id")
	}
	if got := sim.Cash(); got != 1_000_000+5.50*25*100 {
		t.Fatalf("expected credit collected, cash %v", got)
	}
}

func TestSimShortRoundTripRealizedPnL(t *testing.T) {
	sim := newTestSim(0)
	symbol := "QQQ250602C00400000"

	if _, err := sim.SubmitOrder(context.Background(), shortIntent(symbol, 25, 5.50)); err != nil {
		t.Fatalf("open returned error: %v", err)
	}
	cover := event.TradeIntent{
		AsOf:         simNow,
		Action:       event.BuyToClose,
		OptionSymbol: symbol,
		Quantity:     25,
		LimitPrice:   2.75,
	}
	if _, err := sim.SubmitOrder(context.Background(), cover); err != nil {
		t.Fatalf("close returned error: %v", err)
	}

	if got := sim.RealizedPnL(); got != 6875.0 {
		t.Fatalf("expected realized 6875, got %v", got)
	}
	positions, err := sim.FetchPositions(context.Background())
	if err != nil {
		t.Fatalf("FetchPositions returned error: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("expected flat book after round trip, got %+v", positions)
	}
}

func TestSimRejectsOverNotionalCap(t *testing.T) {
	sim := newTestSim(1000)

	exec, err := sim.SubmitOrder(context.Background(), shortIntent("QQQ250602C00400000", 25, 5.50))
	if err != nil {
		t.Fatalf("SubmitOrder returned error: %v", err)
	}
	if exec.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", exec.Status)
	}
	if exec.FillPrice != 0 {
		t.Fatalf("failed execution must carry zero fill, got %v", exec.FillPrice)
	}

	positions, _ := sim.FetchPositions(context.Background())
	if len(positions) != 0 {
		t.Fatalf("rejected order must not open a position")
	}
}

func TestSimMarksPositionsAtQuoteMid(t *testing.T) {
	sim := newTestSim(0)
	symbol := "QQQ250602C00400000"

	if _, err := sim.SubmitOrder(context.Background(), shortIntent(symbol, 10, 5.50)); err != nil {
		t.Fatalf("open returned error: %v", err)
	}
	sim.SetOptionQuote(event.OptionQuote{OptionSymbol: symbol, Bid: 4.00, Ask: 4.50, AsOf: simNow, Expiry: simNow})

	positions, err := sim.FetchPositions(context.Background())
	if err != nil {
		t.Fatalf("FetchPositions returned error: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected one position, got %d", len(positions))
	}
	pos := positions[0]
	if pos.Quantity != -10 {
		t.Fatalf("short position must be negative, got %d", pos.Quantity)
	}
	if pos.MarketValue != -10*4.25*100 {
		t.Fatalf("expected mark at mid 4.25, got %v", pos.MarketValue)
	}
}

func TestSimQuotesUnseenSymbol(t *testing.T) {
	sim := newTestSim(0)

	quote, err := sim.FetchOptionQuote(context.Background(), "QQQ250602P00390000")
	if err != nil {
		t.Fatalf("FetchOptionQuote returned error: %v", err)
	}
	if quote != nil {
		t.Fatalf("expected nil quote for unseen symbol")
	}

	tick, err := sim.FetchEquityQuote(context.Background(), "QQQ")
	if err != nil || tick != nil {
		t.Fatalf("expected nil equity quote for unseen symbol, got %v/%v", tick, err)
	}
}
