// Package event standardizes payloads shared between the market data,
// signal, and execution layers.
package event

import (
	"strings"
	"time"
)

// Action identifies the order instruction carried by signals and intents.
type Action string

const (
	// SellCallToOpen opens a short call position.
	SellCallToOpen Action = "SELL_TO_OPEN"
	// SellPutToOpen opens a short put position.
	SellPutToOpen Action = "SELL_PUT_TO_OPEN"
	// BuyToClose flattens an open short position.
	BuyToClose Action = "BUY_TO_CLOSE"
)

// IsShort reports whether the action opens a short (credit) position.
func (a Action) IsShort() bool {
	return strings.HasPrefix(string(a), "SELL")
}

// IsClose reports whether the action closes an existing position.
func (a Action) IsClose() bool {
	return strings.HasPrefix(string(a), "BUY")
}

// EquityTick is the underlying print together with its session baselines.
type EquityTick struct {
	Symbol      string
	Price       float64
	SessionVWAP float64
	MA9         float64
	AsOf        time.Time
}

// OptionQuote is a two-sided market for a single option contract.
type OptionQuote struct {
	OptionSymbol string
	Strike       float64
	Bid          float64
	Ask          float64
	Expiry       time.Time
	AsOf         time.Time
}

// Mid returns the quote midpoint.
func (q OptionQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// NormalizedTick pairs an equity tick with the closest tradable contract.
// Option is nil when no same-day contract has been observed yet.
type NormalizedTick struct {
	AsOf   time.Time
	Equity EquityTick
	Option *OptionQuote
}

// Signal is a crossover decision emitted by the signal engine.
type Signal struct {
	AsOf           time.Time
	Action         Action
	OptionSymbol   string
	ReferencePrice float64
	Rationale      string
	CooldownUntil  time.Time
}

// TradeIntent fully determines an order submission and its exit thresholds.
type TradeIntent struct {
	AsOf         time.Time
	Action       Action
	OptionSymbol string
	Quantity     int
	LimitPrice   float64
	StopLoss     float64
	TakeProfit   float64
}

// TradeExecution is the broker's response to a submitted intent. PnLContrib
// is populated by the trade manager when the execution closes a position.
type TradeExecution struct {
	OrderID    string
	Status     string
	FillPrice  float64
	PnLContrib float64
	AsOf       time.Time
	Intent     TradeIntent
}

// CooldownState is an immutable suppression window owned by the signal
// engine. A zero Until is treated as expired.
type CooldownState struct {
	Until time.Time
}

// Active reports whether the cooldown is still suppressing signals at now.
func (c CooldownState) Active(now time.Time) bool {
	return now.Before(c.Until)
}

// ExpiredCooldown returns the sentinel state in the distant past.
func ExpiredCooldown() CooldownState {
	return CooldownState{}
}

// Extend returns a new state lasting duration past from. When from is zero
// the current Until is used as the starting point.
func (c CooldownState) Extend(duration time.Duration, from time.Time) CooldownState {
	start := from
	if start.IsZero() {
		start = c.Until
	}
	return CooldownState{Until: start.Add(duration)}
}

// PositionSnapshot is an authoritative broker-reported position.
type PositionSnapshot struct {
	Symbol       string
	Quantity     int
	AveragePrice float64
	MarketValue  float64
	AsOf         time.Time
}

// PositionState is the consolidated per-symbol position view.
type PositionState struct {
	AsOf    time.Time
	Symbols map[string]PositionSnapshot
}

// TotalMarketValue sums the market value across all symbols.
func (s PositionState) TotalMarketValue() float64 {
	var total float64
	for _, pos := range s.Symbols {
		total += pos.MarketValue
	}
	return total
}
