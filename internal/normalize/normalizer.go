// Package normalize aligns raw equity and option streams into synchronized
// snapshots for the signal engine.
package normalize

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
	"github.com/MAKaminski/alpha-gen-trading/internal/market"
	"github.com/MAKaminski/alpha-gen-trading/internal/metrics"
)

const optionBufferCap = 20

// Normalizer merges independent equity and option quote streams into
// NormalizedTick snapshots filtered to the active trading window. Inputs
// that do not match the configured underlying are dropped silently; they
// are normal multiplexed stream noise, not errors.
type Normalizer struct {
	emit   func(event.NormalizedTick)
	symbol string
	within func(time.Time) bool

	mu           sync.Mutex
	latestEquity *event.EquityTick
	latestOption *event.OptionQuote
	buffer       []event.OptionQuote
	log          zerolog.Logger
}

// Option configures the Normalizer.
type Option func(*Normalizer)

// WithWindowPredicate replaces the trading-window check, mainly for tests.
func WithWindowPredicate(within func(time.Time) bool) Option {
	return func(n *Normalizer) {
		if within != nil {
			n.within = within
		}
	}
}

// New builds a Normalizer for the given underlying that pushes snapshots
// into emit.
func New(symbol string, emit func(event.NormalizedTick), log zerolog.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{
		emit:   emit,
		symbol: symbol,
		within: market.WithinTradingWindow,
		buffer: make([]event.OptionQuote, 0, optionBufferCap),
		log:    log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// IngestEquity accepts an equity tick, caches it, and attempts emission.
// Ticks for other symbols or outside the trading window are dropped.
func (n *Normalizer) IngestEquity(tick event.EquityTick) {
	if tick.Symbol != n.symbol {
		return
	}
	if !n.within(tick.AsOf) {
		return
	}
	n.mu.Lock()
	n.latestEquity = &tick
	n.attemptEmitLocked()
	n.mu.Unlock()
}

// IngestOption buffers a quote for the underlying's contracts. Quotes are
// buffered even outside the trading window, but only in-window quotes
// refresh the selected contract and trigger emission.
func (n *Normalizer) IngestOption(quote event.OptionQuote) {
	if !strings.HasPrefix(quote.OptionSymbol, n.symbol) {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	n.buffer = append(n.buffer, quote)
	if len(n.buffer) > optionBufferCap {
		n.buffer = n.buffer[1:]
	}
	if !n.within(quote.AsOf) {
		return
	}
	n.latestOption = n.selectNearestLocked(quote.AsOf)
	n.attemptEmitLocked()
}

// attemptEmitLocked emits a snapshot when an equity tick has been cached.
// The emission timestamp is truncated to whole seconds so downstream
// consumers see deterministic alignment.
func (n *Normalizer) attemptEmitLocked() {
	if n.latestEquity == nil {
		return
	}
	normalized := event.NormalizedTick{
		AsOf:   n.latestEquity.AsOf.Truncate(time.Second),
		Equity: *n.latestEquity,
		Option: n.latestOption,
	}
	metrics.NormalizedTotal.Inc()
	n.log.Debug().
		Float64("vwap", normalized.Equity.SessionVWAP).
		Float64("ma9", normalized.Equity.MA9).
		Bool("has_option", normalized.Option != nil).
		Msg("normalized tick")
	n.emit(normalized)
}

// selectNearestLocked picks the same-day contract whose strike is nearest
// the latest underlying price. Ties go to the most recently seen quote.
// No same-day contract means no option, which is not an error.
func (n *Normalizer) selectNearestLocked(now time.Time) *event.OptionQuote {
	day := now.In(market.Eastern).Format("2006-01-02")

	var best *event.OptionQuote
	for i := range n.buffer {
		quote := &n.buffer[i]
		if quote.Expiry.In(market.Eastern).Format("2006-01-02") != day {
			continue
		}
		if n.latestEquity == nil {
			best = quote // no price yet, last same-day quote wins
			continue
		}
		if best == nil || math.Abs(quote.Strike-n.latestEquity.Price) <= math.Abs(best.Strike-n.latestEquity.Price) {
			best = quote
		}
	}
	if best == nil {
		return nil
	}
	selected := *best
	return &selected
}
