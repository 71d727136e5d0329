package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
	"github.com/MAKaminski/alpha-gen-trading/internal/market"
	"github.com/MAKaminski/alpha-gen-trading/internal/metrics"
)

type simPosition struct {
	Qty      int // negative for short positions
	AvgPrice float64
}

// Sim is a paper broker. Every accepted order fills at its limit price;
// orders breaching the per-trade notional cap come back as failed
// executions, mirroring a venue reject.
type Sim struct {
	log        zerolog.Logger
	multiplier int

	mu          sync.Mutex
	cash        float64
	realized    float64
	maxNotional float64
	positions   map[string]simPosition
	quotes      map[string]event.OptionQuote
	equities    map[string]event.EquityTick
	now         func() time.Time
}

// SimOption configures the paper broker.
type SimOption func(*Sim)

// WithClock overrides the fill timestamp source, mainly for tests.
func WithClock(now func() time.Time) SimOption {
	return func(s *Sim) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSim builds a paper broker with starting cash and an optional per-trade
// notional cap (zero disables the cap).
func NewSim(startingCash, maxNotionalPerTrade float64, multiplier int, log zerolog.Logger, opts ...SimOption) *Sim {
	if multiplier <= 0 {
		multiplier = 100
	}
	s := &Sim{
		log:         log,
		multiplier:  multiplier,
		cash:        startingCash,
		maxNotional: maxNotionalPerTrade,
		positions:   make(map[string]simPosition),
		quotes:      make(map[string]event.OptionQuote),
		equities:    make(map[string]event.EquityTick),
		now:         market.NowEastern,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetOptionQuote seeds the quote the broker serves for a contract.
func (s *Sim) SetOptionQuote(quote event.OptionQuote) {
	s.mu.Lock()
	s.quotes[quote.OptionSymbol] = quote
	s.mu.Unlock()
}

// SetEquityTick seeds the quote the broker serves for the underlying.
func (s *Sim) SetEquityTick(tick event.EquityTick) {
	s.mu.Lock()
	s.equities[tick.Symbol] = tick
	s.mu.Unlock()
}

// SubmitOrder fills the intent at its limit price and updates the paper
// account. Rejections (notional cap, non-positive size or price) return a
// failed execution, not an error.
func (s *Sim) SubmitOrder(ctx context.Context, intent event.TradeIntent) (event.TradeExecution, error) {
	if err := ctx.Err(); err != nil {
		return event.TradeExecution{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	notional := intent.LimitPrice * float64(intent.Quantity) * float64(s.multiplier)
	if intent.Quantity <= 0 || intent.LimitPrice <= 0 || (s.maxNotional > 0 && notional > s.maxNotional) {
		s.log.Warn().
			Str("symbol", intent.OptionSymbol).
			Str("action", string(intent.Action)).
			Float64("notional", notional).
			Msg("paper order rejected")
		metrics.OrdersTotal.WithLabelValues(string(intent.Action), StatusFailed).Inc()
		return event.TradeExecution{
			OrderID:   uuid.NewString(),
			Status:    StatusFailed,
			FillPrice: 0,
			AsOf:      s.now(),
			Intent:    intent,
		}, nil
	}

	s.applyFillLocked(intent)

	s.log.Info().
		Str("symbol", intent.OptionSymbol).
		Str("action", string(intent.Action)).
		Int("qty", intent.Quantity).
		Float64("px", intent.LimitPrice).
		Msg("paper order filled")
	metrics.OrdersTotal.WithLabelValues(string(intent.Action), StatusFilled).Inc()
	return event.TradeExecution{
		OrderID:   uuid.NewString(),
		Status:    StatusFilled,
		FillPrice: intent.LimitPrice,
		AsOf:      s.now(),
		Intent:    intent,
	}, nil
}

func (s *Sim) applyFillLocked(intent event.TradeIntent) {
	state := s.positions[intent.OptionSymbol]
	qty := intent.Quantity
	notional := intent.LimitPrice * float64(qty) * float64(s.multiplier)

	if intent.Action.IsShort() {
		newQty := state.Qty - qty
		avg := intent.LimitPrice
		if state.Qty != 0 {
			avg = (state.AvgPrice*float64(-state.Qty) + intent.LimitPrice*float64(qty)) / float64(-newQty)
		}
		s.cash += notional
		s.positions[intent.OptionSymbol] = simPosition{Qty: newQty, AvgPrice: avg}
		return
	}

	// Buy to close: cover toward flat, realizing short PnL.
	covered := qty
	if -state.Qty < covered {
		covered = -state.Qty
	}
	if covered > 0 {
		s.realized += (state.AvgPrice - intent.LimitPrice) * float64(covered) * float64(s.multiplier)
	}
	s.cash -= notional
	newQty := state.Qty + qty
	if newQty == 0 {
		delete(s.positions, intent.OptionSymbol)
	} else {
		s.positions[intent.OptionSymbol] = simPosition{Qty: newQty, AvgPrice: state.AvgPrice}
	}
}

// FetchPositions reports open paper positions marked at the last seen quote.
func (s *Sim) FetchPositions(ctx context.Context) ([]event.PositionSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	snapshots := make([]event.PositionSnapshot, 0, len(s.positions))
	for symbol, pos := range s.positions {
		mark := pos.AvgPrice
		if quote, ok := s.quotes[symbol]; ok {
			mark = quote.Mid()
		}
		snapshots = append(snapshots, event.PositionSnapshot{
			Symbol:       symbol,
			Quantity:     pos.Qty,
			AveragePrice: pos.AvgPrice,
			MarketValue:  float64(pos.Qty) * mark * float64(s.multiplier),
			AsOf:         now,
		})
	}
	return snapshots, nil
}

// FetchOptionQuote serves the last seeded quote, or nil when unseen.
func (s *Sim) FetchOptionQuote(ctx context.Context, optionSymbol string) (*event.OptionQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if quote, ok := s.quotes[optionSymbol]; ok {
		q := quote
		return &q, nil
	}
	return nil, nil
}

// FetchEquityQuote serves the last seeded underlying tick, or nil.
func (s *Sim) FetchEquityQuote(ctx context.Context, symbol string) (*event.EquityTick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tick, ok := s.equities[symbol]; ok {
		t := tick
		return &t, nil
	}
	return nil, nil
}

// RealizedPnL returns total closed-trade profit and loss.
func (s *Sim) RealizedPnL() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realized
}

// Cash returns the current paper cash balance.
func (s *Sim) Cash() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash
}

// Close releases nothing for the paper broker.
func (s *Sim) Close() error { return nil }
