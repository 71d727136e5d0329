package trade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
	"github.com/MAKaminski/alpha-gen-trading/internal/market"
	"github.com/MAKaminski/alpha-gen-trading/internal/metrics"
)

// Exit reasons recorded on closing executions and metrics.
const (
	ExitTakeProfit   = "take_profit"
	ExitStopLoss     = "stop_loss"
	ExitSessionClose = "session_close"
	ExitRollover     = "rollover"
)

type orderSubmitter interface {
	SubmitOrder(ctx context.Context, intent event.TradeIntent) (event.TradeExecution, error)
}

type positionMonitor interface {
	Track(symbol string)
	Untrack(symbol string)
}

type openPosition struct {
	intent    event.TradeIntent
	execution event.TradeExecution
	closing   bool
}

// Manager owns the lifecycle of the bot's single open option position. It
// opens positions from trade intents, watches option quotes for exit
// conditions and closes with a fixed priority: take-profit first, then
// stop-loss, then session close. A second intent for a different contract
// is rejected while a position is open; the same contract rolls over.
type Manager struct {
	broker      orderSubmitter
	monitor     positionMonitor
	multiplier  float64
	sessionEnd  func(time.Time) bool
	onExecution func(event.TradeExecution)
	log         zerolog.Logger

	mu      sync.Mutex
	pending string
	open    map[string]*openPosition
	quotes  map[string]event.OptionQuote
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithSessionEndCheck overrides the buffered session-end predicate.
func WithSessionEndCheck(fn func(time.Time) bool) ManagerOption {
	return func(m *Manager) { m.sessionEnd = fn }
}

// WithExecutionSink registers a callback invoked for every execution the
// manager produces, entries and exits alike.
func WithExecutionSink(fn func(event.TradeExecution)) ManagerOption {
	return func(m *Manager) { m.onExecution = fn }
}

// NewManager builds a Manager. multiplier is the contract multiplier used
// for realized PnL, normally 100.
func NewManager(submitter orderSubmitter, monitor positionMonitor, multiplier float64, log zerolog.Logger, opts ...ManagerOption) *Manager {
	if multiplier <= 0 {
		multiplier = 100
	}
	m := &Manager{
		broker:     submitter,
		monitor:    monitor,
		multiplier: multiplier,
		sessionEnd: defaultSessionEnd,
		log:        log,
		open:       make(map[string]*openPosition),
		quotes:     make(map[string]event.OptionQuote),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultSessionEnd(moment time.Time) bool {
	eastern := moment.In(market.Eastern)
	if market.IsMarketHoliday(eastern) {
		return true
	}
	_, end := market.SessionBounds(eastern)
	return !eastern.Before(end)
}

// HandleIntent opens a position from an entry intent. A failed submission
// still occupies the position slot so a rejected order is not silently
// retried on the next signal; only a transport error leaves the slot free.
func (m *Manager) HandleIntent(ctx context.Context, intent event.TradeIntent) error {
	if !intent.Action.IsShort() {
		return fmt.Errorf("trade: intent action %s cannot open a position", intent.Action)
	}

	m.mu.Lock()
	if m.pending != "" {
		m.mu.Unlock()
		m.rejectIntent(intent, "entry already in flight")
		return nil
	}
	var held string
	for symbol := range m.open {
		held = symbol
	}
	if held != "" && held != intent.OptionSymbol {
		m.mu.Unlock()
		m.rejectIntent(intent, "position already open")
		return nil
	}
	m.pending = intent.OptionSymbol
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.pending = ""
		m.mu.Unlock()
	}()

	if held == intent.OptionSymbol && held != "" {
		if err := m.closeSymbol(ctx, held, ExitRollover, 0, intent.AsOf); err != nil {
			return fmt.Errorf("trade: rollover close: %w", err)
		}
	}

	exec, err := m.broker.SubmitOrder(ctx, intent)
	if err != nil {
		return fmt.Errorf("trade: submit entry: %w", err)
	}

	m.mu.Lock()
	m.open[intent.OptionSymbol] = &openPosition{intent: intent, execution: exec}
	m.mu.Unlock()

	metrics.OrdersTotal.WithLabelValues(string(intent.Action), exec.Status).Inc()
	m.log.Info().
		Str("symbol", intent.OptionSymbol).
		Str("action", string(intent.Action)).
		Int("quantity", intent.Quantity).
		Float64("limit", intent.LimitPrice).
		Str("status", exec.Status).
		Msg("position opened")

	m.emit(exec)
	m.monitor.Track(intent.OptionSymbol)
	return nil
}

// HandleTick feeds the option leg of a normalized tick into exit
// evaluation. Ticks without an option are ignored.
func (m *Manager) HandleTick(tick event.NormalizedTick) {
	if tick.Option == nil {
		return
	}
	m.UpdateOptionQuote(*tick.Option)
}

// UpdateOptionQuote records the latest quote for a contract and closes the
// open position when an exit condition holds at the quote's mid price.
// Quotes are cached whether or not a position is open so a later close can
// price off the last observed market instead of the entry fill.
func (m *Manager) UpdateOptionQuote(quote event.OptionQuote) {
	symbol := quote.OptionSymbol

	m.mu.Lock()
	m.quotes[symbol] = quote
	pos, ok := m.open[symbol]
	if !ok {
		m.mu.Unlock()
		return
	}

	mid := quote.Mid()
	var reason string
	switch {
	case pos.closing:
	case pos.intent.TakeProfit > 0 && mid <= pos.intent.TakeProfit:
		reason = ExitTakeProfit
	case pos.intent.StopLoss > 0 && mid >= pos.intent.StopLoss:
		reason = ExitStopLoss
	case m.sessionEnd(quote.AsOf):
		reason = ExitSessionClose
	}
	m.mu.Unlock()

	if reason == "" {
		return
	}
	if err := m.closeSymbol(context.Background(), symbol, reason, mid, quote.AsOf); err != nil {
		m.log.Error().Err(err).Str("symbol", symbol).Str("reason", reason).Msg("exit close failed, position stays open")
	}
}

// CloseAll closes every open position, typically on shutdown.
func (m *Manager) CloseAll(ctx context.Context, reason string) {
	m.mu.Lock()
	symbols := make([]string, 0, len(m.open))
	for symbol := range m.open {
		symbols = append(symbols, symbol)
	}
	m.mu.Unlock()

	for _, symbol := range symbols {
		if err := m.closeSymbol(ctx, symbol, reason, 0, time.Now().UTC()); err != nil {
			m.log.Error().Err(err).Str("symbol", symbol).Msg("close on teardown failed")
		}
	}
}

// OpenPosition returns the entry execution of the currently held position.
func (m *Manager) OpenPosition() (event.TradeExecution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pos := range m.open {
		return pos.execution, true
	}
	return event.TradeExecution{}, false
}

// closeSymbol submits a buy-to-close for the held contract. The exit price
// falls back from the supplied override to the last cached quote mid and
// finally to the entry fill. A submit error leaves the position open.
func (m *Manager) closeSymbol(ctx context.Context, symbol, reason string, override float64, asOf time.Time) error {
	m.mu.Lock()
	pos, ok := m.open[symbol]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if pos.closing {
		m.mu.Unlock()
		return nil
	}
	pos.closing = true
	quote, hasQuote := m.quotes[symbol]
	m.mu.Unlock()

	exitPrice := override
	if exitPrice <= 0 {
		if hasQuote {
			exitPrice = quote.Mid()
		} else {
			exitPrice = pos.execution.FillPrice
		}
	}

	closeIntent := event.TradeIntent{
		AsOf:         asOf,
		Action:       event.BuyToClose,
		OptionSymbol: symbol,
		Quantity:     pos.intent.Quantity,
		LimitPrice:   exitPrice,
	}
	exec, err := m.broker.SubmitOrder(ctx, closeIntent)
	if err != nil {
		m.mu.Lock()
		pos.closing = false
		m.mu.Unlock()
		return fmt.Errorf("trade: submit close: %w", err)
	}

	fill := exec.FillPrice
	if fill == 0 {
		fill = exitPrice
	}
	direction := 1.0
	if pos.intent.Action.IsShort() {
		direction = -1.0
	}
	exec.PnLContrib = (fill - pos.execution.FillPrice) * direction * float64(pos.intent.Quantity) * m.multiplier

	m.mu.Lock()
	delete(m.open, symbol)
	m.mu.Unlock()

	metrics.OrdersTotal.WithLabelValues(string(event.BuyToClose), exec.Status).Inc()
	metrics.ExitsTotal.WithLabelValues(reason).Inc()
	m.log.Info().
		Str("symbol", symbol).
		Str("reason", reason).
		Float64("exit", fill).
		Float64("entry", pos.execution.FillPrice).
		Float64("pnl", exec.PnLContrib).
		Msg("position closed")

	m.emit(exec)
	if reason != ExitRollover {
		m.monitor.Untrack(symbol)
	}
	return nil
}

func (m *Manager) rejectIntent(intent event.TradeIntent, why string) {
	metrics.IntentsRejectedTotal.Inc()
	m.log.Warn().
		Str("symbol", intent.OptionSymbol).
		Str("action", string(intent.Action)).
		Msg("trade intent rejected: " + why)
}

func (m *Manager) emit(exec event.TradeExecution) {
	if m.onExecution != nil {
		m.onExecution(exec)
	}
}
