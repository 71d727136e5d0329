// Package app wires the market feed, normalizer, signal engine, trade
// manager, reconciler, and event log into one runnable pipeline.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/broker"
	"github.com/MAKaminski/alpha-gen-trading/internal/config"
	"github.com/MAKaminski/alpha-gen-trading/internal/event"
	"github.com/MAKaminski/alpha-gen-trading/internal/market"
	"github.com/MAKaminski/alpha-gen-trading/internal/normalize"
	"github.com/MAKaminski/alpha-gen-trading/internal/position"
	"github.com/MAKaminski/alpha-gen-trading/internal/storage"
	"github.com/MAKaminski/alpha-gen-trading/internal/strategy"
	"github.com/MAKaminski/alpha-gen-trading/internal/trade"
	"github.com/MAKaminski/alpha-gen-trading/internal/util"
)

// Taps are optional observers for every event class the pipeline produces.
// They run on pipeline goroutines and must return quickly.
type Taps struct {
	OnTick      func(event.NormalizedTick)
	OnSignal    func(event.Signal)
	OnExecution func(event.TradeExecution)
	OnPositions func(event.PositionState)
}

// App owns the full pipeline for one trading session.
type App struct {
	cfg    *config.Config
	log    zerolog.Logger
	broker broker.Broker
	store  *storage.Store
	taps   Taps

	feed       *market.Feed
	normalizer *normalize.Normalizer
	engine     *strategy.Crossover
	generator  *trade.Generator
	manager    *trade.Manager
	monitor    *trade.Monitor
	reconciler *position.Reconciler

	ticks chan event.NormalizedTick

	mu        sync.Mutex
	intentIDs map[string]int64
}

// New assembles the pipeline. The store may be nil to run without
// persistence, for example in replays against an existing database.
func New(cfg *config.Config, brokerClient broker.Broker, store *storage.Store, taps Taps, log zerolog.Logger) *App {
	a := &App{
		cfg:       cfg,
		log:       log,
		broker:    brokerClient,
		store:     store,
		taps:      taps,
		ticks:     make(chan event.NormalizedTick, 1024),
		intentIDs: make(map[string]int64),
	}

	a.feed = market.NewFeed(cfg.Market, util.Component(log, "feed"))
	a.normalizer = normalize.New(cfg.Market.EquitySymbol, func(tick event.NormalizedTick) {
		select {
		case a.ticks <- tick:
		default:
			log.Warn().Msg("tick channel full, dropping normalized tick")
		}
	}, util.Component(log, "normalize"))
	a.engine = strategy.NewCrossover(cfg.Cooldown(), util.Component(log, "strategy"))
	a.generator = trade.NewGenerator(trade.RiskParams{
		StopLossMultiple:   cfg.Risk.StopLossMultiple,
		TakeProfitMultiple: cfg.Risk.TakeProfitMultiple,
		MaxPositionSize:    cfg.Risk.MaxPositionSize,
	})
	tradeLog := util.Component(log, "trade")
	a.monitor = trade.NewMonitor(brokerClient, func(quote event.OptionQuote) {
		a.manager.UpdateOptionQuote(quote)
	}, cfg.QuotePollInterval(), tradeLog)
	a.manager = trade.NewManager(brokerClient, a.monitor, float64(cfg.Trading.ContractMultiplier), tradeLog,
		trade.WithExecutionSink(a.handleExecution))
	a.reconciler = position.NewReconciler(brokerClient, a.handlePositions, util.Component(log, "position"))
	return a
}

// Run drives the pipeline until the context is cancelled, then tears it
// down in order: stop pollers, flatten positions, release the broker.
func (a *App) Run(ctx context.Context) error {
	a.log.Info().
		Str("provider", a.cfg.Market.Provider).
		Str("symbol", a.cfg.Market.EquitySymbol).
		Str("broker", a.cfg.Broker.Name).
		Msg("pipeline starting")

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- a.feed.Run(ctx, market.Callbacks{
			OnEquityTick:  a.handleEquityTick,
			OnOptionQuote: a.handleOptionQuote,
			OnError: func(err error) {
				a.log.Warn().Err(err).Msg("feed error")
			},
		})
	}()
	go a.reconciler.Run(ctx, a.cfg.PositionPollInterval())

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-feedErr:
			if err != nil && ctx.Err() == nil {
				runErr = fmt.Errorf("app: feed: %w", err)
			}
			break loop
		case tick := <-a.ticks:
			a.handleTick(ctx, tick)
		}
	}

	a.shutdown()
	return runErr
}

func (a *App) handleEquityTick(tick event.EquityTick) {
	if sim, ok := a.broker.(*broker.Sim); ok {
		sim.SetEquityTick(tick)
	}
	if a.store != nil {
		if err := a.store.InsertEquityTick(context.Background(), tick); err != nil {
			a.log.Warn().Err(err).Msg("persist equity tick")
		}
	}
	a.normalizer.IngestEquity(tick)
}

func (a *App) handleOptionQuote(quote event.OptionQuote) {
	if sim, ok := a.broker.(*broker.Sim); ok {
		sim.SetOptionQuote(quote)
	}
	if a.store != nil {
		if err := a.store.InsertOptionQuote(context.Background(), quote); err != nil {
			a.log.Warn().Err(err).Msg("persist option quote")
		}
	}
	a.normalizer.IngestOption(quote)
}

func (a *App) handleTick(ctx context.Context, tick event.NormalizedTick) {
	if a.store != nil {
		if err := a.store.InsertNormalizedTick(ctx, tick); err != nil {
			a.log.Warn().Err(err).Msg("persist normalized tick")
		}
	}
	if a.taps.OnTick != nil {
		a.taps.OnTick(tick)
	}

	// Feed quotes double as exit checks for the open position.
	a.manager.HandleTick(tick)

	signal := a.engine.OnTick(tick)
	if signal == nil {
		return
	}
	if a.store != nil {
		if err := a.store.InsertSignal(ctx, *signal); err != nil {
			a.log.Warn().Err(err).Msg("persist signal")
		}
	}
	if a.taps.OnSignal != nil {
		a.taps.OnSignal(*signal)
	}

	intent := a.generator.HandleSignal(*signal)
	if a.store != nil {
		id, err := a.store.InsertTradeIntent(ctx, intent)
		if err != nil {
			a.log.Warn().Err(err).Msg("persist trade intent")
		} else {
			a.mu.Lock()
			a.intentIDs[intentKey(intent)] = id
			a.mu.Unlock()
		}
	}

	if err := a.manager.HandleIntent(ctx, intent); err != nil {
		a.log.Error().Err(err).Str("symbol", intent.OptionSymbol).Msg("intent submission failed")
	}
}

// intentKey identifies a persisted intent so its executions can link back
// to the stored row. Synthesized closes never match and store a NULL link.
func intentKey(intent event.TradeIntent) string {
	return fmt.Sprintf("%s|%s|%d", intent.OptionSymbol, intent.Action, intent.AsOf.UnixNano())
}

func (a *App) handleExecution(exec event.TradeExecution) {
	if a.store != nil {
		key := intentKey(exec.Intent)
		a.mu.Lock()
		intentID := a.intentIDs[key]
		delete(a.intentIDs, key)
		a.mu.Unlock()

		if err := a.store.InsertExecution(context.Background(), exec, intentID); err != nil {
			a.log.Warn().Err(err).Msg("persist execution")
		}
	}
	a.reconciler.ApplyExecution(exec)
	if a.taps.OnExecution != nil {
		a.taps.OnExecution(exec)
	}
}

func (a *App) handlePositions(state event.PositionState) {
	if a.store != nil {
		for _, snap := range state.Symbols {
			if err := a.store.InsertPositionSnapshot(context.Background(), snap); err != nil {
				a.log.Warn().Err(err).Msg("persist position snapshot")
			}
		}
	}
	if a.taps.OnPositions != nil {
		a.taps.OnPositions(state)
	}
}

func (a *App) shutdown() {
	a.log.Info().Msg("pipeline stopping")
	a.monitor.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.manager.CloseAll(ctx, "shutdown")

	if err := a.broker.Close(); err != nil {
		a.log.Warn().Err(err).Msg("broker close")
	}
	a.log.Info().Msg("pipeline stopped")
}
