package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/broker"
	"github.com/MAKaminski/alpha-gen-trading/internal/config"
	"github.com/MAKaminski/alpha-gen-trading/internal/event"
	"github.com/MAKaminski/alpha-gen-trading/internal/market"
	"github.com/MAKaminski/alpha-gen-trading/internal/normalize"
	"github.com/MAKaminski/alpha-gen-trading/internal/strategy"
	"github.com/MAKaminski/alpha-gen-trading/internal/trade"
)

// Runs the stub feed through normalization, the crossover engine, intent
// generation, and the trade manager against the paper broker, and waits
// for a real position to open.
func TestStubFeedOpensPaperPosition(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := config.Default()
	log := zerolog.Nop()

	sim := broker.NewSim(cfg.Risk.TradingCapital, cfg.Risk.MaxNotionalPerTrade,
		cfg.Trading.ContractMultiplier, log)
	defer sim.Close()

	monitor := trade.NewMonitor(sim, func(event.OptionQuote) {}, time.Hour, log)
	defer monitor.Shutdown()

	manager := trade.NewManager(sim, monitor, float64(cfg.Trading.ContractMultiplier), log,
		trade.WithSessionEndCheck(func(time.Time) bool { return false }))
	generator := trade.NewGenerator(trade.RiskParams{
		StopLossMultiple:   cfg.Risk.StopLossMultiple,
		TakeProfitMultiple: cfg.Risk.TakeProfitMultiple,
		MaxPositionSize:    cfg.Risk.MaxPositionSize,
	})
	engine := strategy.NewCrossover(cfg.Cooldown(), log)

	ticks := make(chan event.NormalizedTick, 64)
	normalizer := normalize.New(cfg.Market.EquitySymbol, func(tick event.NormalizedTick) {
		select {
		case ticks <- tick:
		default:
		}
	}, log, normalize.WithWindowPredicate(func(time.Time) bool { return true }))

	var seedMu sync.Mutex
	feed := market.NewFeed(cfg.Market, log, market.WithStubInterval(time.Millisecond))
	go func() {
		_ = feed.Run(ctx, market.Callbacks{
			OnEquityTick: normalizer.IngestEquity,
			OnOptionQuote: func(quote event.OptionQuote) {
				seedMu.Lock()
				sim.SetOptionQuote(quote)
				seedMu.Unlock()
				normalizer.IngestOption(quote)
			},
		})
	}()

	for {
		select {
		case <-ctx.Done():
			t.Fatal("timed out waiting for the pipeline to open a position")
		case tick := <-ticks:
			if tick.Option == nil {
				continue
			}
			signal := engine.OnTick(tick)
			if signal == nil {
				continue
			}
			if signal.ReferencePrice != 5.625 {
				t.Fatalf("reference price = %v, want the stub quote mid 5.625", signal.ReferencePrice)
			}

			intent := generator.HandleSignal(*signal)
			if intent.Quantity != cfg.Risk.MaxPositionSize {
				t.Fatalf("intent quantity = %d", intent.Quantity)
			}
			if err := manager.HandleIntent(ctx, intent); err != nil {
				t.Fatalf("HandleIntent: %v", err)
			}

			exec, ok := manager.OpenPosition()
			if !ok {
				t.Fatal("expected an open position after the intent")
			}
			if exec.Status != broker.StatusFilled {
				t.Fatalf("entry status = %s", exec.Status)
			}
			if !monitor.Tracking(intent.OptionSymbol) {
				t.Fatalf("monitor is not tracking %s", intent.OptionSymbol)
			}

			positions, err := sim.FetchPositions(ctx)
			if err != nil {
				t.Fatalf("FetchPositions: %v", err)
			}
			if len(positions) != 1 || positions[0].Quantity != -cfg.Risk.MaxPositionSize {
				t.Fatalf("paper positions = %+v", positions)
			}
			return
		}
	}
}
