// Replay runs the signal engine over normalized ticks recorded in a
// previous session's event log and prints what it would have traded.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/MAKaminski/alpha-gen-trading/internal/config"
	"github.com/MAKaminski/alpha-gen-trading/internal/storage"
	"github.com/MAKaminski/alpha-gen-trading/internal/strategy"
	"github.com/MAKaminski/alpha-gen-trading/internal/trade"
	"github.com/MAKaminski/alpha-gen-trading/internal/util"
)

func main() {
	dsn := flag.String("db", "data/alphagen.db", "event log to replay")
	limit := flag.Int("limit", 10000, "max ticks to replay")
	flag.Parse()

	log := util.NewLogger("warn")
	cfg := config.Default()

	store, err := storage.Open(*dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open event log")
	}
	defer store.Close()

	ticks, err := store.RecentNormalizedTicks(context.Background(), *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("load normalized ticks")
	}

	engine := strategy.NewCrossover(cfg.Cooldown(), log)
	generator := trade.NewGenerator(trade.RiskParams{
		StopLossMultiple:   cfg.Risk.StopLossMultiple,
		TakeProfitMultiple: cfg.Risk.TakeProfitMultiple,
		MaxPositionSize:    cfg.Risk.MaxPositionSize,
	})

	var signals int
	for _, tick := range ticks {
		signal := engine.OnTick(tick)
		if signal == nil {
			continue
		}
		signals++
		intent := generator.HandleSignal(*signal)
		fmt.Printf("%s  %-18s %-22s qty=%d limit=%.2f stop=%.2f tp=%.2f\n",
			signal.AsOf.Format("2006-01-02 15:04:05"), signal.Action, signal.OptionSymbol,
			intent.Quantity, intent.LimitPrice, intent.StopLoss, intent.TakeProfit)
	}
	fmt.Printf("replayed %d ticks, %d signals\n", len(ticks), signals)
}
