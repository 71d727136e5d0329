package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/MAKaminski/alpha-gen-trading/internal/app"
	"github.com/MAKaminski/alpha-gen-trading/internal/broker"
	"github.com/MAKaminski/alpha-gen-trading/internal/config"
	"github.com/MAKaminski/alpha-gen-trading/internal/metrics"
	"github.com/MAKaminski/alpha-gen-trading/internal/storage"
	"github.com/MAKaminski/alpha-gen-trading/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to YAML config")
	verbose := flag.Bool("verbose", false, "force debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	level := cfg.App.LogLevel
	if *verbose {
		level = "debug"
	}
	log := util.NewLogger(level)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	store, err := storage.Open(cfg.Storage.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open event log")
	}
	defer store.Close()

	var brokerClient broker.Broker
	switch cfg.Broker.Name {
	case "schwab":
		brokerClient = broker.NewSchwab(cfg.Broker, log)
	default:
		brokerClient = broker.NewSim(cfg.Risk.TradingCapital, cfg.Risk.MaxNotionalPerTrade,
			cfg.Trading.ContractMultiplier, log)
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pipeline := app.New(cfg, brokerClient, store, app.Taps{}, log)
	if err := pipeline.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("pipeline failed")
	}
}
