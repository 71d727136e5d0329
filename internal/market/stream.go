package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/config"
	"github.com/MAKaminski/alpha-gen-trading/internal/event"
)

const (
	// ProviderStub emits deterministic synthetic ticks (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderPolygon streams live equity aggregates and option quotes from Polygon.
	ProviderPolygon = "polygon"
)

const defaultStubInterval = 500 * time.Millisecond

// Callbacks receives every event decoded from the raw stream.
type Callbacks struct {
	OnEquityTick  func(event.EquityTick)
	OnOptionQuote func(event.OptionQuote)
	OnError       func(error)
}

// Feed represents a pluggable market data stream implementation.
type Feed struct {
	provider     string
	symbol       string
	apiKey       string
	stockURL     string
	optionsURL   string
	stubInterval time.Duration
	log          zerolog.Logger
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithStubInterval overrides the synthetic tick cadence of the stub provider.
func WithStubInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.stubInterval = d
		}
	}
}

// NewFeed constructs a feed backed by the configured provider.
func NewFeed(cfg config.Market, log zerolog.Logger, opts ...Option) *Feed {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:     provider,
		symbol:       cfg.EquitySymbol,
		apiKey:       cfg.PolygonAPIKey,
		stockURL:     cfg.StockWSURL,
		optionsURL:   cfg.OptionsWSURL,
		stubInterval: defaultStubInterval,
		log:          log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run pushes decoded events into the callbacks until the context is
// canceled. Malformed messages are dropped; transport failures reconnect
// with backoff and are reported through OnError.
func (f *Feed) Run(ctx context.Context, cb Callbacks) error {
	switch f.provider {
	case ProviderPolygon:
		return f.runPolygon(ctx, cb)
	case ProviderStub:
		return f.runStub(ctx, cb)
	default:
		return fmt.Errorf("unknown market data provider %q", f.provider)
	}
}
