package market

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
)

// runStub synthesizes a slow sinusoidal VWAP/MA9 spread around a drifting
// underlying so the downstream crossover engine fires periodically. Each
// equity tick is paired with a same-day at-the-money option quote.
func (f *Feed) runStub(ctx context.Context, cb Callbacks) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()

	f.log.Info().Str("provider", ProviderStub).Str("symbol", f.symbol).Msg("stub market data feed started")

	price := 400.0
	step := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			step++
			price += 0.05
			// Spread oscillates through zero roughly every 40 ticks.
			spread := math.Sin(float64(step) / 20.0)
			now := NowEastern()

			if cb.OnEquityTick != nil {
				cb.OnEquityTick(event.EquityTick{
					Symbol:      f.symbol,
					Price:       price,
					SessionVWAP: price + spread/2,
					MA9:         price - spread/2,
					AsOf:        now,
				})
			}

			strike := math.Round(price/5) * 5
			if cb.OnOptionQuote != nil {
				cb.OnOptionQuote(event.OptionQuote{
					OptionSymbol: stubOptionSymbol(f.symbol, now, strike),
					Strike:       strike,
					Bid:          5.50,
					Ask:          5.75,
					Expiry:       now,
					AsOf:         now,
				})
			}
		}
	}
}

// stubOptionSymbol renders an OCC-style contract symbol expiring on day.
func stubOptionSymbol(underlying string, day time.Time, strike float64) string {
	return fmt.Sprintf("%s%sC%08d", underlying, day.Format("060102"), int(strike*1000))
}
