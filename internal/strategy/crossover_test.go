package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
)

var base = time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

func tickWithDiff(diff float64, asOf time.Time) event.NormalizedTick {
	return event.NormalizedTick{
		AsOf: asOf,
		Equity: event.EquityTick{
			Symbol:      "QQQ",
			Price:       400,
			SessionVWAP: 400 + diff,
			MA9:         400,
			AsOf:        asOf,
		},
		Option: &event.OptionQuote{
			OptionSymbol: "QQQ250602C00400000",
			Strike:       400,
			Bid:          5.50,
			Ask:          5.75,
			Expiry:       asOf,
			AsOf:         asOf,
		},
	}
}

func TestCrossoverEmitsShortPutOnDownCross(t *testing.T) {
	engine := NewCrossover(time.Second, zerolog.Nop())

	if sig := engine.OnTick(tickWithDiff(1, base)); sig != nil {
		t.Fatalf("first observation must not signal")
	}
	sig := engine.OnTick(tickWithDiff(-1, base.Add(2*time.Second)))
	if sig == nil {
		t.Fatalf("expected signal on sign flip")
	}
	if sig.Action != event.SellPutToOpen {
		t.Fatalf("expected SELL_PUT_TO_OPEN, got %s", sig.Action)
	}
	if sig.ReferencePrice != 5.625 {
		t.Fatalf("expected reference at quote mid 5.625, got %v", sig.ReferencePrice)
	}
}

func TestCrossoverEmitsShortCallOnUpCross(t *testing.T) {
	engine := NewCrossover(time.Second, zerolog.Nop())

	engine.OnTick(tickWithDiff(-2, base))
	sig := engine.OnTick(tickWithDiff(2, base.Add(2*time.Second)))
	if sig == nil || sig.Action != event.SellCallToOpen {
		t.Fatalf("expected SELL_TO_OPEN on upward cross, got %+v", sig)
	}
}

func TestNoSignalWithoutSignChange(t *testing.T) {
	engine := NewCrossover(time.Second, zerolog.Nop())

	engine.OnTick(tickWithDiff(1, base))
	if sig := engine.OnTick(tickWithDiff(2, base.Add(time.Second))); sig != nil {
		t.Fatalf("same-sign move must not signal")
	}
}

func TestZeroDiffCountsAsTouch(t *testing.T) {
	engine := NewCrossover(time.Second, zerolog.Nop())

	engine.OnTick(tickWithDiff(1, base))
	sig := engine.OnTick(tickWithDiff(0, base.Add(2*time.Second)))
	if sig == nil {
		t.Fatalf("diff touching zero must signal")
	}
	if sig.Action != event.SellPutToOpen {
		t.Fatalf("zero diff resolves to the put side, got %s", sig.Action)
	}
}

func TestCooldownSuppressesSignals(t *testing.T) {
	engine := NewCrossover(30*time.Second, zerolog.Nop())

	engine.OnTick(tickWithDiff(1, base))
	first := engine.OnTick(tickWithDiff(-1, base.Add(time.Second)))
	if first == nil {
		t.Fatalf("expected initial signal")
	}

	// Another flip inside the cooldown window is tracked but suppressed.
	if sig := engine.OnTick(tickWithDiff(1, base.Add(2*time.Second))); sig != nil {
		t.Fatalf("cooldown must suppress signals")
	}

	// After expiry the baseline carried through cooldown is positive, so a
	// negative diff is a fresh crossover.
	sig := engine.OnTick(tickWithDiff(-1, base.Add(40*time.Second)))
	if sig == nil {
		t.Fatalf("expected signal after cooldown expiry")
	}
	if gap := sig.AsOf.Sub(first.AsOf); gap < 30*time.Second {
		t.Fatalf("signals closer than cooldown: %v", gap)
	}
}

func TestTickWithoutOptionIgnored(t *testing.T) {
	engine := NewCrossover(time.Second, zerolog.Nop())

	tick := tickWithDiff(1, base)
	tick.Option = nil
	if sig := engine.OnTick(tick); sig != nil {
		t.Fatalf("no option means nothing to trade")
	}

	// The optionless tick must not have established a baseline either.
	down := tickWithDiff(-1, base.Add(time.Second))
	if sig := engine.OnTick(down); sig != nil {
		t.Fatalf("first tradable observation must not signal")
	}
}

func TestRemainingCooldownAndClear(t *testing.T) {
	engine := NewCrossover(30*time.Second, zerolog.Nop())

	engine.OnTick(tickWithDiff(1, base))
	engine.OnTick(tickWithDiff(-1, base.Add(time.Second)))

	remaining := engine.RemainingCooldown(base.Add(11 * time.Second))
	if remaining != 20*time.Second {
		t.Fatalf("expected 20s remaining, got %v", remaining)
	}
	if engine.RemainingCooldown(base.Add(5*time.Minute)) != 0 {
		t.Fatalf("expected zero remaining after expiry")
	}

	engine.ClearCooldown()
	if engine.RemainingCooldown(base.Add(2*time.Second)) != 0 {
		t.Fatalf("expected cleared cooldown to report zero")
	}
}
