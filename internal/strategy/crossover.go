// Package strategy contains the signal generation logic wired into
// normalized ticks.
package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
	"github.com/MAKaminski/alpha-gen-trading/internal/metrics"
)

// DefaultCooldown suppresses signals for this long after each emission.
const DefaultCooldown = 30 * time.Second

// Crossover detects sign changes of VWAP−MA9 on the normalized tick stream
// and emits at most one signal per crossover, never during an active
// cooldown. The engine has no internal concurrency: one decision per tick,
// in tick order.
type Crossover struct {
	cooldown time.Duration
	log      zerolog.Logger

	mu            sync.Mutex
	lastDiff      *float64
	cooldownState event.CooldownState
}

// NewCrossover builds the engine with the given cooldown window; zero or
// negative durations fall back to the default.
func NewCrossover(cooldown time.Duration, log zerolog.Logger) *Crossover {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Crossover{
		cooldown:      cooldown,
		log:           log,
		cooldownState: event.ExpiredCooldown(),
	}
}

// OnTick evaluates one snapshot and returns a signal on crossover, or nil.
// Ticks without an option are ignored: there is nothing to trade. During
// cooldown the diff baseline keeps tracking silently.
func (c *Crossover) OnTick(tick event.NormalizedTick) *event.Signal {
	if tick.Option == nil {
		return nil
	}
	diff := tick.Equity.SessionVWAP - tick.Equity.MA9
	now := tick.AsOf

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cooldownState.Active(now) {
		c.lastDiff = &diff
		return nil
	}
	if c.lastDiff == nil {
		// First observation establishes the baseline only.
		c.lastDiff = &diff
		return nil
	}
	prev := *c.lastDiff
	crossed := diff == 0 || (diff > 0 && prev < 0) || (diff < 0 && prev > 0)
	if !crossed {
		c.lastDiff = &diff
		return nil
	}

	action := event.SellPutToOpen
	if diff > 0 {
		action = event.SellCallToOpen
	}
	cooldownUntil := now.Add(c.cooldown)
	signal := &event.Signal{
		AsOf:           now,
		Action:         action,
		OptionSymbol:   tick.Option.OptionSymbol,
		ReferencePrice: tick.Option.Mid(),
		Rationale:      fmt.Sprintf("VWAP/MA9 crossover detected (diff=%.4f, prev=%.4f)", diff, prev),
		CooldownUntil:  cooldownUntil,
	}
	c.cooldownState = event.CooldownState{Until: cooldownUntil}
	c.lastDiff = &diff

	metrics.SignalsTotal.WithLabelValues(string(action)).Inc()
	c.log.Info().
		Str("action", string(action)).
		Str("symbol", signal.OptionSymbol).
		Float64("reference", signal.ReferencePrice).
		Msg("crossover signal")
	return signal
}

// RemainingCooldown returns how long signals stay suppressed from now,
// floored at zero.
func (c *Crossover) RemainingCooldown(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.cooldownState.Until.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ClearCooldown resets the suppression window, used for manual override.
func (c *Crossover) ClearCooldown() {
	c.mu.Lock()
	c.cooldownState = event.ExpiredCooldown()
	c.mu.Unlock()
}
