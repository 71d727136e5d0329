package event

import (
	"testing"
	"time"
)

func TestCooldownActiveWindow(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)
	state := CooldownState{Until: now.Add(30 * time.Second)}

	if !state.Active(now) {
		t.Fatalf("expected cooldown active before until")
	}
	if state.Active(now.Add(30 * time.Second)) {
		t.Fatalf("expected cooldown inactive at until")
	}
	if ExpiredCooldown().Active(now) {
		t.Fatalf("expected expired sentinel to be inactive")
	}
}

func TestCooldownExtendFromExplicitTime(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)
	state := ExpiredCooldown().Extend(30*time.Second, now)
	if got := state.Until; !got.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("unexpected until: %v", got)
	}

	chained := state.Extend(time.Minute, time.Time{})
	if got := chained.Until; !got.Equal(state.Until.Add(time.Minute)) {
		t.Fatalf("expected extend to chain from previous until, got %v", got)
	}
}

func TestActionClassification(t *testing.T) {
	if !SellCallToOpen.IsShort() || !SellPutToOpen.IsShort() {
		t.Fatalf("sell actions must classify as short")
	}
	if SellCallToOpen.IsClose() {
		t.Fatalf("sell to open is not a closing action")
	}
	if !BuyToClose.IsClose() || BuyToClose.IsShort() {
		t.Fatalf("buy to close misclassified")
	}
}

func TestOptionQuoteMid(t *testing.T) {
	q := OptionQuote{Bid: 5.50, Ask: 5.75}
	if got := q.Mid(); got != 5.625 {
		t.Fatalf("expected mid 5.625, got %v", got)
	}
}

func TestPositionStateTotalMarketValue(t *testing.T) {
	state := PositionState{Symbols: map[string]PositionSnapshot{
		"QQQ250602C00400000": {MarketValue: -14062.5},
		"QQQ":                {MarketValue: 40100},
	}}
	if got := state.TotalMarketValue(); got != 26037.5 {
		t.Fatalf("unexpected total market value: %v", got)
	}
}
