package position

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/MAKaminski/alpha-gen-trading/internal/broker"
	"github.com/MAKaminski/alpha-gen-trading/internal/event"
)

type fakeSource struct {
	snapshots []event.PositionSnapshot
	err       error
}

func (f *fakeSource) FetchPositions(context.Context) ([]event.PositionSnapshot, error) {
	return f.snapshots, f.err
}

func shortFill(symbol string, qty int, price float64) event.TradeExecution {
	return event.TradeExecution{
		OrderID:   "ord-1",
		Status:    broker.StatusFilled,
		FillPrice: price,
		AsOf:      time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
		Intent: event.TradeIntent{
			Action:       event.SellCallToOpen,
			OptionSymbol: symbol,
			Quantity:     qty,
			LimitPrice:   price,
		},
	}
}

func TestApplyExecutionCreatesSyntheticShort(t *testing.T) {
	r := NewReconciler(&fakeSource{}, nil, zerolog.Nop())

	r.ApplyExecution(shortFill("QQQ260302C00400000", 25, 5.50))

	state := r.State()
	snap, ok := state.Symbols["QQQ260302C00400000"]
	require.True(t, ok)
	require.Equal(t, -25, snap.Quantity)
	require.Equal(t, 5.50, snap.AveragePrice)
	require.Equal(t, -137.50, snap.MarketValue)
}

func TestApplyExecutionCloseRemovesOverlay(t *testing.T) {
	r := NewReconciler(&fakeSource{}, nil, zerolog.Nop())
	r.ApplyExecution(shortFill("QQQ260302C00400000", 25, 5.50))

	closeExec := shortFill("QQQ260302C00400000", 25, 2.75)
	closeExec.Intent.Action = event.BuyToClose
	r.ApplyExecution(closeExec)

	require.Empty(t, r.State().Symbols)
}

func TestApplyExecutionIgnoresFailedOrders(t *testing.T) {
	r := NewReconciler(&fakeSource{}, nil, zerolog.Nop())

	exec := shortFill("QQQ260302C00400000", 25, 5.50)
	exec.Status = broker.StatusFailed
	r.ApplyExecution(exec)

	require.Empty(t, r.State().Symbols)
}

func TestRefreshBrokerWinsOverSynthetic(t *testing.T) {
	src := &fakeSource{snapshots: []event.PositionSnapshot{{
		Symbol:       "QQQ260302C00400000",
		Quantity:     -25,
		AveragePrice: 5.48,
		MarketValue:  -13700,
	}}}
	r := NewReconciler(src, nil, zerolog.Nop())
	r.ApplyExecution(shortFill("QQQ260302C00400000", 25, 5.50))

	require.NoError(t, r.Refresh(context.Background()))

	snap := r.State().Symbols["QQQ260302C00400000"]
	require.Equal(t, 5.48, snap.AveragePrice)

	// The overlay was consumed; an empty broker book now clears the symbol.
	src.snapshots = nil
	require.NoError(t, r.Refresh(context.Background()))
	require.Empty(t, r.State().Symbols)
}

func TestRefreshKeepsSyntheticForUnreportedSymbols(t *testing.T) {
	src := &fakeSource{snapshots: []event.PositionSnapshot{{
		Symbol:   "QQQ260302P00395000",
		Quantity: -10,
	}}}
	r := NewReconciler(src, nil, zerolog.Nop())
	r.ApplyExecution(shortFill("QQQ260302C00400000", 25, 5.50))

	require.NoError(t, r.Refresh(context.Background()))

	state := r.State()
	require.Len(t, state.Symbols, 2)
	require.Equal(t, -25, state.Symbols["QQQ260302C00400000"].Quantity)
}

func TestRefreshErrorKeepsLastView(t *testing.T) {
	src := &fakeSource{snapshots: []event.PositionSnapshot{{
		Symbol:   "QQQ260302C00400000",
		Quantity: -25,
	}}}
	r := NewReconciler(src, nil, zerolog.Nop())
	require.NoError(t, r.Refresh(context.Background()))

	src.err = errors.New("broker unavailable")
	require.Error(t, r.Refresh(context.Background()))
	require.Len(t, r.State().Symbols, 1)
}

func TestStateEmittedToCallback(t *testing.T) {
	var states []event.PositionState
	r := NewReconciler(&fakeSource{}, func(s event.PositionState) { states = append(states, s) }, zerolog.Nop())

	r.ApplyExecution(shortFill("QQQ260302C00400000", 25, 5.50))

	require.Len(t, states, 1)
	require.Equal(t, -137.50, states[0].TotalMarketValue())
}
