// Package position reconciles locally observed executions against the
// broker's authoritative position reports.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/broker"
	"github.com/MAKaminski/alpha-gen-trading/internal/event"
)

// Source is the broker surface the reconciler depends on.
type Source interface {
	FetchPositions(ctx context.Context) ([]event.PositionSnapshot, error)
}

// Reconciler maintains the consolidated position view. Broker snapshots
// are authoritative; executions the broker has not reported yet appear as
// synthetic overlay entries until a refresh confirms or supersedes them.
type Reconciler struct {
	source  Source
	onState func(event.PositionState)
	log     zerolog.Logger

	mu        sync.Mutex
	reported  map[string]event.PositionSnapshot
	synthetic map[string]event.PositionSnapshot
}

// NewReconciler builds a Reconciler. onState may be nil.
func NewReconciler(source Source, onState func(event.PositionState), log zerolog.Logger) *Reconciler {
	return &Reconciler{
		source:    source,
		onState:   onState,
		log:       log,
		reported:  make(map[string]event.PositionSnapshot),
		synthetic: make(map[string]event.PositionSnapshot),
	}
}

// ApplyExecution folds a local execution into the overlay. Short entries
// record a negative quantity at the fill price; closes drop the overlay.
// Failed submissions never reach the book and are ignored.
func (r *Reconciler) ApplyExecution(exec event.TradeExecution) {
	if exec.Status == broker.StatusFailed {
		return
	}
	symbol := exec.Intent.OptionSymbol

	r.mu.Lock()
	switch {
	case exec.Intent.Action.IsClose():
		delete(r.synthetic, symbol)
	case exec.Intent.Action.IsShort():
		qty := -exec.Intent.Quantity
		r.synthetic[symbol] = event.PositionSnapshot{
			Symbol:       symbol,
			Quantity:     qty,
			AveragePrice: exec.FillPrice,
			MarketValue:  -exec.FillPrice * float64(exec.Intent.Quantity),
			AsOf:         exec.AsOf,
		}
	}
	state := r.mergedLocked(exec.AsOf)
	r.mu.Unlock()

	r.emit(state)
}

// Refresh replaces the broker-reported table with a fresh snapshot. On a
// fetch error the previous view is kept and the error returned.
func (r *Reconciler) Refresh(ctx context.Context) error {
	snapshots, err := r.source.FetchPositions(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("position refresh failed, keeping last view")
		return err
	}
	now := time.Now().UTC()

	r.mu.Lock()
	r.reported = make(map[string]event.PositionSnapshot, len(snapshots))
	for _, snap := range snapshots {
		r.reported[snap.Symbol] = snap
		// The broker has caught up; the overlay entry is stale.
		delete(r.synthetic, snap.Symbol)
	}
	state := r.mergedLocked(now)
	r.mu.Unlock()

	r.emit(state)
	return nil
}

// Run refreshes on a fixed cadence until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Refresh(ctx)
		}
	}
}

// State returns the current merged view.
func (r *Reconciler) State() event.PositionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mergedLocked(time.Now().UTC())
}

func (r *Reconciler) mergedLocked(asOf time.Time) event.PositionState {
	merged := make(map[string]event.PositionSnapshot, len(r.reported)+len(r.synthetic))
	for symbol, snap := range r.synthetic {
		merged[symbol] = snap
	}
	for symbol, snap := range r.reported {
		merged[symbol] = snap
	}
	return event.PositionState{AsOf: asOf, Symbols: merged}
}

func (r *Reconciler) emit(state event.PositionState) {
	if r.onState != nil {
		r.onState(state)
	}
}
