// Package trade converts signals into risk-bounded intents and manages the
// lifecycle of the single open position.
package trade

import (
	"math"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
)

// minTakeProfit floors the take-profit so a short credit can never target a
// non-positive buy-back price.
const minTakeProfit = 0.01

// RiskParams are the configured sizing knobs applied to every signal.
type RiskParams struct {
	StopLossMultiple   float64
	TakeProfitMultiple float64
	MaxPositionSize    int
}

// Generator is a stateless signal-to-intent transform. Suppression lives
// upstream in the signal engine; every signal becomes exactly one intent.
type Generator struct {
	risk RiskParams
}

// NewGenerator builds a Generator with the given risk parameters.
func NewGenerator(risk RiskParams) *Generator {
	return &Generator{risk: risk}
}

// HandleSignal sizes an intent off the signal's reference credit.
func (g *Generator) HandleSignal(signal event.Signal) event.TradeIntent {
	credit := signal.ReferencePrice
	return event.TradeIntent{
		AsOf:         signal.AsOf,
		Action:       signal.Action,
		OptionSymbol: signal.OptionSymbol,
		Quantity:     g.risk.MaxPositionSize,
		LimitPrice:   credit,
		StopLoss:     credit * (1 + g.risk.StopLossMultiple),
		TakeProfit:   math.Max(credit*(1-g.risk.TakeProfitMultiple), minTakeProfit),
	}
}
