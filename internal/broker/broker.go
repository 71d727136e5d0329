// Package broker handles order routing and account queries against trading
// venues.
package broker

import (
	"context"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
)

// Execution statuses reported on TradeExecution.Status.
const (
	StatusFilled    = "filled"
	StatusSubmitted = "submitted"
	StatusFailed    = "failed"
)

// Broker is the capability surface the core consumes from a trading venue.
// SubmitOrder reports order rejections as executions with StatusFailed and a
// zero fill price; an error return means the submission outcome is unknown
// (transport failure) and is surfaced to the caller.
type Broker interface {
	FetchPositions(ctx context.Context) ([]event.PositionSnapshot, error)
	SubmitOrder(ctx context.Context, intent event.TradeIntent) (event.TradeExecution, error)
	FetchOptionQuote(ctx context.Context, optionSymbol string) (*event.OptionQuote, error)
	FetchEquityQuote(ctx context.Context, symbol string) (*event.EquityTick, error)
	Close() error
}
