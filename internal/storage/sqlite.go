// Package storage persists every pipeline event to SQLite so sessions can
// be audited and replayed after the fact.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
)

const schema = `
CREATE TABLE IF NOT EXISTS equity_ticks (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol       TEXT     NOT NULL,
    price        REAL     NOT NULL,
    session_vwap REAL     NOT NULL,
    ma9          REAL     NOT NULL,
    as_of        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS option_quotes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    option_symbol TEXT     NOT NULL,
    strike        REAL     NOT NULL,
    bid           REAL     NOT NULL,
    ask           REAL     NOT NULL,
    expiry        DATETIME NOT NULL,
    as_of         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS normalized_ticks (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    as_of         DATETIME NOT NULL,
    equity_symbol TEXT     NOT NULL,
    equity_price  REAL     NOT NULL,
    session_vwap  REAL     NOT NULL,
    ma9           REAL     NOT NULL,
    option_symbol TEXT,
    option_bid    REAL,
    option_ask    REAL
);

CREATE TABLE IF NOT EXISTS signals (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    action         TEXT     NOT NULL,
    option_symbol  TEXT     NOT NULL,
    rationale      TEXT     NOT NULL,
    as_of          DATETIME NOT NULL,
    cooldown_until DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_intents (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    action        TEXT     NOT NULL,
    option_symbol TEXT     NOT NULL,
    quantity      INTEGER  NOT NULL,
    limit_price   REAL     NOT NULL,
    stop_loss     REAL     NOT NULL,
    take_profit   REAL     NOT NULL,
    as_of         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT     NOT NULL,
    status      TEXT     NOT NULL,
    fill_price  REAL     NOT NULL,
    pnl_contrib REAL     NOT NULL,
    as_of       DATETIME NOT NULL,
    intent_id   INTEGER
);

CREATE TABLE IF NOT EXISTS position_snapshots (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol        TEXT     NOT NULL,
    quantity      INTEGER  NOT NULL,
    average_price REAL     NOT NULL,
    market_value  REAL     NOT NULL,
    as_of         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_ticks_as_of ON equity_ticks(as_of);
CREATE INDEX IF NOT EXISTS idx_signals_as_of      ON signals(as_of);
CREATE INDEX IF NOT EXISTS idx_executions_intent  ON executions(intent_id);
`

// Store is the SQLite-backed event log. SQLite allows a single writer, so
// the pool is capped at one connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens a database at dsn and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InsertEquityTick(ctx context.Context, tick event.EquityTick) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO equity_ticks (symbol, price, session_vwap, ma9, as_of) VALUES (?, ?, ?, ?, ?)`,
		tick.Symbol, tick.Price, tick.SessionVWAP, tick.MA9, tick.AsOf)
	if err != nil {
		return fmt.Errorf("storage: insert equity tick: %w", err)
	}
	return nil
}

func (s *Store) InsertOptionQuote(ctx context.Context, quote event.OptionQuote) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO option_quotes (option_symbol, strike, bid, ask, expiry, as_of) VALUES (?, ?, ?, ?, ?, ?)`,
		quote.OptionSymbol, quote.Strike, quote.Bid, quote.Ask, quote.Expiry, quote.AsOf)
	if err != nil {
		return fmt.Errorf("storage: insert option quote: %w", err)
	}
	return nil
}

func (s *Store) InsertNormalizedTick(ctx context.Context, tick event.NormalizedTick) error {
	var symbol, bid, ask any
	if tick.Option != nil {
		symbol = tick.Option.OptionSymbol
		bid = tick.Option.Bid
		ask = tick.Option.Ask
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO normalized_ticks (as_of, equity_symbol, equity_price, session_vwap, ma9, option_symbol, option_bid, option_ask)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tick.AsOf, tick.Equity.Symbol, tick.Equity.Price, tick.Equity.SessionVWAP, tick.Equity.MA9, symbol, bid, ask)
	if err != nil {
		return fmt.Errorf("storage: insert normalized tick: %w", err)
	}
	return nil
}

func (s *Store) InsertSignal(ctx context.Context, sig event.Signal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (action, option_symbol, rationale, as_of, cooldown_until) VALUES (?, ?, ?, ?, ?)`,
		string(sig.Action), sig.OptionSymbol, sig.Rationale, sig.AsOf, sig.CooldownUntil)
	if err != nil {
		return fmt.Errorf("storage: insert signal: %w", err)
	}
	return nil
}

// InsertTradeIntent stores an intent and returns its row id so executions
// can be linked back to it.
func (s *Store) InsertTradeIntent(ctx context.Context, intent event.TradeIntent) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trade_intents (action, option_symbol, quantity, limit_price, stop_loss, take_profit, as_of)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(intent.Action), intent.OptionSymbol, intent.Quantity, intent.LimitPrice, intent.StopLoss, intent.TakeProfit, intent.AsOf)
	if err != nil {
		return 0, fmt.Errorf("storage: insert trade intent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: trade intent id: %w", err)
	}
	return id, nil
}

// InsertExecution stores an execution. intentID may be zero when the
// originating intent was never persisted.
func (s *Store) InsertExecution(ctx context.Context, exec event.TradeExecution, intentID int64) error {
	var linked any
	if intentID > 0 {
		linked = intentID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (order_id, status, fill_price, pnl_contrib, as_of, intent_id) VALUES (?, ?, ?, ?, ?, ?)`,
		exec.OrderID, exec.Status, exec.FillPrice, exec.PnLContrib, exec.AsOf, linked)
	if err != nil {
		return fmt.Errorf("storage: insert execution: %w", err)
	}
	return nil
}

func (s *Store) InsertPositionSnapshot(ctx context.Context, snap event.PositionSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO position_snapshots (symbol, quantity, average_price, market_value, as_of) VALUES (?, ?, ?, ?, ?)`,
		snap.Symbol, snap.Quantity, snap.AveragePrice, snap.MarketValue, snap.AsOf)
	if err != nil {
		return fmt.Errorf("storage: insert position snapshot: %w", err)
	}
	return nil
}

// SignalCount reports how many signals were logged in [from, to].
func (s *Store) SignalCount(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signals WHERE as_of BETWEEN ? AND ?`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count signals: %w", err)
	}
	return n, nil
}

// ExecutionsForIntent returns the executions linked to a stored intent.
func (s *Store) ExecutionsForIntent(ctx context.Context, intentID int64) ([]event.TradeExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, status, fill_price, pnl_contrib, as_of FROM executions WHERE intent_id = ? ORDER BY id`, intentID)
	if err != nil {
		return nil, fmt.Errorf("storage: query executions: %w", err)
	}
	defer rows.Close()

	var out []event.TradeExecution
	for rows.Next() {
		var exec event.TradeExecution
		if err := rows.Scan(&exec.OrderID, &exec.Status, &exec.FillPrice, &exec.PnLContrib, &exec.AsOf); err != nil {
			return nil, fmt.Errorf("storage: scan execution: %w", err)
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

// RecentNormalizedTicks returns up to limit normalized ticks, oldest first,
// for session replay.
func (s *Store) RecentNormalizedTicks(ctx context.Context, limit int) ([]event.NormalizedTick, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT as_of, equity_symbol, equity_price, session_vwap, ma9, option_symbol, option_bid, option_ask
		 FROM normalized_ticks ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query normalized ticks: %w", err)
	}
	defer rows.Close()

	var out []event.NormalizedTick
	for rows.Next() {
		var tick event.NormalizedTick
		var symbol sql.NullString
		var bid, ask sql.NullFloat64
		if err := rows.Scan(&tick.AsOf, &tick.Equity.Symbol, &tick.Equity.Price,
			&tick.Equity.SessionVWAP, &tick.Equity.MA9, &symbol, &bid, &ask); err != nil {
			return nil, fmt.Errorf("storage: scan normalized tick: %w", err)
		}
		tick.Equity.AsOf = tick.AsOf
		if symbol.Valid {
			tick.Option = &event.OptionQuote{
				OptionSymbol: symbol.String,
				Bid:          bid.Float64,
				Ask:          ask.Float64,
				AsOf:         tick.AsOf,
			}
		}
		out = append(out, tick)
	}
	return out, rows.Err()
}
