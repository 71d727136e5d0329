package trade

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MAKaminski/alpha-gen-trading/internal/event"
	"github.com/MAKaminski/alpha-gen-trading/internal/metrics"
)

// QuoteFetcher is the slice of the broker surface the monitor needs.
type QuoteFetcher interface {
	FetchOptionQuote(ctx context.Context, optionSymbol string) (*event.OptionQuote, error)
}

// DefaultPollInterval is the per-symbol quote refresh cadence.
const DefaultPollInterval = time.Second

type pollTask struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool
}

// Monitor continuously refreshes quotes for open option positions, one
// cancellable polling goroutine per tracked symbol. Transient fetch errors
// are logged and retried at the polling cadence, never escalated.
type Monitor struct {
	fetcher  QuoteFetcher
	onQuote  func(event.OptionQuote)
	interval time.Duration
	log      zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*pollTask
}

// NewMonitor builds a Monitor forwarding fetched quotes into onQuote.
func NewMonitor(fetcher QuoteFetcher, onQuote func(event.OptionQuote), interval time.Duration, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		fetcher:  fetcher,
		onQuote:  onQuote,
		interval: interval,
		log:      log,
		tasks:    make(map[string]*pollTask),
	}
}

// Track starts polling a symbol. Tracking an already-tracked symbol is a
// no-op. If the symbol's previous poller is still draining after an
// untrack, Track joins it first so two pollers never run concurrently.
// Must not be called from the quote callback.
func (m *Monitor) Track(symbol string) {
	for {
		m.mu.Lock()
		if task, ok := m.tasks[symbol]; ok {
			if !task.stopping {
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
			<-task.done
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		task := &pollTask{cancel: cancel, done: make(chan struct{})}
		m.tasks[symbol] = task
		m.mu.Unlock()

		m.log.Info().Str("symbol", symbol).Msg("option monitor tracking")
		go m.poll(ctx, symbol, task)
		return
	}
}

// Untrack cancels the symbol's poller. The poller unregisters itself as it
// exits, so Untrack never waits and is safe to call from the quote
// callback itself; exit-driven closes run on the poll goroutine and a
// joining Untrack would deadlock on its own caller.
func (m *Monitor) Untrack(symbol string) {
	m.mu.Lock()
	task, ok := m.tasks[symbol]
	if !ok || task.stopping {
		m.mu.Unlock()
		return
	}
	task.stopping = true
	m.mu.Unlock()

	m.log.Info().Str("symbol", symbol).Msg("option monitor untracking")
	task.cancel()
}

// Shutdown cancels every poller and waits for all of them to exit. Must
// not be called from the quote callback.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	tasks := make([]*pollTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		task.stopping = true
		tasks = append(tasks, task)
	}
	m.tasks = make(map[string]*pollTask)
	m.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
	for _, task := range tasks {
		<-task.done
	}
}

// Tracking reports whether a live poller exists for the symbol.
func (m *Monitor) Tracking(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[symbol]
	return ok && !task.stopping
}

func (m *Monitor) poll(ctx context.Context, symbol string, task *pollTask) {
	defer func() {
		m.mu.Lock()
		if current, ok := m.tasks[symbol]; ok && current == task {
			delete(m.tasks, symbol)
		}
		m.mu.Unlock()
		close(task.done)
	}()
	for {
		quote, err := m.fetcher.FetchOptionQuote(ctx, symbol)
		switch {
		case ctx.Err() != nil:
			m.log.Debug().Str("symbol", symbol).Msg("option monitor poller cancelled")
			return
		case err != nil:
			metrics.MonitorPollsTotal.WithLabelValues("error").Inc()
			m.log.Warn().Err(err).Str("symbol", symbol).Msg("option monitor fetch failed")
		case quote != nil:
			metrics.MonitorPollsTotal.WithLabelValues("quote").Inc()
			m.onQuote(*quote)
		default:
			metrics.MonitorPollsTotal.WithLabelValues("empty").Inc()
		}

		// Errors do not shorten the interval.
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
	}
}
