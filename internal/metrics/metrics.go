// Package metrics exposes prometheus instrumentation for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "equity_ticks_total", Help: "Count of equity ticks ingested"},
		[]string{"symbol"},
	)
	OptionQuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "option_quotes_total", Help: "Count of option quotes ingested"},
		[]string{"underlying"},
	)
	NormalizedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "normalized_ticks_total", Help: "Normalized ticks emitted"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Crossover signals emitted"},
		[]string{"action"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted to the broker"},
		[]string{"action", "status"},
	)
	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "position_exits_total", Help: "Positions closed by exit reason"},
		[]string{"reason"},
	)
	IntentsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "intents_rejected_total", Help: "Intents blocked by the single-position rule"},
	)
	MonitorPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "monitor_polls_total", Help: "Option quote polls by outcome"},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		OptionQuotesTotal,
		NormalizedTotal,
		SignalsTotal,
		OrdersTotal,
		ExitsTotal,
		IntentsRejectedTotal,
		MonitorPollsTotal,
	)
}

// Serve starts the metrics endpoint on addr and returns the server handle.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
