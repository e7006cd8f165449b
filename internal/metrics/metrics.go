// Package metrics exposes the trading loop's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TradesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebot_trades_opened_total",
		Help: "Orders placed by the executor by strategy and platform",
	}, []string{"strategy", "platform"})

	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebot_trades_closed_total",
		Help: "Positions closed by the bot by close reason and strategy",
	}, []string{"reason", "strategy"})

	ExecutionRefusals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebot_execution_refusals_total",
		Help: "Trade attempts refused before an order was placed",
	}, []string{"reason"})

	LoopIterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradebot_loop_iterations_total",
		Help: "Completed bot loop iterations",
	})

	LoopErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradebot_loop_errors_total",
		Help: "Bot loop iterations that failed or panicked",
	})

	BrokerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebot_broker_errors_total",
		Help: "Failed broker calls by platform and operation",
	}, []string{"platform", "operation"})

	CombinedUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradebot_combined_usage_percent",
		Help: "Capital in open positions as a percent of balance, per platform",
	}, []string{"platform"})

	OpenPositions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradebot_open_positions",
		Help: "Open trade records by strategy",
	}, []string{"strategy"})

	BotRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradebot_running",
		Help: "1 while the trading loop is running",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradebot_tick_duration_seconds",
		Help:    "Duration of one bot loop iteration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// SetRunning records the loop state as a 0/1 gauge
func SetRunning(running bool) {
	if running {
		BotRunning.Set(1)
		return
	}
	BotRunning.Set(0)
}
