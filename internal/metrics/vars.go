package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QuoteSourceLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_quote_source_fetch_seconds",
		Help:    "Time to fetch a liquidity snapshot for the selected pair",
		Buckets: prometheus.DefBuckets,
	})

	QuoteSourceErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swap_quote_source_errors_total",
		Help: "Number of failed liquidity snapshot fetches",
	})

	AllowanceQueries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swap_allowance_queries_total",
		Help: "Number of on-chain allowance reads",
	})

	HeadTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swap_head_ticks_total",
		Help: "Chain head changes observed by the trade adapter",
	})

	Recomputes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swap_readiness_recomputes_total",
		Help: "Readiness reconciliation passes",
	})

	TradeReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swap_trade_ready",
		Help: "1 when the current trade is ready to submit",
	})

	FeedPublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swap_feed_publish_errors_total",
		Help: "Failed state feed publishes",
	})
)

func init() {
	prometheus.MustRegister(
		QuoteSourceLatency,
		QuoteSourceErrors,
		AllowanceQueries,
		HeadTicks,
		Recomputes,
		TradeReady,
		FeedPublishErrors,
	)
}
