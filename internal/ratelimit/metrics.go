package ratelimit

import "github.com/prometheus/client_golang/prometheus"

var (
	// deniedTotal counts quota checks that came back disallowed.
	deniedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_denied_total",
		Help: "Total number of requests denied by the fixed-window rate limiter.",
	})

	// fallbackTotal counts checks that fell back to process-local counters
	// because the shared store errored. A non-zero rate here means the
	// limiter is running in degraded, per-instance mode.
	fallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_fallback_total",
		Help: "Total number of rate-limit checks served by the in-process fallback store.",
	})
)

func init() {
	prometheus.MustRegister(deniedTotal, fallbackTotal)
}
