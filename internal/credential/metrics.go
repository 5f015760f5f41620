package credential

import "github.com/prometheus/client_golang/prometheus"

var (
	// refreshTotal counts refresh-grant attempts by outcome.
	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlink_token_refresh_total",
			Help: "Total refresh-token grant attempts by outcome",
		},
		[]string{"outcome"},
	)

	// dispatchTotal counts dispatched API calls by final outcome.
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlink_dispatch_total",
			Help: "Total dispatched API calls by final outcome",
		},
		[]string{"outcome"},
	)

	// dispatchRetries counts calls that were retried after a reactive refresh.
	dispatchRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xlink_dispatch_retries_total",
			Help: "Total dispatched API calls retried after a token refresh",
		},
	)
)

func init() {
	prometheus.MustRegister(refreshTotal, dispatchTotal, dispatchRetries)
}
