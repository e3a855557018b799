// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyphae_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hyphae_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Aggregation metrics
	AdapterSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hyphae_adapter_search_duration_seconds",
			Help:    "Adapter search call duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"provider"},
	)

	AdapterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyphae_adapter_errors_total",
			Help: "Adapter search failures",
		},
		[]string{"provider", "type"}, // "timeout" or "adapter_error"
	)

	SearchCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyphae_search_cache_total",
			Help: "Search page cache lookups",
		},
		[]string{"result"}, // "hit" or "miss"
	)

	ProbeResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyphae_probe_results_total",
			Help: "Availability probe outcomes",
		},
		[]string{"online"},
	)

	// Invocation metrics
	InvokeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyphae_invoke_total",
			Help: "Proxied invocations by outcome",
		},
		[]string{"outcome", "paid"}, // outcome: 2xx..5xx, 402, or an error code
	)

	InvokeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hyphae_invoke_duration_seconds",
			Help:    "Upstream invocation duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	BlockedTargets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyphae_blocked_targets_total",
			Help: "Outbound targets rejected by the SSRF guard",
		},
		[]string{"operation"}, // "invoke" or "probe"
	)
)

// StatusClass buckets an upstream status for the outcome label. 402 keeps
// its own value.
func StatusClass(status int) string {
	switch {
	case status == 402:
		return "402"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
