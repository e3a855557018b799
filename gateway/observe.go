package gateway

import (
	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/metrics"
	"github.com/PeterFile/hyphae-platform/registry"
)

// ObserveAdapter records a registry adapter outcome in metrics. Install it
// with registry.WithObserver.
func ObserveAdapter(o registry.Outcome) {
	metrics.AdapterSearchDuration.WithLabelValues(o.Provider).Observe(o.Elapsed.Seconds())
	if o.Err != nil {
		metrics.AdapterErrors.WithLabelValues(o.Provider, string(o.Err.Type)).Inc()
	}
}

// InvokeLogger returns a callback that logs proxy lifecycle events and times
// completed calls. Pass it to proxy.WithCallbacks for each event type.
func InvokeLogger(logger zerolog.Logger) hyphae.InvokeCallback {
	return func(e hyphae.InvokeEvent) {
		switch e.Type {
		case hyphae.InvokeEventAttempt:
			logger.Debug().
				Str("agent", e.AgentID).
				Str("method", e.Method).
				Str("url", e.URL).
				Bool("paid", e.Paid).
				Msg("invoking upstream")
		case hyphae.InvokeEventSuccess:
			metrics.InvokeDuration.Observe(e.Duration.Seconds())
			logger.Info().
				Str("agent", e.AgentID).
				Int("status", e.StatusCode).
				Bool("paid", e.Paid).
				Dur("duration", e.Duration).
				Msg("upstream answered")
		case hyphae.InvokeEventFailure:
			metrics.InvokeDuration.Observe(e.Duration.Seconds())
			logger.Warn().
				Err(e.Error).
				Str("agent", e.AgentID).
				Str("url", e.URL).
				Dur("duration", e.Duration).
				Msg("upstream call failed")
		}
	}
}
