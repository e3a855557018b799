package hyphae

import (
	"fmt"
	"time"
)

// TimeoutConfig holds timeout configuration for outbound calls.
type TimeoutConfig struct {
	// AdapterTimeout bounds a single adapter search call inside the registry.
	AdapterTimeout time.Duration

	// ProbeTimeout bounds a single liveness probe.
	ProbeTimeout time.Duration

	// InvokeTimeout bounds a proxied upstream invocation.
	InvokeTimeout time.Duration
}

// DefaultTimeouts provides the gateway defaults.
var DefaultTimeouts = TimeoutConfig{
	AdapterTimeout: 5 * time.Second,
	ProbeTimeout:   3 * time.Second,
	InvokeTimeout:  10 * time.Second,
}

// Validate ensures timeout values are positive.
func (tc TimeoutConfig) Validate() error {
	if tc.AdapterTimeout <= 0 {
		return fmt.Errorf("adapter timeout must be positive, got %v", tc.AdapterTimeout)
	}
	if tc.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %v", tc.ProbeTimeout)
	}
	if tc.InvokeTimeout <= 0 {
		return fmt.Errorf("invoke timeout must be positive, got %v", tc.InvokeTimeout)
	}
	return nil
}
