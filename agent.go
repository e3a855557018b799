// Package hyphae defines the shared data model of the agent gateway.
//
// The gateway aggregates service listings ("agents") from several upstream
// marketplaces, normalises them into UnifiedAgent records, probes their
// liveness and proxies invocations to them on the caller's behalf,
// transporting pre-signed x402 payment headers when the upstream demands
// payment.
//
// Import path: github.com/PeterFile/hyphae-platform
package hyphae

import (
	"fmt"
	"strings"
	"time"
)

// HTTP methods an agent endpoint may declare.
const (
	MethodGET  = "GET"
	MethodPOST = "POST"
)

// Endpoint is the upstream URL an agent is invoked at.
type Endpoint struct {
	// URL is the absolute upstream URL.
	URL string `json:"url"`

	// Method is either GET or POST.
	Method string `json:"method"`
}

// Pricing describes the cost of a single invocation.
type Pricing struct {
	// AmountUSDCCents is the normalised price in USDC cents. Zero when unavailable.
	AmountUSDCCents int64 `json:"amountUsdcCents"`

	// RawAmount is the upstream amount in atomic units, as a decimal string.
	RawAmount string `json:"rawAmount"`

	// RawAsset is the upstream asset symbol or address.
	RawAsset string `json:"rawAsset"`

	// Network is the settlement network the upstream advertises.
	Network string `json:"network"`

	// Unavailable is set when the raw amount could not be normalised.
	Unavailable bool `json:"unavailable,omitempty"`
}

// AvailabilityResult is the outcome of a liveness probe.
type AvailabilityResult struct {
	// IsOnline is true when the endpoint returned any HTTP response.
	IsOnline bool `json:"isOnline"`

	// LastChecked is when the probe finished.
	LastChecked time.Time `json:"lastChecked"`

	// LatencyMs is the wall-clock probe latency, set when a response was received.
	LatencyMs *int64 `json:"latencyMs,omitempty"`

	// StatusCode is the HTTP status received, nil on network error or timeout.
	StatusCode *int `json:"statusCode"`
}

// UnifiedAgent is a provider-normalised service listing.
// Construct it with NewUnifiedAgent so that ID always equals "provider:originalId".
type UnifiedAgent struct {
	ID           string             `json:"id"`
	Provider     string             `json:"provider"`
	OriginalID   string             `json:"originalId"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Category     string             `json:"category"`
	Tags         []string           `json:"tags"`
	Endpoint     Endpoint           `json:"endpoint"`
	Pricing      Pricing            `json:"pricing"`
	Availability AvailabilityResult `json:"availability"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
}

// NewUnifiedAgent creates an agent whose ID is derived from provider and originalID.
// Returns ErrInvalidAgent if either part is empty or the method is not GET/POST.
func NewUnifiedAgent(provider, originalID string, endpoint Endpoint) (*UnifiedAgent, error) {
	if provider == "" || strings.Contains(provider, ":") {
		return nil, fmt.Errorf("%w: invalid provider %q", ErrInvalidAgent, provider)
	}
	if originalID == "" {
		return nil, fmt.Errorf("%w: empty original id", ErrInvalidAgent)
	}

	method := strings.ToUpper(strings.TrimSpace(endpoint.Method))
	if method == "" {
		method = MethodGET
	}
	if method != MethodGET && method != MethodPOST {
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidAgent, endpoint.Method)
	}
	endpoint.Method = method

	return &UnifiedAgent{
		ID:         AgentID(provider, originalID),
		Provider:   provider,
		OriginalID: originalID,
		Endpoint:   endpoint,
		Tags:       []string{},
	}, nil
}

// AgentID joins a provider tag and an upstream id.
func AgentID(provider, originalID string) string {
	return provider + ":" + originalID
}

// SplitAgentID splits an agent id into provider and original id.
func SplitAgentID(id string) (provider, originalID string, err error) {
	provider, originalID, ok := strings.Cut(id, ":")
	if !ok || provider == "" || originalID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAgentID, id)
	}
	return provider, originalID, nil
}

// SetMetadata records a metadata value, allocating the map on first use.
func (a *UnifiedAgent) SetMetadata(key string, value any) {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = value
}

// MetadataSourceKey and MetadataSourceMockFallback tag agents served from
// static sample data after the upstream failed.
const (
	MetadataSourceKey          = "source"
	MetadataSourceMockFallback = "mock-fallback"
)
