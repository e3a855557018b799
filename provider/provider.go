// Package provider defines the contract every upstream marketplace adapter
// implements, plus the HTTP plumbing the adapters share.
package provider

import (
	"context"
	"strings"

	hyphae "github.com/PeterFile/hyphae-platform"
)

// Adapter normalises one upstream marketplace into UnifiedAgent records.
//
// Implementations must be safe for concurrent use. Search and GetByID return
// an error only when the upstream failed and the adapter has no fallback;
// expected misses are (nil, nil) for GetByID and an empty slice for Search.
type Adapter interface {
	// Name is the provider tag used as the agent id prefix.
	Name() string

	// Search returns agents matching query. filters is informational; the
	// registry applies category, price and sort itself.
	Search(ctx context.Context, query string, filters hyphae.SearchFilters) ([]hyphae.UnifiedAgent, error)

	// GetByID returns the agent with the given upstream id, or nil if absent.
	GetByID(ctx context.Context, originalID string) (*hyphae.UnifiedAgent, error)

	// CheckAvailability probes an endpoint URL.
	CheckAvailability(ctx context.Context, rawURL string) hyphae.AvailabilityResult
}

// MatchesQuery reports whether every whitespace-separated term of query
// occurs, case-insensitively, in at least one of fields. An empty query
// matches everything.
func MatchesQuery(query string, fields ...string) bool {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return true
	}
	haystack := strings.ToLower(strings.Join(fields, "\n"))
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// MatchesAgent applies MatchesQuery to an agent's searchable text.
func MatchesAgent(query string, a hyphae.UnifiedAgent) bool {
	fields := make([]string, 0, 4+len(a.Tags))
	fields = append(fields, a.Name, a.Description, a.Category, a.Endpoint.URL)
	fields = append(fields, a.Tags...)
	return MatchesQuery(query, fields...)
}

// FilterByQuery returns the agents matching query, preserving order.
func FilterByQuery(query string, agents []hyphae.UnifiedAgent) []hyphae.UnifiedAgent {
	out := make([]hyphae.UnifiedAgent, 0, len(agents))
	for _, a := range agents {
		if MatchesAgent(query, a) {
			out = append(out, a)
		}
	}
	return out
}

// CloneAgents copies agents so callers may mutate the result without
// affecting a cached slice.
func CloneAgents(agents []hyphae.UnifiedAgent) []hyphae.UnifiedAgent {
	out := make([]hyphae.UnifiedAgent, len(agents))
	for i, a := range agents {
		a.Tags = append([]string{}, a.Tags...)
		if a.Metadata != nil {
			md := make(map[string]any, len(a.Metadata))
			for k, v := range a.Metadata {
				md[k] = v
			}
			a.Metadata = md
		}
		out[i] = a
	}
	return out
}
