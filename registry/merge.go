package registry

import (
	"cmp"
	"slices"
	"strings"

	hyphae "github.com/PeterFile/hyphae-platform"
)

// Dedupe concatenates batches and keeps the first agent seen for each id.
// The output order is the relevance rank.
func Dedupe(batches ...[]hyphae.UnifiedAgent) []hyphae.UnifiedAgent {
	seen := make(map[string]struct{})
	out := make([]hyphae.UnifiedAgent, 0)
	for _, batch := range batches {
		for _, a := range batch {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// Filter applies the category and price bounds of filters. Agents whose
// price is unavailable are dropped whenever a price bound is set.
func Filter(agents []hyphae.UnifiedAgent, filters hyphae.SearchFilters) []hyphae.UnifiedAgent {
	priced := filters.MinPrice != nil || filters.MaxPrice != nil
	if filters.Category == "" && !priced {
		return agents
	}

	out := make([]hyphae.UnifiedAgent, 0, len(agents))
	for _, a := range agents {
		if filters.Category != "" && !strings.EqualFold(a.Category, filters.Category) {
			continue
		}
		if priced {
			if a.Pricing.Unavailable {
				continue
			}
			cents := a.Pricing.AmountUSDCCents
			if filters.MinPrice != nil && cents < *filters.MinPrice {
				continue
			}
			if filters.MaxPrice != nil && cents > *filters.MaxPrice {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// Sort returns agents ordered by mode. The input order is taken as the
// relevance rank and breaks every tie.
func Sort(agents []hyphae.UnifiedAgent, mode hyphae.SortMode) []hyphae.UnifiedAgent {
	out := slices.Clone(agents)
	switch mode {
	case hyphae.SortPriceAsc:
		slices.SortStableFunc(out, func(a, b hyphae.UnifiedAgent) int {
			return cmp.Compare(a.Pricing.AmountUSDCCents, b.Pricing.AmountUSDCCents)
		})
	case hyphae.SortPriceDesc:
		slices.SortStableFunc(out, func(a, b hyphae.UnifiedAgent) int {
			return cmp.Compare(b.Pricing.AmountUSDCCents, a.Pricing.AmountUSDCCents)
		})
	case hyphae.SortAvailability:
		slices.SortStableFunc(out, compareAvailability)
	}
	return out
}

// compareAvailability orders online before offline, then by ascending
// latency with a missing latency last.
func compareAvailability(a, b hyphae.UnifiedAgent) int {
	if a.Availability.IsOnline != b.Availability.IsOnline {
		if a.Availability.IsOnline {
			return -1
		}
		return 1
	}
	la, lb := a.Availability.LatencyMs, b.Availability.LatencyMs
	switch {
	case la == nil && lb == nil:
		return 0
	case la == nil:
		return 1
	case lb == nil:
		return -1
	}
	return cmp.Compare(*la, *lb)
}

// Paginate returns the 1-based page of size pageSize. Out-of-range pages
// are empty; non-positive arguments use page 1 and the default size.
func Paginate(agents []hyphae.UnifiedAgent, page, pageSize int) []hyphae.UnifiedAgent {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = hyphae.DefaultPageSize
	}
	if pageSize > hyphae.MaxPageSize {
		pageSize = hyphae.MaxPageSize
	}
	if len(agents) == 0 || page-1 > (len(agents)-1)/pageSize {
		return []hyphae.UnifiedAgent{}
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(agents))
	return agents[start:end]
}
