package hyphae

import (
	"fmt"
	"strings"
)

// SortMode selects the ordering of aggregated search results.
type SortMode string

const (
	// SortRelevance keeps the first-seen order across adapters.
	SortRelevance SortMode = "relevance"

	// SortPriceAsc orders by ascending USDC cents.
	SortPriceAsc SortMode = "price_asc"

	// SortPriceDesc orders by descending USDC cents.
	SortPriceDesc SortMode = "price_desc"

	// SortAvailability orders online before offline, then by ascending latency.
	SortAvailability SortMode = "availability"
)

// Pagination limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ParseSortMode validates a sort mode string. Empty means relevance.
func ParseSortMode(s string) (SortMode, error) {
	switch mode := SortMode(strings.TrimSpace(s)); mode {
	case "":
		return SortRelevance, nil
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortAvailability:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: unknown sort %q", ErrInvalidFilters, s)
	}
}

// SearchFilters are the caller-supplied search parameters.
type SearchFilters struct {
	// Query is free text matched against name, description and tags.
	Query string `json:"q,omitempty"`

	// Providers restricts the search to the named adapters. Empty means all.
	Providers []string `json:"provider,omitempty"`

	// Category is matched case-insensitively.
	Category string `json:"category,omitempty"`

	// MinPrice and MaxPrice bound pricing.amountUsdcCents, inclusive.
	MinPrice *int64 `json:"minPrice,omitempty"`
	MaxPrice *int64 `json:"maxPrice,omitempty"`

	Sort     SortMode `json:"sort,omitempty"`
	Page     int      `json:"page,omitempty"`
	PageSize int      `json:"pageSize,omitempty"`
}

// Validate checks bounds and fills defaults for sort and paging.
func (f *SearchFilters) Validate() error {
	mode, err := ParseSortMode(string(f.Sort))
	if err != nil {
		return err
	}
	f.Sort = mode

	if f.MinPrice != nil && *f.MinPrice < 0 {
		return fmt.Errorf("%w: minPrice must be >= 0", ErrInvalidFilters)
	}
	if f.MaxPrice != nil && *f.MaxPrice < 0 {
		return fmt.Errorf("%w: maxPrice must be >= 0", ErrInvalidFilters)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return fmt.Errorf("%w: minPrice exceeds maxPrice", ErrInvalidFilters)
	}

	if f.Page < 0 || f.PageSize < 0 {
		return fmt.Errorf("%w: page and pageSize must be positive", ErrInvalidFilters)
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.PageSize == 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return nil
}

// WantsProvider reports whether the named adapter is selected.
func (f SearchFilters) WantsProvider(name string) bool {
	if len(f.Providers) == 0 {
		return true
	}
	for _, p := range f.Providers {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// ProviderErrorType classifies a provider failure.
type ProviderErrorType string

const (
	ProviderErrorTimeout ProviderErrorType = "timeout"
	ProviderErrorAdapter ProviderErrorType = "adapter_error"
)

// ProviderError describes one adapter's failure in a search envelope.
type ProviderError struct {
	Provider string            `json:"provider"`
	Type     ProviderErrorType `json:"type"`
	Message  string            `json:"message"`
	Cause    error             `json:"-"`
}

// Error implements the error interface.
func (e ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e ProviderError) Unwrap() error {
	return e.Cause
}

// SearchResult is the aggregate search envelope.
type SearchResult struct {
	Results  []UnifiedAgent  `json:"results"`
	Errors   []ProviderError `json:"errors"`
	Total    int             `json:"total"`
	Page     int             `json:"page,omitempty"`
	PageSize int             `json:"pageSize,omitempty"`
}
