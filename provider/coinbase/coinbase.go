// Package coinbase adapts the x402 Bazaar discovery service.
//
// Bazaar has no search endpoint; the adapter fetches the discovery list,
// keeps it in a TTL cache and filters it locally.
package coinbase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/cache"
	"github.com/PeterFile/hyphae-platform/pricing"
	"github.com/PeterFile/hyphae-platform/probe"
	"github.com/PeterFile/hyphae-platform/provider"
	"github.com/PeterFile/hyphae-platform/x402"
)

// Name is the provider tag.
const Name = "coinbase"

// Defaults.
const (
	DefaultBaseURL  = "https://api.cdp.coinbase.com/platform/v2/x402"
	DefaultPageSize = 100
	DefaultMaxPages = 5
	DefaultCacheTTL = 5 * time.Minute
)

const listCacheKey = "resources"

// Adapter lists x402-protected resources registered with Bazaar.
type Adapter struct {
	client   *provider.Client
	list     *cache.TTL[string, []hyphae.UnifiedAgent]
	prober   *probe.Prober
	logger   zerolog.Logger
	pageSize int
	maxPages int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL sets the discovery service base URL.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		if baseURL != "" {
			a.client.BaseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client used for discovery calls.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.client.HTTP = client
	}
}

// WithAPIKey sends a bearer token on discovery calls.
func WithAPIKey(key string) Option {
	return func(a *Adapter) {
		if key != "" {
			a.client.APIKey = "Bearer " + key
			a.client.APIKeyHeader = "Authorization"
		}
	}
}

// WithCache replaces the discovery list cache.
func WithCache(c *cache.TTL[string, []hyphae.UnifiedAgent]) Option {
	return func(a *Adapter) {
		if c != nil {
			a.list = c
		}
	}
}

// WithProber sets the prober used by CheckAvailability.
func WithProber(p *probe.Prober) Option {
	return func(a *Adapter) {
		if p != nil {
			a.prober = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithPaging bounds how much of the discovery list is fetched.
func WithPaging(pageSize, maxPages int) Option {
	return func(a *Adapter) {
		if pageSize > 0 {
			a.pageSize = pageSize
		}
		if maxPages > 0 {
			a.maxPages = maxPages
		}
	}
}

// New creates a Bazaar adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		client:   &provider.Client{BaseURL: DefaultBaseURL},
		list:     cache.NewTTL[string, []hyphae.UnifiedAgent](1, DefaultCacheTTL),
		prober:   probe.New(),
		logger:   zerolog.Nop(),
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ provider.Adapter = (*Adapter)(nil)

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return Name }

// Search implements provider.Adapter.
func (a *Adapter) Search(ctx context.Context, query string, _ hyphae.SearchFilters) ([]hyphae.UnifiedAgent, error) {
	agents, err := a.resources(ctx)
	if err != nil {
		return nil, err
	}
	return provider.FilterByQuery(query, agents), nil
}

// GetByID implements provider.Adapter.
func (a *Adapter) GetByID(ctx context.Context, originalID string) (*hyphae.UnifiedAgent, error) {
	agents, err := a.resources(ctx)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		if agents[i].OriginalID == originalID {
			return &agents[i], nil
		}
	}
	return nil, nil
}

// CheckAvailability implements provider.Adapter.
func (a *Adapter) CheckAvailability(ctx context.Context, rawURL string) hyphae.AvailabilityResult {
	return a.prober.CheckEndpoint(ctx, rawURL, 0)
}

// resources returns a private copy of the cached discovery list, fetching it
// on a miss.
func (a *Adapter) resources(ctx context.Context) ([]hyphae.UnifiedAgent, error) {
	if agents, ok := a.list.Get(listCacheKey); ok {
		return provider.CloneAgents(agents), nil
	}

	var agents []hyphae.UnifiedAgent
	for page := 0; page < a.maxPages; page++ {
		q := url.Values{}
		q.Set("type", "http")
		q.Set("limit", strconv.Itoa(a.pageSize))
		q.Set("offset", strconv.Itoa(page*a.pageSize))

		var resp discoveryListResponse
		if err := a.client.GetJSON(ctx, "/discovery/resources", q, &resp); err != nil {
			if errors.Is(err, provider.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("bazaar discovery: %w", err)
		}

		for _, item := range resp.Items {
			agent, err := toAgent(item)
			if err != nil {
				a.logger.Debug().Err(err).Str("resource", item.Resource).Msg("skipping discovery item")
				continue
			}
			agents = append(agents, *agent)
		}

		fetched := resp.Pagination.Offset + len(resp.Items)
		if len(resp.Items) < a.pageSize || (resp.Pagination.Total > 0 && fetched >= resp.Pagination.Total) {
			break
		}
	}

	a.list.Set(listCacheKey, agents)
	return provider.CloneAgents(agents), nil
}

// AgentID returns the stable upstream id for a resource URL.
func AgentID(resource string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(resource)).String()
}

func toAgent(item discoveryResource) (*hyphae.UnifiedAgent, error) {
	if item.Resource == "" {
		return nil, fmt.Errorf("empty resource")
	}
	accept, ok := pickAccept(item.Accepts)
	method := hyphae.MethodGET
	if ok {
		if m := accept.method(); m != "" {
			method = m
		}
	}

	agent, err := hyphae.NewUnifiedAgent(Name, AgentID(item.Resource), hyphae.Endpoint{
		URL:    item.Resource,
		Method: method,
	})
	if err != nil {
		return nil, err
	}

	agent.Name = resourceName(item)
	agent.Description = accept.Description
	if md := item.Metadata; md != nil {
		if md.Description != "" {
			agent.Description = md.Description
		}
		agent.Category = md.Category
		if len(md.Tags) > 0 {
			agent.Tags = append(agent.Tags, md.Tags...)
		}
		if md.Provider != "" {
			agent.SetMetadata("publisher", md.Provider)
		}
	}
	agent.SetMetadata("resource", item.Resource)
	agent.SetMetadata("x402Version", item.X402Version)
	if item.LastUpdated != "" {
		agent.SetMetadata("lastUpdated", item.LastUpdated)
	}

	if ok {
		network := x402.CanonicalNetwork(accept.Network)
		amount := accept.amount()
		asset := x402.AssetSymbol(accept.Asset)
		price := pricing.Normalize(amount, asset, network)
		agent.Pricing = hyphae.Pricing{
			AmountUSDCCents: price.Cents,
			RawAmount:       amount,
			RawAsset:        asset,
			Network:         network,
			Unavailable:     price.Unavailable,
		}
		if accept.PayTo != "" {
			agent.SetMetadata("payTo", accept.PayTo)
		}
	} else {
		agent.Pricing = hyphae.Pricing{Unavailable: true}
	}

	return agent, nil
}

// pickAccept prefers an "exact" entry on a supported network, then any
// "exact" entry, then the first entry.
func pickAccept(accepts []acceptEntry) (acceptEntry, bool) {
	if len(accepts) == 0 {
		return acceptEntry{}, false
	}
	for _, a := range accepts {
		if a.Scheme == x402.SchemeExact && x402.IsSupportedNetwork(x402.CanonicalNetwork(a.Network)) {
			return a, true
		}
	}
	for _, a := range accepts {
		if a.Scheme == x402.SchemeExact {
			return a, true
		}
	}
	return accepts[0], true
}

func resourceName(item discoveryResource) string {
	if item.Metadata != nil && item.Metadata.Name != "" {
		return item.Metadata.Name
	}
	u, err := url.Parse(item.Resource)
	if err != nil || u.Host == "" {
		return item.Resource
	}
	if path := strings.Trim(u.Path, "/"); path != "" {
		return u.Host + "/" + path
	}
	return u.Host
}
