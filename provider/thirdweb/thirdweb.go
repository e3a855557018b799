// Package thirdweb adapts the thirdweb x402 service search API.
//
// The adapter is strict: upstream failures are returned to the registry and
// reported as adapter errors, with no fallback data.
package thirdweb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/pricing"
	"github.com/PeterFile/hyphae-platform/probe"
	"github.com/PeterFile/hyphae-platform/provider"
	"github.com/PeterFile/hyphae-platform/x402"
)

// Name is the provider tag.
const Name = "thirdweb"

// Defaults.
const (
	DefaultBaseURL = "https://api.thirdweb.com"
	DefaultLimit   = 50
	apiKeyHeader   = "x-secret-key"
)

// Adapter queries the thirdweb search API.
type Adapter struct {
	client *provider.Client
	prober *probe.Prober
	logger zerolog.Logger
	limit  int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL sets the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		if baseURL != "" {
			a.client.BaseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.client.HTTP = client
	}
}

// WithAPIKey sets the secret key sent in x-secret-key.
func WithAPIKey(key string) Option {
	return func(a *Adapter) {
		a.client.APIKey = key
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

// WithLimit sets the maximum number of results requested per search.
func WithLimit(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.limit = n
		}
	}
}

// New creates a thirdweb adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		client: &provider.Client{BaseURL: DefaultBaseURL, APIKeyHeader: apiKeyHeader},
		prober: probe.New(),
		logger: zerolog.Nop(),
		limit:  DefaultLimit,
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
func (a *Adapter) Search(ctx context.Context, query string, filters hyphae.SearchFilters) ([]hyphae.UnifiedAgent, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	if filters.Category != "" {
		q.Set("category", filters.Category)
	}
	q.Set("limit", strconv.Itoa(a.limit))

	var resp searchResponse
	if err := a.client.GetJSON(ctx, "/v1/payments/x402/discovery/search", q, &resp); err != nil {
		return nil, fmt.Errorf("thirdweb search: %w", err)
	}

	agents := make([]hyphae.UnifiedAgent, 0, len(resp.Data))
	for _, svc := range resp.Data {
		agent, err := toAgent(svc)
		if err != nil {
			a.logger.Debug().Err(err).Str("service", svc.ID).Msg("skipping thirdweb service")
			continue
		}
		agents = append(agents, *agent)
	}
	return agents, nil
}

// GetByID implements provider.Adapter.
func (a *Adapter) GetByID(ctx context.Context, originalID string) (*hyphae.UnifiedAgent, error) {
	var resp serviceResponse
	err := a.client.GetJSON(ctx, "/v1/payments/x402/discovery/services/"+url.PathEscape(originalID), nil, &resp)
	if errors.Is(err, provider.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("thirdweb get %s: %w", originalID, err)
	}
	return toAgent(resp.Data)
}

// CheckAvailability implements provider.Adapter.
func (a *Adapter) CheckAvailability(ctx context.Context, rawURL string) hyphae.AvailabilityResult {
	return a.prober.CheckEndpoint(ctx, rawURL, 0)
}

type searchResponse struct {
	Data []service `json:"data"`
}

type serviceResponse struct {
	Data service `json:"data"`
}

type service struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	URL         string   `json:"url"`
	Method      string   `json:"method"`
	Price       struct {
		Amount  string `json:"amount"`
		Asset   string `json:"asset"`
		Network string `json:"network"`
	} `json:"price"`
	Owner string `json:"owner,omitempty"`
}

func toAgent(svc service) (*hyphae.UnifiedAgent, error) {
	if svc.URL == "" {
		return nil, fmt.Errorf("service %q has no url", svc.ID)
	}
	agent, err := hyphae.NewUnifiedAgent(Name, svc.ID, hyphae.Endpoint{URL: svc.URL, Method: svc.Method})
	if err != nil {
		return nil, err
	}
	agent.Name = svc.Name
	agent.Description = svc.Description
	agent.Category = svc.Category
	agent.Tags = append(agent.Tags, svc.Tags...)

	network := x402.CanonicalNetwork(svc.Price.Network)
	asset := x402.AssetSymbol(svc.Price.Asset)
	price := pricing.Normalize(svc.Price.Amount, asset, network)
	agent.Pricing = hyphae.Pricing{
		AmountUSDCCents: price.Cents,
		RawAmount:       svc.Price.Amount,
		RawAsset:        asset,
		Network:         network,
		Unavailable:     price.Unavailable,
	}
	if svc.Owner != "" {
		agent.SetMetadata("owner", svc.Owner)
	}
	return agent, nil
}
