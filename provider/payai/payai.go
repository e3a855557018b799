// Package payai adapts the PayAI service marketplace.
//
// The adapter is best-effort: a failed upstream call is retried once, after
// which static sample listings tagged metadata.source="mock-fallback" are
// served so the caller can render a degraded-mode indicator.
package payai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/pricing"
	"github.com/PeterFile/hyphae-platform/probe"
	"github.com/PeterFile/hyphae-platform/provider"
	"github.com/PeterFile/hyphae-platform/x402"
)

// Name is the provider tag.
const Name = "payai"

// Defaults.
const (
	DefaultBaseURL    = "https://api.payai.network"
	DefaultRetryDelay = 200 * time.Millisecond
)

// Solana network names used by PayAI listings.
const (
	NetworkSolana       = "solana"
	NetworkSolanaDevnet = "solana-devnet"
)

// Adapter queries PayAI with a mock fallback.
type Adapter struct {
	client   *provider.Client
	prober   *probe.Prober
	logger   zerolog.Logger
	samples  []hyphae.UnifiedAgent
	fallback bool
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

// WithRetryDelay sets the delay before the single retry.
func WithRetryDelay(d time.Duration) Option {
	return func(a *Adapter) {
		a.client.RetryDelay = d
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

// WithSamples replaces the fallback listings.
func WithSamples(samples []hyphae.UnifiedAgent) Option {
	return func(a *Adapter) {
		a.samples = samples
	}
}

// WithoutFallback makes upstream failures surface as errors.
func WithoutFallback() Option {
	return func(a *Adapter) {
		a.fallback = false
	}
}

// New creates a PayAI adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		client: &provider.Client{
			BaseURL:    DefaultBaseURL,
			MaxRetries: 1,
			RetryDelay: DefaultRetryDelay,
		},
		prober:   probe.New(),
		logger:   zerolog.Nop(),
		samples:  SampleAgents(),
		fallback: true,
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
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}

	var resp listResponse
	if err := a.client.GetJSON(ctx, "/v1/services", q, &resp); err != nil {
		if !a.fallback {
			return nil, fmt.Errorf("payai search: %w", err)
		}
		a.logger.Warn().Err(err).Str("provider", Name).Msg("upstream failed, serving mock-fallback listings")
		return provider.FilterByQuery(query, provider.CloneAgents(a.samples)), nil
	}

	agents := make([]hyphae.UnifiedAgent, 0, len(resp.Services))
	for _, svc := range resp.Services {
		agent, err := toAgent(svc)
		if err != nil {
			a.logger.Debug().Err(err).Str("service", svc.ID).Msg("skipping payai service")
			continue
		}
		agents = append(agents, *agent)
	}
	return agents, nil
}

// GetByID implements provider.Adapter.
func (a *Adapter) GetByID(ctx context.Context, originalID string) (*hyphae.UnifiedAgent, error) {
	var resp serviceResponse
	err := a.client.GetJSON(ctx, "/v1/services/"+url.PathEscape(originalID), nil, &resp)
	switch {
	case errors.Is(err, provider.ErrNotFound):
		return a.sample(originalID), nil
	case err != nil:
		if !a.fallback {
			return nil, fmt.Errorf("payai get %s: %w", originalID, err)
		}
		a.logger.Warn().Err(err).Str("provider", Name).Msg("upstream failed, resolving from mock-fallback listings")
		return a.sample(originalID), nil
	}
	return toAgent(resp.Service)
}

// CheckAvailability implements provider.Adapter.
func (a *Adapter) CheckAvailability(ctx context.Context, rawURL string) hyphae.AvailabilityResult {
	return a.prober.CheckEndpoint(ctx, rawURL, 0)
}

func (a *Adapter) sample(originalID string) *hyphae.UnifiedAgent {
	if !a.fallback {
		return nil
	}
	for _, s := range provider.CloneAgents(a.samples) {
		if s.OriginalID == originalID {
			return &s
		}
	}
	return nil
}

type listResponse struct {
	Services []service `json:"services"`
}

type serviceResponse struct {
	Service service `json:"service"`
}

type service struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Endpoint    string   `json:"endpoint"`
	Method      string   `json:"method"`
	Network     string   `json:"network"`
	Asset       string   `json:"asset"`
	Amount      string   `json:"amount"`
	PayTo       string   `json:"payTo"`
}

func toAgent(svc service) (*hyphae.UnifiedAgent, error) {
	if svc.Endpoint == "" {
		return nil, fmt.Errorf("service %q has no endpoint", svc.ID)
	}
	payTo, err := validatePayTo(svc.Network, svc.PayTo)
	if err != nil {
		return nil, fmt.Errorf("service %q: %w", svc.ID, err)
	}

	agent, err := hyphae.NewUnifiedAgent(Name, svc.ID, hyphae.Endpoint{URL: svc.Endpoint, Method: svc.Method})
	if err != nil {
		return nil, err
	}
	agent.Name = svc.Name
	agent.Description = svc.Description
	agent.Category = svc.Category
	agent.Tags = append(agent.Tags, svc.Tags...)

	network := x402.CanonicalNetwork(svc.Network)
	asset := assetSymbol(svc.Asset)
	price := pricing.Normalize(svc.Amount, asset, network)
	agent.Pricing = hyphae.Pricing{
		AmountUSDCCents: price.Cents,
		RawAmount:       svc.Amount,
		RawAsset:        asset,
		Network:         network,
		Unavailable:     price.Unavailable,
	}
	if payTo != "" {
		agent.SetMetadata("payTo", payTo)
	}
	return agent, nil
}

// validatePayTo checks the recipient against the network's address format.
// An empty recipient is allowed.
func validatePayTo(network, payTo string) (string, error) {
	if payTo == "" {
		return "", nil
	}
	if isSolana(network) {
		pk, err := solana.PublicKeyFromBase58(payTo)
		if err != nil {
			return "", fmt.Errorf("invalid solana payTo: %w", err)
		}
		return pk.String(), nil
	}
	return x402.NormalizeAddress(payTo)
}

func isSolana(network string) bool {
	n := strings.ToLower(network)
	return n == NetworkSolana || n == NetworkSolanaDevnet || strings.HasPrefix(n, "solana:")
}

// Circle USDC mints on Solana.
var usdcMints = map[string]bool{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": true,
	"4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU": true,
}

func assetSymbol(asset string) string {
	if usdcMints[asset] {
		return "USDC"
	}
	return x402.AssetSymbol(asset)
}
