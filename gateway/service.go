// Package gateway is the inbound face of the aggregator: search across
// providers, agent lookup, availability and proxied invocation. The HTTP and
// MCP surfaces are thin layers over Service.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/cache"
	"github.com/PeterFile/hyphae-platform/metrics"
	"github.com/PeterFile/hyphae-platform/probe"
	"github.com/PeterFile/hyphae-platform/proxy"
	"github.com/PeterFile/hyphae-platform/registry"
)

// DefaultPageTTL is how long a merged, sorted search result is reused.
const DefaultPageTTL = 30 * time.Second

// Service implements search, lookup, availability and invoke.
type Service struct {
	registry *registry.Registry
	proxy    *proxy.Proxy
	prober   *probe.Prober

	pages            *cache.TTL[string, hyphae.SearchResult]
	probeOnSearch    bool
	probeConcurrency int
	logger           zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithProber sets the prober used for search-time probing.
func WithProber(p *probe.Prober) Option {
	return func(s *Service) {
		s.prober = p
	}
}

// WithPageCache sets the search result cache. A nil cache disables caching.
func WithPageCache(c *cache.TTL[string, hyphae.SearchResult]) Option {
	return func(s *Service) {
		s.pages = c
	}
}

// WithProbeOnSearch probes every search result, whatever the sort mode.
func WithProbeOnSearch(enabled bool) Option {
	return func(s *Service) {
		s.probeOnSearch = enabled
	}
}

// WithProbeConcurrency bounds in-flight probes per search.
func WithProbeConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.probeConcurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a Service over reg and px.
func New(reg *registry.Registry, px *proxy.Proxy, opts ...Option) (*Service, error) {
	if reg == nil || px == nil {
		return nil, errors.New("gateway: registry and proxy are required")
	}
	s := &Service{
		registry:         reg,
		proxy:            px,
		pages:            cache.NewTTL[string, hyphae.SearchResult](cache.DefaultSize, DefaultPageTTL),
		probeConcurrency: probe.DefaultConcurrency,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prober == nil {
		s.prober = probe.New(probe.WithTargetCheck(px.CheckTarget), probe.WithLogger(s.logger))
	}
	return s, nil
}

// Providers returns the registered adapter names.
func (s *Service) Providers() []string {
	return s.registry.Names()
}

// Search runs an aggregate search and returns the requested page. Complete
// results (no provider errors) are cached per filter set, independent of
// paging.
func (s *Service) Search(ctx context.Context, filters hyphae.SearchFilters) (hyphae.SearchResult, error) {
	if err := filters.Validate(); err != nil {
		return hyphae.SearchResult{}, invalidFilters(err)
	}

	key := pageKey(filters)
	all, hit := s.pages.Get(key)
	if hit {
		metrics.SearchCache.WithLabelValues("hit").Inc()
	} else {
		metrics.SearchCache.WithLabelValues("miss").Inc()

		var err error
		all, err = s.registry.SearchAll(ctx, filters)
		if err != nil {
			if errors.Is(err, hyphae.ErrInvalidFilters) {
				return hyphae.SearchResult{}, invalidFilters(err)
			}
			return hyphae.SearchResult{}, err
		}
		if s.probeOnSearch || filters.Sort == hyphae.SortAvailability {
			s.probeAll(ctx, all.Results)
			all.Results = registry.Sort(all.Results, filters.Sort)
		}
		if len(all.Errors) == 0 {
			s.pages.Set(key, all)
		}
	}

	return hyphae.SearchResult{
		Results:  registry.Paginate(all.Results, filters.Page, filters.PageSize),
		Errors:   all.Errors,
		Total:    len(all.Results),
		Page:     filters.Page,
		PageSize: filters.PageSize,
	}, nil
}

// probeAll fills availability in place.
func (s *Service) probeAll(ctx context.Context, agents []hyphae.UnifiedAgent) {
	if len(agents) == 0 {
		return
	}
	urls := make([]string, len(agents))
	for i, a := range agents {
		urls[i] = a.Endpoint.URL
	}
	results := s.prober.CheckMultiple(ctx, urls, s.probeConcurrency)
	for i := range agents {
		agents[i].Availability = results[i]
		metrics.ProbeResults.WithLabelValues(strconv.FormatBool(results[i].IsOnline)).Inc()
	}
}

// Agent resolves a unified id.
func (s *Service) Agent(ctx context.Context, id string) (*hyphae.UnifiedAgent, error) {
	agent, err := s.registry.GetByID(ctx, id)
	if err != nil {
		return nil, proxy.LookupError(id, err)
	}
	return agent, nil
}

// Availability resolves id and probes its endpoint through the owning
// adapter. Endpoints failing the target guard are rejected without a request.
func (s *Service) Availability(ctx context.Context, id string) (hyphae.AvailabilityResult, error) {
	agent, err := s.Agent(ctx, id)
	if err != nil {
		return hyphae.AvailabilityResult{}, err
	}
	if err := s.proxy.CheckTarget(agent.Endpoint.URL); err != nil {
		metrics.BlockedTargets.WithLabelValues("probe").Inc()
		s.logger.Warn().Str("agent", id).Msg("availability target blocked")
		return hyphae.AvailabilityResult{}, blockedError(err)
	}

	adapter, ok := s.registry.Adapter(agent.Provider)
	if !ok {
		return hyphae.AvailabilityResult{}, proxy.LookupError(id, hyphae.ErrAgentNotFound)
	}
	result := adapter.CheckAvailability(ctx, agent.Endpoint.URL)
	metrics.ProbeResults.WithLabelValues(strconv.FormatBool(result.IsOnline)).Inc()
	return result, nil
}

// Invoke relays one call through the proxy and records its outcome.
func (s *Service) Invoke(ctx context.Context, req *proxy.InvokeRequest) (*proxy.Response, error) {
	paid := strconv.FormatBool(req != nil && req.Payment != nil)

	resp, err := s.proxy.Invoke(ctx, req)
	if err != nil {
		code := hyphae.CodeOf(err)
		if code == hyphae.ErrCodeSSRFBlocked {
			metrics.BlockedTargets.WithLabelValues("invoke").Inc()
		}
		metrics.InvokeTotal.WithLabelValues(string(code), paid).Inc()
		return nil, err
	}
	metrics.InvokeTotal.WithLabelValues(metrics.StatusClass(resp.Status), paid).Inc()
	return resp, nil
}

// pageKey identifies a filter set independent of paging.
func pageKey(f hyphae.SearchFilters) string {
	providers := make([]string, len(f.Providers))
	for i, p := range f.Providers {
		providers[i] = strings.ToLower(strings.TrimSpace(p))
	}
	slices.Sort(providers)

	key := struct {
		Query     string          `json:"q"`
		Providers []string        `json:"p"`
		Category  string          `json:"c"`
		Min       *int64          `json:"min"`
		Max       *int64          `json:"max"`
		Sort      hyphae.SortMode `json:"s"`
	}{
		Query:     strings.ToLower(strings.Join(strings.Fields(f.Query), " ")),
		Providers: providers,
		Category:  strings.ToLower(f.Category),
		Min:       f.MinPrice,
		Max:       f.MaxPrice,
		Sort:      f.Sort,
	}
	b, _ := json.Marshal(key)
	return string(b)
}

func invalidFilters(err error) error {
	return hyphae.NewGatewayError(hyphae.ErrCodeInvalidRequest, "invalid search parameters", err)
}

func blockedError(err error) error {
	var gwErr *hyphae.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return hyphae.NewGatewayError(hyphae.ErrCodeSSRFBlocked, "endpoint target is not allowed", err)
}
