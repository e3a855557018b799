// Package registry fans searches out to every registered provider adapter
// and merges their partial results.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/provider"
)

// DefaultTimeout bounds each adapter call.
const DefaultTimeout = 5 * time.Second

// Outcome describes one adapter call, reported to an Observer.
type Outcome struct {
	Provider string
	Elapsed  time.Duration
	Results  int
	Err      *hyphae.ProviderError
}

// Observer receives one Outcome per adapter call.
type Observer func(Outcome)

// Registry holds adapters in registration order.
type Registry struct {
	mu       sync.RWMutex
	adapters []provider.Adapter
	byName   map[string]provider.Adapter

	timeout  time.Duration
	logger   zerolog.Logger
	observer Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout sets the per-adapter timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithObserver installs a per-adapter outcome hook.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byName:  make(map[string]provider.Adapter),
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an adapter. Names are case-insensitive and must be unique.
func (r *Registry) Register(a provider.Adapter) error {
	name := strings.ToLower(a.Name())
	if name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("invalid adapter name %q", a.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.byName[name] = a
	r.adapters = append(r.adapters, a)
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(adapters ...provider.Adapter) *Registry {
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}

// Names returns the registered adapter names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Adapter returns the adapter registered under name.
func (r *Registry) Adapter(name string) (provider.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[strings.ToLower(name)]
	return a, ok
}

// Timeout returns the per-adapter timeout.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// selected returns the adapters named in filters, or all of them. An unknown
// name is an error.
func (r *Registry) selected(filters hyphae.SearchFilters) ([]provider.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range filters.Providers {
		if _, ok := r.byName[strings.ToLower(name)]; !ok {
			return nil, fmt.Errorf("%w: %w %q", hyphae.ErrInvalidFilters, hyphae.ErrUnknownProvider, name)
		}
	}
	out := make([]provider.Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if filters.WantsProvider(a.Name()) {
			out = append(out, a)
		}
	}
	return out, nil
}

type searchOutcome struct {
	agents []hyphae.UnifiedAgent
	err    *hyphae.ProviderError
}

// SearchAll queries every selected adapter concurrently and waits for all of
// them, each bounded by the registry timeout. Results are deduplicated by id
// (first seen wins, in registration order), filtered by category and price,
// and sorted by filters.Sort. Failed adapters contribute a ProviderError.
func (r *Registry) SearchAll(ctx context.Context, filters hyphae.SearchFilters) (hyphae.SearchResult, error) {
	if err := filters.Validate(); err != nil {
		return hyphae.SearchResult{}, err
	}
	adapters, err := r.selected(filters)
	if err != nil {
		return hyphae.SearchResult{}, err
	}

	outcomes := make([]searchOutcome, len(adapters))
	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a provider.Adapter) {
			defer wg.Done()
			outcomes[i] = r.searchOne(ctx, a, filters)
		}(i, a)
	}
	wg.Wait()

	var merged [][]hyphae.UnifiedAgent
	errs := make([]hyphae.ProviderError, 0)
	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, *o.err)
			continue
		}
		merged = append(merged, o.agents)
	}

	results := Filter(Dedupe(merged...), filters)
	results = Sort(results, filters.Sort)
	return hyphae.SearchResult{
		Results:  results,
		Errors:   errs,
		Total:    len(results),
		Page:     filters.Page,
		PageSize: filters.PageSize,
	}, nil
}

// searchOne races a single adapter call against the registry timeout.
func (r *Registry) searchOne(ctx context.Context, a provider.Adapter, filters hyphae.SearchFilters) searchOutcome {
	name := a.Name()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan searchOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- searchOutcome{err: adapterError(name, fmt.Errorf("panic: %v", p))}
			}
		}()
		agents, err := a.Search(ctx, filters.Query, filters)
		if err != nil {
			done <- searchOutcome{err: classify(ctx, name, err)}
			return
		}
		done <- searchOutcome{agents: r.own(name, agents)}
	}()

	var out searchOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = searchOutcome{err: classify(ctx, name, ctx.Err())}
	}

	elapsed := time.Since(start)
	if out.err != nil {
		r.logger.Warn().
			Str("provider", name).
			Str("type", string(out.err.Type)).
			Dur("elapsed", elapsed).
			Msg(out.err.Message)
	}
	if r.observer != nil {
		r.observer(Outcome{Provider: name, Elapsed: elapsed, Results: len(out.agents), Err: out.err})
	}
	return out
}

// own drops records the adapter is not entitled to publish.
func (r *Registry) own(name string, agents []hyphae.UnifiedAgent) []hyphae.UnifiedAgent {
	out := agents[:0:0]
	for _, a := range agents {
		if !strings.EqualFold(a.Provider, name) || a.ID != hyphae.AgentID(a.Provider, a.OriginalID) {
			r.logger.Debug().Str("provider", name).Str("id", a.ID).Msg("dropping agent with foreign or malformed id")
			continue
		}
		out = append(out, a)
	}
	return out
}

func classify(ctx context.Context, name string, err error) *hyphae.ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &hyphae.ProviderError{
			Provider: name,
			Type:     hyphae.ProviderErrorTimeout,
			Message:  "adapter search timed out",
			Cause:    err,
		}
	}
	return adapterError(name, err)
}

func adapterError(name string, err error) *hyphae.ProviderError {
	return &hyphae.ProviderError{
		Provider: name,
		Type:     hyphae.ProviderErrorAdapter,
		Message:  err.Error(),
		Cause:    err,
	}
}

// GetByID resolves "provider:originalId" through the matching adapter.
func (r *Registry) GetByID(ctx context.Context, id string) (*hyphae.UnifiedAgent, error) {
	providerName, originalID, err := hyphae.SplitAgentID(id)
	if err != nil {
		return nil, err
	}
	a, ok := r.Adapter(providerName)
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", hyphae.ErrAgentNotFound, hyphae.ErrUnknownProvider, providerName)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	agent, err := a.GetByID(ctx, originalID)
	if err != nil {
		return nil, fmt.Errorf("%s lookup: %w", a.Name(), err)
	}
	if agent == nil || agent.ID != id {
		return nil, fmt.Errorf("%w: %s", hyphae.ErrAgentNotFound, id)
	}
	return agent, nil
}
