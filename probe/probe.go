// Package probe checks whether agent endpoints are reachable.
//
// A probe counts any HTTP response, including 3xx, 4xx and 5xx, as online:
// the question is whether something is listening, not whether the caller is
// authorised. Only network errors and timeouts mark an endpoint offline.
package probe

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	hyphae "github.com/PeterFile/hyphae-platform"
)

// Defaults for probing.
const (
	DefaultTimeout     = 3 * time.Second
	DefaultConcurrency = 5
)

// TargetCheck rejects a URL before any request is made. A rejected URL is
// reported offline.
type TargetCheck func(rawURL string) error

// Prober issues liveness probes.
type Prober struct {
	client      *http.Client
	timeout     time.Duration
	concurrency int
	check       TargetCheck
	logger      zerolog.Logger
	now         func() time.Time
}

// Option configures a Prober.
type Option func(*Prober)

// WithHTTPClient sets the underlying client. Redirect following is always
// disabled on the prober's copy.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Prober) {
		if client != nil {
			c := *client
			p.client = &c
		}
	}
}

// WithTimeout sets the default per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithConcurrency sets the default ceiling for CheckMultiple.
func WithConcurrency(n int) Option {
	return func(p *Prober) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithTargetCheck installs a pre-flight URL check.
func WithTargetCheck(check TargetCheck) Option {
	return func(p *Prober) {
		p.check = check
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// New creates a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		client:      &http.Client{},
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return p
}

// CheckEndpoint probes rawURL with HEAD, falling back to a single GET when the
// server rejects HEAD with 403 or 405. A non-positive timeout uses the default.
func (p *Prober) CheckEndpoint(ctx context.Context, rawURL string, timeout time.Duration) hyphae.AvailabilityResult {
	if p.check != nil {
		if err := p.check(rawURL); err != nil {
			p.logger.Debug().Str("url", rawURL).Err(err).Msg("probe target rejected")
			return p.offline()
		}
	}

	if timeout <= 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := p.now()
	status, err := p.do(ctx, http.MethodHead, rawURL)
	if err == nil && (status == http.StatusForbidden || status == http.StatusMethodNotAllowed) {
		// The HEAD answer already proves liveness; a failed GET keeps it.
		if getStatus, getErr := p.do(ctx, http.MethodGet, rawURL); getErr == nil {
			status = getStatus
		}
	}
	elapsed := p.now().Sub(start).Milliseconds()

	if err != nil {
		p.logger.Debug().Str("url", rawURL).Err(err).Msg("probe failed")
		return p.offline()
	}

	return hyphae.AvailabilityResult{
		IsOnline:    true,
		LastChecked: p.now().UTC(),
		LatencyMs:   &elapsed,
		StatusCode:  &status,
	}
}

// CheckMultiple probes urls with at most concurrency probes in flight.
// Waiting probes are admitted in FIFO order and the output preserves input
// order. A non-positive concurrency uses the default.
func (p *Prober) CheckMultiple(ctx context.Context, urls []string, concurrency int) []hyphae.AvailabilityResult {
	if concurrency <= 0 {
		concurrency = p.concurrency
	}

	results := make([]hyphae.AvailabilityResult, len(urls))
	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup

	for i, u := range urls {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(urls); j++ {
				results[j] = p.offline()
			}
			break
		}
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = p.CheckEndpoint(ctx, u, 0)
		}(i, u)
	}

	wg.Wait()
	return results
}

func (p *Prober) do(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (p *Prober) offline() hyphae.AvailabilityResult {
	return hyphae.AvailabilityResult{
		IsOnline:    false,
		LastChecked: p.now().UTC(),
	}
}
