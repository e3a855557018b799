// Package proxy relays a caller's invocation to an agent endpoint. It guards
// the target against internal addresses, bounds both bodies, forwards at most
// one pre-signed payment header and relays the upstream status unchanged.
// The proxy never signs or settles payments itself.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/x402"
)

// Defaults for outbound invocations.
const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxResponseBytes = 2 << 20
)

// Resolver looks agents up by unified id. *registry.Registry satisfies it.
type Resolver interface {
	GetByID(ctx context.Context, id string) (*hyphae.UnifiedAgent, error)
}

// Response is the relayed upstream answer.
type Response struct {
	// Status is the upstream status code, 402 included.
	Status int `json:"status"`

	// Headers holds only the settlement headers the upstream returned.
	Headers map[string]string `json:"headers"`

	// Body is the re-serialised JSON body, or the raw text otherwise.
	Body any `json:"body"`

	// PaymentRequirement is set on a 402 carrying a usable "exact" offer.
	PaymentRequirement *x402.PaymentRequirement `json:"paymentRequirement,omitempty"`

	Agent     *hyphae.UnifiedAgent `json:"-"`
	LatencyMs int64                `json:"latencyMs"`
}

// Proxy relays invocations. It is safe for concurrent use.
type Proxy struct {
	resolver Resolver
	client   *http.Client

	transport        *EventTransport
	timeout          time.Duration
	maxResponseBytes int64
	validate         func(string) error
	logger           zerolog.Logger
}

// Option configures a Proxy.
type Option func(*Proxy) error

// New creates a Proxy resolving agents through r.
func New(r Resolver, opts ...Option) (*Proxy, error) {
	if r == nil {
		return nil, errors.New("proxy: nil resolver")
	}
	p := &Proxy{
		resolver:         r,
		transport:        &EventTransport{Base: http.DefaultTransport, Logger: zerolog.Nop()},
		timeout:          DefaultTimeout,
		maxResponseBytes: DefaultMaxResponseBytes,
		validate:         ValidateTarget,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.client = &http.Client{
		Transport: p.transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return p, nil
}

// WithTransport sets the underlying RoundTripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Proxy) error {
		if rt == nil {
			return errors.New("proxy: nil transport")
		}
		p.transport.Base = rt
		return nil
	}
}

// WithTimeout sets the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) error {
		if d <= 0 {
			return fmt.Errorf("proxy: timeout must be positive, got %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithMaxResponseBytes sets the relayed body ceiling.
func WithMaxResponseBytes(n int64) Option {
	return func(p *Proxy) error {
		if n <= 0 {
			return fmt.Errorf("proxy: response ceiling must be positive, got %d", n)
		}
		p.maxResponseBytes = n
		return nil
	}
}

// WithTargetValidator replaces ValidateTarget.
func WithTargetValidator(fn func(string) error) Option {
	return func(p *Proxy) error {
		if fn == nil {
			return errors.New("proxy: nil target validator")
		}
		p.validate = fn
		return nil
	}
}

// WithCallbacks sets the invocation event callbacks. Nil callbacks are skipped.
func WithCallbacks(onAttempt, onSuccess, onFailure hyphae.InvokeCallback) Option {
	return func(p *Proxy) error {
		p.transport.OnAttempt = onAttempt
		p.transport.OnSuccess = onSuccess
		p.transport.OnFailure = onFailure
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Proxy) error {
		p.logger = logger
		p.transport.Logger = logger
		return nil
	}
}

// Timeout returns the per-invocation timeout.
func (p *Proxy) Timeout() time.Duration {
	return p.timeout
}

// CheckTarget applies the proxy's target validator to rawURL.
func (p *Proxy) CheckTarget(rawURL string) error {
	return p.validate(rawURL)
}

// Invoke resolves the agent, checks its endpoint and relays one call.
// Every failure is a *hyphae.GatewayError.
func (p *Proxy) Invoke(ctx context.Context, in *InvokeRequest) (*Response, error) {
	if in == nil {
		return nil, invalid("empty request", nil)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	agent, err := p.resolve(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if err := p.validate(agent.Endpoint.URL); err != nil {
		p.logger.Warn().Str("agent", agent.ID).Str("url", redact(agent.Endpoint.URL)).Msg("blocked invoke target")
		var gwErr *hyphae.GatewayError
		if errors.As(err, &gwErr) {
			return nil, gwErr
		}
		return nil, hyphae.NewGatewayError(hyphae.ErrCodeSSRFBlocked, "endpoint target is not allowed",
			fmt.Errorf("%w: %w", hyphae.ErrBlockedTarget, err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx = withInvokeInfo(ctx, agent.ID, in.Payment != nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, agent.Endpoint.URL, nil)
	if err != nil {
		return nil, hyphae.NewGatewayError(hyphae.ErrCodeUpstreamUnreachable, "invalid agent endpoint", err)
	}
	if err := buildOutbound(req, agent.Endpoint, in); err != nil {
		return nil, invalid("cannot encode input", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.upstreamError(ctx, agent, err)
	}
	defer resp.Body.Close()

	body, err := ReadBounded(resp.Body, p.maxResponseBytes)
	if err != nil {
		if errors.Is(err, hyphae.ErrBodyTooLarge) {
			return nil, hyphae.NewGatewayError(hyphae.ErrCodeUpstreamTooLarge,
				fmt.Sprintf("upstream response exceeds %d bytes", p.maxResponseBytes),
				hyphae.ErrUpstreamResponseTooLarge).WithDetails("agentId", agent.ID)
		}
		return nil, p.upstreamError(ctx, agent, err)
	}

	out := &Response{
		Status:    resp.StatusCode,
		Headers:   relayHeaders(resp.Header),
		Agent:     agent,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	out.Body = relayBody(resp.Header.Get("Content-Type"), body)
	if resp.StatusCode == http.StatusPaymentRequired {
		out.PaymentRequirement = x402.ExtractPaymentRequirement(body)
	}

	p.logger.Debug().
		Str("agent", agent.ID).
		Int("status", out.Status).
		Int64("latency_ms", out.LatencyMs).
		Bool("paid", in.Payment != nil).
		Msg("invoke relayed")
	return out, nil
}

func (p *Proxy) resolve(ctx context.Context, id string) (*hyphae.UnifiedAgent, error) {
	agent, err := p.resolver.GetByID(ctx, id)
	if err != nil {
		return nil, LookupError(id, err)
	}
	return agent, nil
}

// LookupError maps a Resolver failure for id onto the gateway taxonomy.
func LookupError(id string, err error) error {
	switch {
	case errors.Is(err, hyphae.ErrAgentNotFound):
		return hyphae.NewGatewayError(hyphae.ErrCodeAgentNotFound, "agent not found", err).WithDetails("agentId", id)
	case errors.Is(err, hyphae.ErrInvalidAgentID):
		return invalid("id must be provider:originalId", err)
	default:
		return hyphae.NewGatewayError(hyphae.ErrCodeUpstreamUnreachable, "agent lookup failed",
			fmt.Errorf("%w: %w", hyphae.ErrUpstreamUnreachable, err)).WithDetails("agentId", id)
	}
}

// upstreamError maps a transport or read failure. ctx is the invocation
// context carrying the proxy timeout.
func (p *Proxy) upstreamError(ctx context.Context, agent *hyphae.UnifiedAgent, err error) error {
	var netErr net.Error
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())

	p.logger.Warn().Err(err).Str("agent", agent.ID).Bool("timeout", timedOut).Msg("invoke failed")
	if timedOut {
		return hyphae.NewGatewayError(hyphae.ErrCodeUpstreamTimeout,
			fmt.Sprintf("upstream did not answer within %s", p.timeout),
			fmt.Errorf("%w: %w", hyphae.ErrUpstreamTimeout, err)).WithDetails("agentId", agent.ID)
	}
	return hyphae.NewGatewayError(hyphae.ErrCodeUpstreamUnreachable, "upstream unreachable",
		fmt.Errorf("%w: %w", hyphae.ErrUpstreamUnreachable, err)).WithDetails("agentId", agent.ID)
}

func relayHeaders(h http.Header) map[string]string {
	out := make(map[string]string)
	for _, name := range []string{HeaderXPaymentResponse, HeaderPaymentResponse} {
		if v := h.Get(name); v != "" {
			out[name] = v
		}
	}
	return out
}

// relayBody returns compact JSON for a JSON content type with a valid body,
// and the body as text otherwise.
func relayBody(contentType string, body []byte) any {
	if strings.Contains(strings.ToLower(contentType), "json") {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			if out, err := json.Marshal(v); err == nil {
				return json.RawMessage(out)
			}
		}
	}
	return string(body)
}
