package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/x402/encoding"
)

// Settlement response headers an upstream may return after a paid call.
const (
	HeaderXPaymentResponse = "X-PAYMENT-RESPONSE"
	HeaderPaymentResponse  = "PAYMENT-RESPONSE"
)

type invokeKey struct{}

type invokeInfo struct {
	agentID string
	paid    bool
}

func withInvokeInfo(ctx context.Context, agentID string, paid bool) context.Context {
	return context.WithValue(ctx, invokeKey{}, invokeInfo{agentID: agentID, paid: paid})
}

// EventTransport is an http.RoundTripper that reports every outbound
// invocation through callbacks. It never alters the request or response.
type EventTransport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// OnAttempt is called before the request is sent.
	OnAttempt hyphae.InvokeCallback

	// OnSuccess is called when the upstream answered, whatever the status.
	OnSuccess hyphae.InvokeCallback

	// OnFailure is called when no response was received.
	OnFailure hyphae.InvokeCallback

	Logger zerolog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *EventTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	info, _ := req.Context().Value(invokeKey{}).(invokeInfo)
	event := hyphae.InvokeEvent{
		AgentID: info.agentID,
		Method:  req.Method,
		URL:     redact(req.URL.String()),
		Paid:    info.paid,
	}

	start := time.Now()
	if t.OnAttempt != nil {
		ev := event
		ev.Type = hyphae.InvokeEventAttempt
		ev.Timestamp = start
		t.OnAttempt(ev)
	}

	resp, err := base.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		if t.OnFailure != nil {
			ev := event
			ev.Type = hyphae.InvokeEventFailure
			ev.Timestamp = time.Now()
			ev.Error = err
			ev.Duration = duration
			t.OnFailure(ev)
		}
		return nil, err
	}

	t.logSettlement(event.AgentID, resp.Header)

	if t.OnSuccess != nil {
		ev := event
		ev.Type = hyphae.InvokeEventSuccess
		ev.Timestamp = time.Now()
		ev.StatusCode = resp.StatusCode
		ev.Duration = duration
		t.OnSuccess(ev)
	}
	return resp, nil
}

// logSettlement records the transaction from a settlement header, if any.
// The header itself is relayed untouched whether or not it decodes.
func (t *EventTransport) logSettlement(agentID string, h http.Header) {
	raw := h.Get(HeaderXPaymentResponse)
	if raw == "" {
		raw = h.Get(HeaderPaymentResponse)
	}
	if raw == "" {
		return
	}
	settlement, err := encoding.DecodeSettlement(raw)
	if err != nil {
		t.Logger.Debug().Err(err).Str("agent", agentID).Msg("undecodable settlement header")
		return
	}
	t.Logger.Info().
		Str("agent", agentID).
		Bool("success", settlement.Success).
		Str("network", settlement.Network).
		Str("transaction", settlement.Transaction).
		Str("payer", settlement.Payer).
		Msg("upstream settled payment")
}
