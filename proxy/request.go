package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	hyphae "github.com/PeterFile/hyphae-platform"
)

// DefaultMaxBodyBytes is the ceiling for an inbound invoke body.
const DefaultMaxBodyBytes = 64 << 10

// Payment header names a caller may forward upstream.
const (
	HeaderXPayment         = "X-PAYMENT"
	HeaderPaymentSignature = "PAYMENT-SIGNATURE"
)

// Payment is a pre-signed payment header supplied by the caller.
type Payment struct {
	// Header is one of HeaderXPayment or HeaderPaymentSignature.
	Header string `json:"header"`

	// Value is the encoded payment token, forwarded as is.
	Value string `json:"value"`
}

// InvokeRequest is the inbound invoke body.
type InvokeRequest struct {
	ID      string          `json:"id"`
	Input   json.RawMessage `json:"input,omitempty"`
	Payment *Payment        `json:"payment,omitempty"`
}

// ReadBounded reads r until EOF, failing with ErrBodyTooLarge as soon as more
// than limit bytes have been read. The remainder is never buffered.
func ReadBounded(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, hyphae.NewGatewayError(hyphae.ErrCodeBodyTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", limit), hyphae.ErrBodyTooLarge).
			WithDetails("limit", limit)
	}
	return data, nil
}

// DecodeInvokeRequest reads at most limit bytes from r and validates the
// result.
func DecodeInvokeRequest(r io.Reader, limit int64) (*InvokeRequest, error) {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	data, err := ReadBounded(r, limit)
	if err != nil {
		return nil, err
	}

	var req InvokeRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, invalid("malformed JSON body", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks the id, input and payment fields and canonicalises the
// payment header name.
func (r *InvokeRequest) Validate() error {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return invalid("id is required", nil)
	}
	if _, _, err := hyphae.SplitAgentID(r.ID); err != nil {
		return invalid("id must be provider:originalId", err)
	}

	input := bytes.TrimSpace(r.Input)
	if len(input) == 0 || bytes.Equal(input, []byte("null")) {
		r.Input = json.RawMessage("{}")
	} else if input[0] != '{' || !json.Valid(input) {
		return invalid("input must be a JSON object", nil)
	} else {
		r.Input = json.RawMessage(input)
	}

	if r.Payment != nil {
		name, ok := allowedPaymentHeader(r.Payment.Header)
		if !ok {
			return hyphae.NewGatewayError(hyphae.ErrCodeUnsupportedPaymentHeader,
				fmt.Sprintf("payment header must be %s or %s", HeaderXPayment, HeaderPaymentSignature),
				hyphae.ErrUnsupportedPaymentHeader).WithDetails("header", r.Payment.Header)
		}
		r.Payment.Header = name
		if r.Payment.Value == "" || strings.ContainsAny(r.Payment.Value, "\r\n\x00") {
			return invalid("payment value must be a non-empty single-line string", nil)
		}
	}
	return nil
}

func allowedPaymentHeader(name string) (string, bool) {
	switch {
	case strings.EqualFold(name, HeaderXPayment):
		return HeaderXPayment, true
	case strings.EqualFold(name, HeaderPaymentSignature):
		return HeaderPaymentSignature, true
	}
	return "", false
}

func invalid(msg string, err error) error {
	if err == nil {
		err = hyphae.ErrInvalidRequest
	} else {
		err = fmt.Errorf("%w: %w", hyphae.ErrInvalidRequest, err)
	}
	return hyphae.NewGatewayError(hyphae.ErrCodeInvalidRequest, msg, err)
}

// FlattenQuery merges the top-level fields of a JSON object into q. String
// values are used as is; every other value is its compact JSON text.
func FlattenQuery(q url.Values, input json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(input, &fields); err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw := bytes.TrimSpace(fields[k])
		if len(raw) > 0 && raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return err
			}
			q.Set(k, s)
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return err
		}
		q.Set(k, buf.String())
	}
	return nil
}

// buildOutbound shapes the upstream request for agent.
func buildOutbound(req *http.Request, endpoint hyphae.Endpoint, in *InvokeRequest) error {
	u, err := url.Parse(endpoint.URL)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	switch endpoint.Method {
	case hyphae.MethodPOST:
		req.Method = http.MethodPost
		req.Header.Set("Content-Type", "application/json")
		req.Body = io.NopCloser(bytes.NewReader(in.Input))
		req.ContentLength = int64(len(in.Input))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(in.Input)), nil
		}
	default:
		req.Method = http.MethodGet
		q := u.Query()
		if err := FlattenQuery(q, in.Input); err != nil {
			return err
		}
		u.RawQuery = q.Encode()
	}
	req.URL = u
	req.Host = u.Host

	if in.Payment != nil {
		req.Header.Set(in.Payment.Header, in.Payment.Value)
	}
	return nil
}
