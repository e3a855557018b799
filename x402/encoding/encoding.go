// Package encoding converts x402 payment headers to and from their wire form,
// base64-encoded JSON.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PeterFile/hyphae-platform/x402"
)

// EncodePaymentHeader validates the signature and authorization and returns
// the X-PAYMENT header value for network. The authorization is emitted as
// given; addresses are not re-cased.
func EncodePaymentHeader(network, signature string, auth x402.TransferAuthorization) (string, error) {
	header, err := buildHeader(network, signature, auth)
	if err != nil {
		return "", err
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(headerJSON), nil
}

// DecodePaymentHeader parses an X-PAYMENT header value. The result has passed
// the same validation as EncodePaymentHeader.
func DecodePaymentHeader(encoded string) (*x402.PaymentHeader, error) {
	decoded, err := decodeBase64(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode base64: %w", x402.ErrMalformedHeader, err)
	}

	var header x402.PaymentHeader
	if err := json.Unmarshal(decoded, &header); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal payment header: %w", x402.ErrMalformedHeader, err)
	}
	if header.X402Version != x402.X402Version {
		return nil, fmt.Errorf("%w: %d", x402.ErrUnsupportedVersion, header.X402Version)
	}
	if header.Scheme != x402.SchemeExact {
		return nil, fmt.Errorf("%w: %q", x402.ErrUnsupportedScheme, header.Scheme)
	}

	return buildHeader(header.Network, header.Payload.Signature, header.Payload.Authorization)
}

// DecodeSettlement parses an X-PAYMENT-RESPONSE header value.
func DecodeSettlement(encoded string) (*x402.SettleResponse, error) {
	decoded, err := decodeBase64(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var settlement x402.SettleResponse
	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}
	return &settlement, nil
}

func buildHeader(network, signature string, auth x402.TransferAuthorization) (*x402.PaymentHeader, error) {
	if !x402.IsSupportedNetwork(network) {
		return nil, fmt.Errorf("%w: %s", x402.ErrInvalidNetwork, network)
	}
	if err := x402.ValidateSignature(signature); err != nil {
		return nil, err
	}
	if _, err := x402.NormalizeAuthorization(auth); err != nil {
		return nil, err
	}

	return &x402.PaymentHeader{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     network,
		Payload: x402.ExactEVMPayload{
			Signature:     signature,
			Authorization: auth,
		},
	}, nil
}

// decodeBase64 accepts standard encoding with or without padding.
func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
