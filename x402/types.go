// Package x402 implements the client-facing half of the x402 "exact" EVM
// payment scheme as transported by the gateway.
//
// The gateway never holds key material. It extracts payment requirements
// from an upstream 402 response, builds the unsigned EIP-3009 transfer
// authorization and its EIP-712 signing payload for the caller, and
// encodes/decodes the resulting payment header. Every function fails closed:
// malformed input yields nil or an error, never a partially valid token.
package x402

// X402Version is the protocol version emitted in payment headers.
const X402Version = 1

// SchemeExact is the only payment scheme the gateway understands.
const SchemeExact = "exact"

// PaymentRequirement is a single validated "exact" EVM payment option taken
// from the accepts array of a 402 response.
type PaymentRequirement struct {
	// X402Version is the protocol version the upstream advertised.
	X402Version int `json:"x402Version"`

	// Scheme is always "exact".
	Scheme string `json:"scheme"`

	// Network is one of the supported network names (e.g., "base").
	Network string `json:"network"`

	// Amount is the payment amount in atomic units, digits only.
	Amount string `json:"amount"`

	// PayTo is the EIP-55 checksummed recipient address.
	PayTo string `json:"payTo"`

	// Asset is the EIP-55 checksummed token contract address.
	Asset string `json:"asset"`

	// Resource is the URL of the paid resource, if the upstream sent one.
	Resource string `json:"resource,omitempty"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// MaxTimeoutSeconds is the validity the upstream asks for, if any.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds,omitempty"`

	// Extra carries scheme-specific data such as the EIP-712 domain name and version.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// TransferAuthorization contains EIP-3009 transferWithAuthorization parameters.
// All values are strings: addresses are checksummed hex, numbers are decimal.
type TransferAuthorization struct {
	// From is the payer's address.
	From string `json:"from"`

	// To is the recipient's address.
	To string `json:"to"`

	// Value is the payment amount in atomic units.
	Value string `json:"value"`

	// ValidAfter is the unix timestamp after which the authorization is valid.
	ValidAfter string `json:"validAfter"`

	// ValidBefore is the unix timestamp before which the authorization is valid.
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 32-byte hex string to prevent replay attacks.
	Nonce string `json:"nonce"`
}

// ExactEVMPayload is the signed part of a payment header.
type ExactEVMPayload struct {
	// Signature is the hex-encoded 65-byte ECDSA signature.
	Signature string `json:"signature"`

	// Authorization contains the signed EIP-3009 parameters.
	Authorization TransferAuthorization `json:"authorization"`
}

// PaymentHeader is the decoded form of an X-PAYMENT header value.
type PaymentHeader struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     ExactEVMPayload `json:"payload"`
}

// SettleResponse is the decoded form of an X-PAYMENT-RESPONSE header value.
type SettleResponse struct {
	// Success indicates whether the payment was settled.
	Success bool `json:"success"`

	// ErrorReason provides a short error code if the payment failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the blockchain transaction hash.
	Transaction string `json:"transaction"`

	// Network is the network the payment settled on.
	Network string `json:"network"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}
