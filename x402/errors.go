package x402

import "errors"

// Sentinel errors for x402 codec operations.
var (
	// ErrInvalidNetwork indicates an unsupported network.
	ErrInvalidNetwork = errors.New("x402: invalid or unsupported network")

	// ErrInvalidAmount indicates an amount that is not a non-negative digit string.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidAddress indicates a malformed or mis-checksummed EVM address.
	ErrInvalidAddress = errors.New("x402: invalid address")

	// ErrInvalidNonce indicates a nonce that is not 32 bytes of hex.
	ErrInvalidNonce = errors.New("x402: invalid nonce")

	// ErrInvalidSignature indicates a signature that is not 65 bytes of hex.
	ErrInvalidSignature = errors.New("x402: invalid signature")

	// ErrInvalidAuthorization indicates malformed transfer authorization fields.
	ErrInvalidAuthorization = errors.New("x402: invalid transfer authorization")

	// ErrMalformedHeader indicates the payment header could not be decoded.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrUnsupportedScheme indicates an unsupported payment scheme.
	ErrUnsupportedScheme = errors.New("x402: unsupported payment scheme")
)
