// Package eip3009 builds unsigned EIP-3009 transferWithAuthorization data
// and the EIP-712 payload a caller signs with its own key.
package eip3009

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/PeterFile/hyphae-platform/x402"
)

// DefaultValiditySeconds is the default lifetime of an authorization.
const DefaultValiditySeconds = 300

// ClockSkew is subtracted from validAfter.
const ClockSkew = 60 * time.Second

// PrimaryType is the EIP-712 primary type of the signed message.
const PrimaryType = "TransferWithAuthorization"

type authOptions struct {
	nonce string
	now   func() time.Time
}

// AuthOption configures BuildTransferAuthorization.
type AuthOption func(*authOptions)

// WithNonce uses nonce instead of a random one. It must be 0x followed by 32
// bytes of hex.
func WithNonce(nonce string) AuthOption {
	return func(o *authOptions) {
		o.nonce = nonce
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) AuthOption {
	return func(o *authOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// GenerateNonce returns a random 32-byte nonce as 0x-prefixed hex.
func GenerateNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(nonce[:]), nil
}

// BuildTransferAuthorization returns an authorization for value atomic units
// from -> to, valid from now-ClockSkew until now+validitySeconds.
// A non-positive validitySeconds uses DefaultValiditySeconds.
func BuildTransferAuthorization(from, to, value string, validitySeconds int64, opts ...AuthOption) (*x402.TransferAuthorization, error) {
	o := authOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if validitySeconds <= 0 {
		validitySeconds = DefaultValiditySeconds
	}

	nonce := o.nonce
	if nonce == "" {
		var err error
		nonce, err = GenerateNonce()
		if err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}
	}

	now := o.now().Unix()
	auth, err := x402.NormalizeAuthorization(x402.TransferAuthorization{
		From:        from,
		To:          to,
		Value:       value,
		ValidAfter:  strconv.FormatInt(max(now-int64(ClockSkew/time.Second), 0), 10),
		ValidBefore: strconv.FormatInt(now+validitySeconds, 10),
		Nonce:       nonce,
	})
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

type payloadOptions struct {
	name    string
	version string
}

// PayloadOption configures BuildSigningPayload.
type PayloadOption func(*payloadOptions)

// WithDomain overrides the EIP-712 domain name and version. Empty values keep
// the network default.
func WithDomain(name, version string) PayloadOption {
	return func(o *payloadOptions) {
		if name != "" {
			o.name = name
		}
		if version != "" {
			o.version = version
		}
	}
}

// ForRequirement applies the domain advertised by req.
func ForRequirement(req *x402.PaymentRequirement) PayloadOption {
	if req == nil {
		return func(*payloadOptions) {}
	}
	return WithDomain(req.DomainInfo())
}

// BuildSigningPayload returns the EIP-712 typed data for auth, with the domain
// bound to the asset contract on network.
func BuildSigningPayload(network, asset string, auth x402.TransferAuthorization, opts ...PayloadOption) (*apitypes.TypedData, error) {
	cfg, err := x402.GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}
	verifyingContract, err := x402.NormalizeAddress(asset)
	if err != nil {
		return nil, fmt.Errorf("asset: %w", err)
	}
	auth, err = x402.NormalizeAuthorization(auth)
	if err != nil {
		return nil, err
	}

	o := payloadOptions{name: cfg.EIP712Name, version: cfg.EIP712Version}
	for _, opt := range opts {
		opt(&o)
	}

	return &apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			PrimaryType: []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              o.name,
			Version:           o.version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(cfg.ChainID)),
			VerifyingContract: verifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}, nil
}

// SigningDigest returns the 32-byte EIP-712 digest of td, the value a wallet
// signs for eth_signTypedData_v4.
func SigningDigest(td *apitypes.TypedData) ([]byte, error) {
	if td == nil {
		return nil, fmt.Errorf("typed data is nil")
	}
	digest, _, err := apitypes.TypedDataAndHash(*td)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return digest, nil
}
