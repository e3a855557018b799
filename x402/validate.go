package x402

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	digitsRegex    = regexp.MustCompile(`^[0-9]+$`)
	nonceRegex     = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	signatureRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{130}$`)
)

// maxUint256 bounds every uint256 field of the transfer authorization.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NormalizeAddress validates an EVM address and returns its EIP-55 checksummed
// form. All-lowercase and all-uppercase inputs are accepted as unchecksummed;
// a mixed-case input must already carry a correct checksum.
func NormalizeAddress(address string) (string, error) {
	if !evmAddressRegex.MatchString(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	checksummed := common.HexToAddress(address).Hex()

	body := address[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && address != checksummed {
		return "", fmt.Errorf("%w: bad checksum %q", ErrInvalidAddress, address)
	}
	return checksummed, nil
}

// ValidateAmount checks that amount is a digits-only uint256.
// Zero is allowed for free-with-signature flows.
func ValidateAmount(amount string) error {
	if !digitsRegex.MatchString(amount) {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	n, ok := new(big.Int).SetString(amount, 10)
	if !ok || n.Cmp(maxUint256) > 0 {
		return fmt.Errorf("%w: %q out of range", ErrInvalidAmount, amount)
	}
	return nil
}

// ValidateNonce checks that nonce is 0x followed by 32 bytes of hex.
func ValidateNonce(nonce string) error {
	if !nonceRegex.MatchString(nonce) {
		return fmt.Errorf("%w: %q", ErrInvalidNonce, nonce)
	}
	return nil
}

// ValidateSignature checks that signature is 0x followed by 65 bytes of hex.
func ValidateSignature(signature string) error {
	if !signatureRegex.MatchString(signature) {
		return fmt.Errorf("%w: expected 65 bytes of hex", ErrInvalidSignature)
	}
	return nil
}

// NormalizeAuthorization validates every field of auth and returns a copy
// with both addresses checksummed.
func NormalizeAuthorization(auth TransferAuthorization) (TransferAuthorization, error) {
	from, err := NormalizeAddress(auth.From)
	if err != nil {
		return TransferAuthorization{}, fmt.Errorf("%w: from: %w", ErrInvalidAuthorization, err)
	}
	to, err := NormalizeAddress(auth.To)
	if err != nil {
		return TransferAuthorization{}, fmt.Errorf("%w: to: %w", ErrInvalidAuthorization, err)
	}
	for name, v := range map[string]string{
		"value":       auth.Value,
		"validAfter":  auth.ValidAfter,
		"validBefore": auth.ValidBefore,
	} {
		if err := ValidateAmount(v); err != nil {
			return TransferAuthorization{}, fmt.Errorf("%w: %s: %w", ErrInvalidAuthorization, name, err)
		}
	}
	if err := ValidateNonce(auth.Nonce); err != nil {
		return TransferAuthorization{}, fmt.Errorf("%w: %w", ErrInvalidAuthorization, err)
	}

	auth.From = from
	auth.To = to
	return auth, nil
}
