// Package pricing converts raw on-chain token amounts into USDC cents.
//
// All arithmetic is done on arbitrary-precision integers; assets may carry
// up to 18 decimal places and floating point would silently lose precision.
package pricing

import (
	"math/big"
	"strings"
)

// MaxSafeCents is the largest cents value that survives a round trip through
// an IEEE-754 double (2^53 - 1), which is what JSON clients decode into.
const MaxSafeCents int64 = 1<<53 - 1

const usdcDecimals = 6

// decimalsBySymbol holds the decimals of non-USDC assets the gateway can price.
var decimalsBySymbol = map[string]int{
	"USDC": 6,
	"ETH":  18,
	"SOL":  9,
}

// fallbackUSDRate is the USD-per-unit rate used for non-USDC assets.
var fallbackUSDRate = map[string]int64{
	"ETH": 3000,
	"SOL": 150,
}

// Price is a normalised price.
type Price struct {
	// Cents is the amount in USDC cents, truncated toward zero.
	Cents int64

	// Unavailable is set when the amount could not be priced.
	Unavailable bool
}

var unavailable = Price{Cents: 0, Unavailable: true}

// Normalize converts raw atomic units of asset into USDC cents.
// The network is informational only. Normalize never panics: a malformed or
// negative amount, an unknown asset, or a result beyond MaxSafeCents yields
// an unavailable price.
func Normalize(rawAmount, asset, network string) Price {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(rawAmount), 10)
	if !ok || amount.Sign() < 0 {
		return unavailable
	}

	symbol := NormalizeSymbol(asset)

	var cents *big.Int
	if IsUSDC(symbol) {
		cents = new(big.Int).Mul(amount, big.NewInt(100))
		cents.Quo(cents, pow10(usdcDecimals))
	} else {
		decimals, okDecimals := decimalsBySymbol[symbol]
		rate, okRate := fallbackUSDRate[symbol]
		if !okDecimals || !okRate {
			return unavailable
		}
		cents = new(big.Int).Mul(amount, big.NewInt(rate))
		cents.Mul(cents, big.NewInt(100))
		cents.Quo(cents, pow10(decimals))
	}

	if !cents.IsInt64() || cents.Int64() > MaxSafeCents {
		return unavailable
	}
	return Price{Cents: cents.Int64()}
}

// NormalizeSymbol upper-cases and trims an asset symbol.
func NormalizeSymbol(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// IsUSDC reports whether a normalised symbol denotes USDC (native or bridged).
func IsUSDC(symbol string) bool {
	return symbol == "USDC" || symbol == "USDC.E"
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
