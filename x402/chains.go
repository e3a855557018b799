package x402

import (
	"fmt"
	"strings"
)

// Supported network names.
const (
	NetworkBase        = "base"
	NetworkBaseSepolia = "base-sepolia"
)

// NetworkConfig holds the EVM parameters of a supported network.
type NetworkConfig struct {
	// Network is the network name used on the wire.
	Network string

	// CAIP2 is the equivalent CAIP-2 identifier.
	CAIP2 string

	// ChainID is the EIP-155 chain id bound into the signing domain.
	ChainID int64

	// USDCAddress is the official Circle USDC contract address.
	USDCAddress string

	// EIP712Name is the default EIP-712 domain "name" of the USDC contract.
	EIP712Name string

	// EIP712Version is the default EIP-712 domain "version" of the USDC contract.
	EIP712Version string
}

var (
	// BaseMainnet is the configuration for Base mainnet.
	BaseMainnet = NetworkConfig{
		Network:       NetworkBase,
		CAIP2:         "eip155:8453",
		ChainID:       8453,
		USDCAddress:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		EIP712Name:    "USD Coin",
		EIP712Version: "2",
	}

	// BaseSepolia is the configuration for Base Sepolia testnet.
	BaseSepolia = NetworkConfig{
		Network:       NetworkBaseSepolia,
		CAIP2:         "eip155:84532",
		ChainID:       84532,
		USDCAddress:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		EIP712Name:    "USDC",
		EIP712Version: "2",
	}
)

// networkConfigs is the fixed allow-list of payable networks.
var networkConfigs = map[string]NetworkConfig{
	NetworkBase:        BaseMainnet,
	NetworkBaseSepolia: BaseSepolia,
}

// GetNetworkConfig returns the configuration of a supported network.
func GetNetworkConfig(network string) (NetworkConfig, error) {
	cfg, ok := networkConfigs[network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return cfg, nil
}

// IsSupportedNetwork reports whether network is on the allow-list.
func IsSupportedNetwork(network string) bool {
	_, ok := networkConfigs[network]
	return ok
}

// ChainID returns the EIP-155 chain id of a supported network.
func ChainID(network string) (int64, error) {
	cfg, err := GetNetworkConfig(network)
	if err != nil {
		return 0, err
	}
	return cfg.ChainID, nil
}

// CanonicalNetwork maps a CAIP-2 identifier of a supported network to its
// wire name. Other values are returned unchanged.
func CanonicalNetwork(network string) string {
	for name, cfg := range networkConfigs {
		if strings.EqualFold(cfg.CAIP2, network) {
			return name
		}
	}
	return network
}

// AssetSymbol returns "USDC" when address is the USDC contract of any
// supported network, and the address unchanged otherwise.
func AssetSymbol(address string) string {
	for _, cfg := range networkConfigs {
		if strings.EqualFold(cfg.USDCAddress, address) {
			return "USDC"
		}
	}
	return address
}
