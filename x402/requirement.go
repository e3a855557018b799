package x402

import (
	"encoding/json"
)

// paymentRequiredBody is the subset of a 402 response body the gateway reads.
type paymentRequiredBody struct {
	X402Version int               `json:"x402Version"`
	Accepts     []json.RawMessage `json:"accepts"`
}

type acceptEntry struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Amount            *string                `json:"amount"`
	MaxAmountRequired *string                `json:"maxAmountRequired"`
	PayTo             string                 `json:"payTo"`
	Asset             string                 `json:"asset"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra"`
}

// acceptSelector decodes only the fields used to pick an entry.
type acceptSelector struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
}

// ExtractPaymentRequirement returns the first "exact" accepts entry on a
// supported network, validated and with addresses checksummed. It returns
// nil when the body is not a 402 payload, no entry matches, or the matching
// entry is malformed.
func ExtractPaymentRequirement(body []byte) *PaymentRequirement {
	var payload paymentRequiredBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}

	for _, raw := range payload.Accepts {
		var sel acceptSelector
		if err := json.Unmarshal(raw, &sel); err != nil {
			continue
		}
		if sel.Scheme != SchemeExact || !IsSupportedNetwork(sel.Network) {
			continue
		}
		return parseAccept(raw, payload.X402Version)
	}
	return nil
}

// ExtractPaymentRequirementFrom is ExtractPaymentRequirement for a body that
// has already been decoded into generic JSON values.
func ExtractPaymentRequirementFrom(body interface{}) *PaymentRequirement {
	if body == nil {
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	return ExtractPaymentRequirement(raw)
}

func parseAccept(raw json.RawMessage, version int) *PaymentRequirement {
	var entry acceptEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil
	}

	var amount string
	switch {
	case entry.Amount != nil:
		amount = *entry.Amount
	case entry.MaxAmountRequired != nil:
		amount = *entry.MaxAmountRequired
	default:
		return nil
	}
	if ValidateAmount(amount) != nil {
		return nil
	}

	payTo, err := NormalizeAddress(entry.PayTo)
	if err != nil {
		return nil
	}
	asset, err := NormalizeAddress(entry.Asset)
	if err != nil {
		return nil
	}
	if entry.MaxTimeoutSeconds < 0 {
		return nil
	}
	if version == 0 {
		version = X402Version
	}

	return &PaymentRequirement{
		X402Version:       version,
		Scheme:            SchemeExact,
		Network:           entry.Network,
		Amount:            amount,
		PayTo:             payTo,
		Asset:             asset,
		Resource:          entry.Resource,
		Description:       entry.Description,
		MaxTimeoutSeconds: entry.MaxTimeoutSeconds,
		Extra:             entry.Extra,
	}
}

// DomainInfo returns the EIP-712 domain name and version for the requirement,
// preferring the upstream's extra.name/extra.version over network defaults.
func (r *PaymentRequirement) DomainInfo() (name, version string) {
	if cfg, err := GetNetworkConfig(r.Network); err == nil {
		name, version = cfg.EIP712Name, cfg.EIP712Version
	}
	if r.Extra != nil {
		if v, ok := r.Extra["name"].(string); ok && v != "" {
			name = v
		}
		if v, ok := r.Extra["version"].(string); ok && v != "" {
			version = v
		}
	}
	return name, version
}
