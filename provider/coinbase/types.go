package coinbase

import "strings"

// discoveryListResponse is the body of GET /discovery/resources.
type discoveryListResponse struct {
	X402Version int                 `json:"x402Version"`
	Items       []discoveryResource `json:"items"`
	Pagination  discoveryPagination `json:"pagination"`
}

type discoveryPagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type discoveryResource struct {
	Resource    string             `json:"resource"`
	Type        string             `json:"type"`
	X402Version int                `json:"x402Version"`
	Accepts     []acceptEntry      `json:"accepts"`
	LastUpdated string             `json:"lastUpdated"`
	Metadata    *discoveryMetadata `json:"metadata,omitempty"`
}

type discoveryMetadata struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Provider    string   `json:"provider,omitempty"`
}

// acceptEntry accepts both the v1 (maxAmountRequired) and v2 (amount) field
// names.
type acceptEntry struct {
	Scheme            string        `json:"scheme"`
	Network           string        `json:"network"`
	Amount            string        `json:"amount"`
	MaxAmountRequired string        `json:"maxAmountRequired"`
	PayTo             string        `json:"payTo"`
	Asset             string        `json:"asset"`
	Description       string        `json:"description"`
	OutputSchema      *outputSchema `json:"outputSchema,omitempty"`
}

type outputSchema struct {
	Input *struct {
		Type   string `json:"type"`
		Method string `json:"method"`
	} `json:"input,omitempty"`
}

func (a acceptEntry) amount() string {
	if a.Amount != "" {
		return a.Amount
	}
	return a.MaxAmountRequired
}

func (a acceptEntry) method() string {
	if a.OutputSchema == nil || a.OutputSchema.Input == nil {
		return ""
	}
	switch m := strings.ToUpper(a.OutputSchema.Input.Method); m {
	case "GET", "POST":
		return m
	}
	return ""
}
