package payai

import (
	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/pricing"
)

type sampleSpec struct {
	id, name, description, category string
	tags                             []string
	url, method                      string
	amount, asset, network           string
}

var sampleSpecs = []sampleSpec{
	{
		id: "sample-translate", name: "Translator", category: "ai",
		description: "Translates short texts between common languages.",
		tags:        []string{"nlp", "translation"},
		url:         "https://demo.payai.network/agents/translate", method: hyphae.MethodPOST,
		amount: "10000", asset: "USDC", network: NetworkSolana,
	},
	{
		id: "sample-price-feed", name: "Token Price Feed", category: "data",
		description: "Spot prices for major tokens.",
		tags:        []string{"prices", "defi"},
		url:         "https://demo.payai.network/agents/prices", method: hyphae.MethodGET,
		amount: "1000", asset: "USDC", network: NetworkSolana,
	},
	{
		id: "sample-image-caption", name: "Image Captioner", category: "ai",
		description: "Generates a caption for an image URL.",
		tags:        []string{"vision"},
		url:         "https://demo.payai.network/agents/caption", method: hyphae.MethodPOST,
		amount: "500000", asset: "SOL", network: NetworkSolanaDevnet,
	},
}

// SampleAgents returns the static listings served when PayAI is unreachable.
// Every sample is tagged metadata.source="mock-fallback".
func SampleAgents() []hyphae.UnifiedAgent {
	agents := make([]hyphae.UnifiedAgent, 0, len(sampleSpecs))
	for _, s := range sampleSpecs {
		agent, err := hyphae.NewUnifiedAgent(Name, s.id, hyphae.Endpoint{URL: s.url, Method: s.method})
		if err != nil {
			continue
		}
		agent.Name = s.name
		agent.Description = s.description
		agent.Category = s.category
		agent.Tags = append(agent.Tags, s.tags...)

		price := pricing.Normalize(s.amount, s.asset, s.network)
		agent.Pricing = hyphae.Pricing{
			AmountUSDCCents: price.Cents,
			RawAmount:       s.amount,
			RawAsset:        s.asset,
			Network:         s.network,
			Unavailable:     price.Unavailable,
		}
		agent.SetMetadata(hyphae.MetadataSourceKey, hyphae.MetadataSourceMockFallback)
		agents = append(agents, *agent)
	}
	return agents
}
