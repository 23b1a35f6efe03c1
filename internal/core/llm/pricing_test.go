package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimatedCostUSD(t *testing.T) {
	resp := GenerateResponse{
		Model:        "gpt-4o",
		InputTokens:  1000,
		OutputTokens: 500,
	}

	// 1000 * $5/1M + 500 * $15/1M = 0.0125
	assert.InDelta(t, 0.0125, resp.EstimatedCostUSD(), 1e-9)
}

func TestPricingForMatchesLongestPrefix(t *testing.T) {
	// gpt-4o-mini は gpt-4o より長いプレフィックスとして優先される
	mini := PricingFor("gpt-4o-mini-2024-07-18")
	assert.Equal(t, pricingTable["gpt-4o-mini"], mini)

	full := PricingFor("gpt-4o-2024-08-06")
	assert.Equal(t, pricingTable["gpt-4o"], full)
}

func TestPricingForUnknownModelFallsBack(t *testing.T) {
	assert.Equal(t, defaultPricing, PricingFor("some-future-model"))
}
