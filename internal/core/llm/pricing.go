package llm

import "strings"

// Pricing はモデルごとのトークン単価（USD/トークン）を表す
type Pricing struct {
	InputPerToken  float64
	OutputPerToken float64
}

// defaultPricing は料金表に載っていないモデルに適用する単価（gpt-4o相当）
var defaultPricing = Pricing{
	InputPerToken:  0.000005, // $5 / 1M tokens
	OutputPerToken: 0.000015, // $15 / 1M tokens
}

// pricingTable はモデル名プレフィックスごとの料金表
var pricingTable = map[string]Pricing{
	"gpt-4o":      {InputPerToken: 0.000005, OutputPerToken: 0.000015},
	"gpt-4o-mini": {InputPerToken: 0.00000015, OutputPerToken: 0.0000006},
}

// PricingFor はモデル名に対応する単価を返す
// バージョンサフィックス付きのモデル名（例: gpt-4o-2024-08-06）にも
// 最長一致するプレフィックスで対応する
func PricingFor(model string) Pricing {
	best := ""
	for prefix := range pricingTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return defaultPricing
	}
	return pricingTable[best]
}
