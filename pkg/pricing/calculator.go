package pricing

// tokensPerMillion is the unit-price denominator.
const tokensPerMillion = 1_000_000

// Usage carries the four token counters priced by the calculator.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
}

// Calculator computes record costs from a price provider.
//
// The calculator never fails: models the provider has no data for are
// priced with the built-in default tier for their family.
type Calculator struct {
	provider Provider
}

// NewCalculator creates a Calculator over the given provider.
//
// A nil provider is valid and prices everything from the default tiers.
func NewCalculator(provider Provider) *Calculator {
	return &Calculator{provider: provider}
}

// Cost returns the USD cost for the given usage on the given model.
//
// cost = sum(tokenCount_i / 1,000,000 * unitPrice_i) over the four
// token categories. The result is always >= 0 for non-negative counts,
// and strictly increases when any token count increases.
func (c *Calculator) Cost(model string, usage Usage) float64 {
	prices := c.pricesFor(model)

	cost := float64(usage.InputTokens) * prices.Input / tokensPerMillion
	cost += float64(usage.OutputTokens) * prices.Output / tokensPerMillion
	cost += float64(usage.CacheCreationTokens) * prices.CacheWrite / tokensPerMillion
	cost += float64(usage.CacheReadTokens) * prices.CacheRead / tokensPerMillion

	return cost
}

// pricesFor resolves unit prices, falling back to the default tier.
func (c *Calculator) pricesFor(model string) ModelPricing {
	if c.provider != nil {
		if prices, ok := c.provider.PricesFor(model); ok {
			return prices
		}
	}
	return DefaultPrices(model)
}
