// Package pricing converts token counts into USD costs.
//
// Unit prices are supplied by a Provider (per-million-token USD rates for
// the four token categories). Versioned model ids are mapped onto a small
// set of canonical families; unknown models fall back to a default tier so
// cost computation never fails.
//
// The Calculator is pure and deterministic given its provider, so cost
// recomputation after a price-table refresh is reproducible.
package pricing

import "strings"

// ModelPricing holds per-million-token USD unit prices.
type ModelPricing struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheWrite float64 `json:"cache_write"`
	CacheRead  float64 `json:"cache_read"`
}

// Provider supplies unit prices for a model.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// PricesFor returns unit prices for the given model id.
	// The boolean reports whether the provider had data for the model;
	// callers fall back to default tiers when it is false.
	PricesFor(model string) (ModelPricing, bool)
}

// CurrencyProvider supplies USD-to-target conversion multipliers.
type CurrencyProvider interface {
	// RateFor returns the multiplier converting USD into the given
	// ISO currency code. The boolean reports whether a rate is known;
	// callers use 1.0 (USD) when it is false.
	RateFor(code string) (float64, bool)
}

// Family is a canonical pricing tier.
type Family string

const (
	// FamilyOpus covers all opus-class model ids.
	FamilyOpus Family = "opus"

	// FamilySonnet covers sonnet-class ids and is the default tier.
	FamilySonnet Family = "sonnet"

	// FamilyHaiku covers all haiku-class model ids.
	FamilyHaiku Family = "haiku"
)

// defaultTiers holds the built-in fallback unit prices per family.
var defaultTiers = map[Family]ModelPricing{
	FamilyOpus: {
		Input:      15.0,
		Output:     75.0,
		CacheWrite: 18.75,
		CacheRead:  1.50,
	},
	FamilySonnet: {
		Input:      3.0,
		Output:     15.0,
		CacheWrite: 3.75,
		CacheRead:  0.30,
	},
	FamilyHaiku: {
		Input:      0.80,
		Output:     4.0,
		CacheWrite: 1.0,
		CacheRead:  0.08,
	},
}

// FamilyFor maps a versioned model id to its canonical pricing family.
//
// Any id containing "opus" maps to the opus tier, any id containing
// "haiku" to the haiku tier, and everything else (including unknown
// vendors) to the sonnet tier.
func FamilyFor(model string) Family {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "opus"):
		return FamilyOpus
	case strings.Contains(m, "haiku"):
		return FamilyHaiku
	default:
		return FamilySonnet
	}
}

// DefaultPrices returns the built-in fallback prices for a model.
func DefaultPrices(model string) ModelPricing {
	return defaultTiers[FamilyFor(model)]
}

// StaticProvider is a Provider backed by a fixed table keyed by model id
// prefix. It is used for tests and as the built-in default when no live
// price source is wired in.
type StaticProvider struct {
	table map[string]ModelPricing
}

// NewStaticProvider creates a provider over a fixed price table.
//
// A nil table yields a provider that knows no models, which makes every
// lookup fall through to the default tiers.
func NewStaticProvider(table map[string]ModelPricing) *StaticProvider {
	return &StaticProvider{table: table}
}

// PricesFor implements Provider.PricesFor using exact match, then the
// longest matching prefix for determinism.
func (p *StaticProvider) PricesFor(model string) (ModelPricing, bool) {
	if p.table == nil {
		return ModelPricing{}, false
	}

	if prices, ok := p.table[model]; ok {
		return prices, true
	}

	var bestKey string
	var bestPrices ModelPricing
	for key, prices := range p.table {
		if strings.HasPrefix(model, key) && len(key) > len(bestKey) {
			bestKey = key
			bestPrices = prices
		}
	}
	if bestKey != "" {
		return bestPrices, true
	}

	return ModelPricing{}, false
}

// StaticCurrency is a CurrencyProvider backed by a fixed rate table.
type StaticCurrency struct {
	rates map[string]float64
}

// NewStaticCurrency creates a currency provider over fixed USD rates.
func NewStaticCurrency(rates map[string]float64) *StaticCurrency {
	return &StaticCurrency{rates: rates}
}

// RateFor implements CurrencyProvider.RateFor. USD always resolves to 1.
func (c *StaticCurrency) RateFor(code string) (float64, bool) {
	if strings.EqualFold(code, "USD") {
		return 1.0, true
	}
	if c.rates == nil {
		return 0, false
	}
	rate, ok := c.rates[strings.ToUpper(code)]
	return rate, ok
}
