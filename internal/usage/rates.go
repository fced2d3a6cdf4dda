package usage

// ProviderRates are USD prices per million tokens for one provider.
type ProviderRates struct {
	InputPerMTok  float64 `koanf:"input_per_mtok"`
	OutputPerMTok float64 `koanf:"output_per_mtok"`
}

// defaultRates is the built-in per-provider price table. Unknown providers
// fall back to the "default" entry.
var defaultRates = map[string]ProviderRates{
	"openai":    {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"anthropic": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"deepseek":  {InputPerMTok: 0.27, OutputPerMTok: 1.10},
	"default":   {InputPerMTok: 1.00, OutputPerMTok: 4.00},
}

// RateTable resolves provider prices and computes request cost.
type RateTable struct {
	rates map[string]ProviderRates
}

// NewRateTable builds a rate table from configured overrides layered over
// the defaults.
func NewRateTable(overrides map[string]ProviderRates) *RateTable {
	rates := make(map[string]ProviderRates, len(defaultRates)+len(overrides))
	for provider, r := range defaultRates {
		rates[provider] = r
	}
	for provider, r := range overrides {
		rates[provider] = r
	}
	return &RateTable{rates: rates}
}

// Rates returns the prices for provider, falling back to the default entry.
func (t *RateTable) Rates(provider string) ProviderRates {
	if r, ok := t.rates[provider]; ok {
		return r
	}
	return t.rates["default"]
}

// Cost computes the USD cost of a request against provider's prices.
func (t *RateTable) Cost(provider string, inputTokens, outputTokens int64) float64 {
	r := t.Rates(provider)
	return float64(inputTokens)/1e6*r.InputPerMTok + float64(outputTokens)/1e6*r.OutputPerMTok
}
