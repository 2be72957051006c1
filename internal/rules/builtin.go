package rules

import "github.com/opensource-finance/shrike/internal/domain"

// Builtin rule identifiers.
const (
	RuleHighAmount    = "rule-high-amount"
	RuleRiskyCategory = "rule-risky-category"
	RuleGeoMismatch   = "rule-geo-mismatch"
	RuleDenseCity     = "rule-dense-city"
)

// BuiltinRules returns the default additive rule set. Weights are fixed;
// the triggered weights sum to the rule-based fraud score, capped at 1.0.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:         RuleHighAmount,
			Name:       "High Amount",
			Expression: "amt > 5000.0",
			Weight:     0.4,
			Reason:     "transaction amount above 5000",
			Enabled:    true,
		},
		{
			ID:         RuleRiskyCategory,
			Name:       "Risky Category",
			Expression: `category in ["Luxury Goods", "Casino", "Cryptocurrency Exchange"]`,
			Weight:     0.3,
			Reason:     "high-risk merchant category",
			Enabled:    true,
		},
		{
			ID:         RuleGeoMismatch,
			Name:       "Geo Mismatch",
			Expression: "distance_km > 100.0",
			Weight:     0.2,
			Reason:     "payer and merchant more than 100km apart",
			Enabled:    true,
		},
		{
			ID:         RuleDenseCity,
			Name:       "Dense City",
			Expression: "city_pop > 5000000.0",
			Weight:     0.1,
			Reason:     "city population above 5 million",
			Enabled:    true,
		},
	}
}
