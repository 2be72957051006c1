package scorer

import (
	"context"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/rules"
)

// RuleBased scores with the additive rule engine alone: stateless,
// deterministic, no model dependency. Unlike the ensemble path it is
// permissive about absent fields - missing numerics read as 0 and a
// missing category is simply not risky, so it never rejects a payload
// beyond the shared trans_num/amt presence check.
type RuleBased struct {
	engine   *rules.Engine
	velocity VelocityFunc
}

// NewRuleBased creates the rule-based strategy.
func NewRuleBased(engine *rules.Engine, velocity VelocityFunc) *RuleBased {
	return &RuleBased{engine: engine, velocity: velocity}
}

func (s *RuleBased) Name() string { return "rule-based" }

func (s *RuleBased) RequiredFields() []string {
	return []string{"trans_num", "amt"}
}

func (s *RuleBased) Threshold() float64 { return 0.5 }

// Score sums the weights of the triggered rules, capped at 1.0.
func (s *RuleBased) Score(ctx context.Context, raw domain.RawTransaction) (*Result, error) {
	input := &rules.EvaluateInput{
		TransNum: raw.String("trans_num"),
		Raw:      raw,
	}
	if s.velocity != nil {
		input.VelocityCount = s.velocity(ctx, raw.String("cc_num"))
	}

	score, hits := s.engine.Evaluate(ctx, input)

	var reasons []string
	for _, hit := range hits {
		if hit.Triggered && hit.Reason != "" {
			reasons = append(reasons, hit.Reason)
		}
	}

	return &Result{Score: score, Reasons: reasons}, nil
}
