package domain

// RuleConfig defines an additive fraud rule. Each rule is a boolean CEL
// expression; when it evaluates true its weight is added to the rule
// score. Rules are independent, so evaluation order never matters.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// CEL expression that must evaluate to a bool
	Expression string `json:"expression"`

	// Weight added to the score when the expression is true
	Weight float64 `json:"weight"`

	// Reason reported when the rule triggers
	Reason string `json:"reason"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleHit is the outcome of evaluating a single rule.
type RuleHit struct {
	RuleID    string  `json:"ruleId"`
	Triggered bool    `json:"triggered"`
	Weight    float64 `json:"weight"`
	Reason    string  `json:"reason,omitempty"`
	Err       string  `json:"error,omitempty"`
}
