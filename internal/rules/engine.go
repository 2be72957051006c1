// Package rules provides the CEL-Go based additive rule engine.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/shrike/internal/domain"
)

// Engine evaluates boolean CEL rules against a transaction and sums the
// weights of the rules that trigger. Rules are independent and additive,
// so evaluation order never affects the score.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Transaction variables exposed to rule expressions. Absent raw
	// fields surface as zero values here; the rule path is permissive
	// by design, in contrast to the strict feature deriver.
	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amt", cel.DoubleType),
		cel.Variable("category", cel.StringType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("state", cel.StringType),
		cel.Variable("city_pop", cel.DoubleType),
		cel.Variable("distance_km", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("day_of_week", cel.IntType),
		cel.Variable("velocity_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the transaction data for rule evaluation.
type EvaluateInput struct {
	TransNum      string
	Raw           domain.RawTransaction
	VelocityCount int64
}

// Evaluate runs all loaded rules and returns the additive score, capped
// at 1.0, together with the per-rule outcomes. A rule that fails to
// evaluate contributes nothing but is reported in its hit.
func (e *Engine) Evaluate(ctx context.Context, input *EvaluateInput) (float64, []domain.RuleHit) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return 0, nil
	}

	activation := e.activation(input)

	// Parallel evaluation with a bounded semaphore.
	hits := make([]domain.RuleHit, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			hits[idx] = evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	var score float64
	for _, hit := range hits {
		if hit.Triggered {
			score += hit.Weight
		}
	}
	if score > 1.0 {
		score = 1.0
	}

	// Stable order for responses and tests.
	sort.Slice(hits, func(i, j int) bool { return hits[i].RuleID < hits[j].RuleID })

	return score, hits
}

// activation maps raw transaction fields into CEL variables. Absent
// numeric fields become 0 and absent strings become "", never an error.
func (e *Engine) activation(input *EvaluateInput) map[string]any {
	raw := input.Raw

	unixTime := raw.Int("unix_time")
	txMap := map[string]any{
		"trans_num": input.TransNum,
		"cc_num":    raw.String("cc_num"),
		"merchant":  raw.String("merchant"),
		"category":  raw.String("category"),
		"amt":       raw.Float("amt"),
		"city":      raw.String("city"),
		"state":     raw.String("state"),
	}

	return map[string]any{
		"tx":             txMap,
		"amt":            raw.Float("amt"),
		"category":       raw.String("category"),
		"merchant":       raw.String("merchant"),
		"state":          raw.String("state"),
		"city_pop":       raw.Float("city_pop"),
		"distance_km":    DistanceKm(raw),
		"hour":           (unixTime / 3600) % 24,
		"day_of_week":    (unixTime / 86400) % 7,
		"velocity_count": input.VelocityCount,
	}
}

func evaluateRule(rule *CompiledRule, activation map[string]any) domain.RuleHit {
	hit := domain.RuleHit{
		RuleID: rule.Config.ID,
		Weight: rule.Config.Weight,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		hit.Err = fmt.Sprintf("evaluation error: %v", err)
		return hit
	}

	if b, ok := out.(types.Bool); ok && bool(b) {
		hit.Triggered = true
		hit.Reason = rule.Config.Reason
	}
	return hit
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones. Enables
// hot-reloading of operator rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.Weight < 0 {
		return nil, fmt.Errorf("rule %s: weight must be non-negative", cfg.ID)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
