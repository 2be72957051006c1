// Package scorer provides the fraud scoring strategies and the decision
// policy that turns a score into a verdict.
package scorer

import (
	"context"
	"fmt"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/model"
	"github.com/opensource-finance/shrike/internal/rules"
)

// Result is the outcome of scoring one transaction.
type Result struct {
	// Score is the fraud probability in [0,1].
	Score float64

	// Reasons lists triggered rules, when the strategy has them.
	Reasons []string
}

// Scorer converts a raw transaction into a fraud score. Implementations
// are safe for concurrent use; they share only the immutable artifact
// and the rule engine's read path.
type Scorer interface {
	// Name identifies the strategy in stored records and logs.
	Name() string

	// RequiredFields lists the raw fields the strategy cannot score
	// without. The pipeline validates these before dispatching.
	RequiredFields() []string

	// Threshold is the decision cutoff for this strategy.
	Threshold() float64

	// Score computes the fraud score for a raw transaction.
	Score(ctx context.Context, raw domain.RawTransaction) (*Result, error)
}

// HistoryFunc returns the unix time of the card's previous transaction,
// or ok=false when none is known.
type HistoryFunc func(ctx context.Context, ccNum string) (int64, bool)

// VelocityFunc returns the transaction count for a card in the current
// velocity window.
type VelocityFunc func(ctx context.Context, ccNum string) int64

// New selects the scoring strategy for the configured mode. The
// registry must already hold a loaded artifact for the model-backed
// modes.
func New(mode domain.ScorerMode, engine *rules.Engine, registry *model.Registry, history HistoryFunc, velocity VelocityFunc) (Scorer, error) {
	switch mode {
	case domain.ModeRules:
		return NewRuleBased(engine, velocity), nil

	case domain.ModeSingleModel, domain.ModeEnsemble:
		if registry == nil || registry.Artifact() == nil {
			return nil, fmt.Errorf("%w: scorer mode %q needs a loaded model artifact", domain.ErrArtifactSchema, mode)
		}
		return NewEnsemble(registry.Artifact(), history, mode == domain.ModeSingleModel), nil

	default:
		return nil, fmt.Errorf("unsupported scorer mode: %s", mode)
	}
}
