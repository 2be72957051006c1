package scorer

import (
	"context"
	"fmt"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/features"
	"github.com/opensource-finance/shrike/internal/model"
)

// Ensemble scores with the trained artifact: derive the features the
// model declares, standardize them with the fitted scaler, and combine
// the per-classifier fraud probabilities with the artifact's convex
// weights. In single-model mode only the first classifier is consulted,
// at full weight.
type Ensemble struct {
	artifact    *model.Artifact
	history     HistoryFunc
	singleModel bool
}

// NewEnsemble creates the model-backed strategy. The artifact is shared
// read-only; it was validated at load.
func NewEnsemble(artifact *model.Artifact, history HistoryFunc, singleModel bool) *Ensemble {
	return &Ensemble{artifact: artifact, history: history, singleModel: singleModel}
}

func (s *Ensemble) Name() string {
	if s.singleModel {
		return "single-model"
	}
	return "ensemble"
}

func (s *Ensemble) RequiredFields() []string {
	return append([]string{"trans_num", "cc_num"}, features.RequiredRawFields()...)
}

func (s *Ensemble) Threshold() float64 { return s.artifact.Threshold }

// Score runs the inference pipeline. A classifier failure is reported as
// a scoring error: fatal for this request, not for the process.
func (s *Ensemble) Score(ctx context.Context, raw domain.RawTransaction) (*Result, error) {
	derived, err := features.Derive(raw, s.callHistory(ctx))
	if err != nil {
		return nil, err
	}

	vector, err := features.Vector(derived, s.artifact.Features)
	if err != nil {
		return nil, err
	}

	scaled, err := s.artifact.Scaler.Transform(vector)
	if err != nil {
		return nil, err
	}

	classifiers := s.artifact.Classifiers
	if s.singleModel {
		classifiers = classifiers[:1]
	}

	var score float64
	for _, clf := range classifiers {
		p, err := clf.PredictProba(scaled)
		if err != nil {
			return nil, fmt.Errorf("%w: classifier %s: %v", domain.ErrScoring, clf.Name(), err)
		}
		weight := clf.Weight()
		if s.singleModel {
			weight = 1.0
		}
		score += weight * p
	}

	// Convex weights over probabilities keep this in [0,1]; clamp in
	// case floating error pushes it outside.
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return &Result{Score: score}, nil
}

// callHistory adapts the context-carrying history lookup to the
// deriver's synchronous interface.
func (s *Ensemble) callHistory(ctx context.Context) features.History {
	if s.history == nil {
		return nil
	}
	return historyAdapter{ctx: ctx, fn: s.history}
}

type historyAdapter struct {
	ctx context.Context
	fn  HistoryFunc
}

func (h historyAdapter) LastSeen(ccNum string) (int64, bool) {
	return h.fn(h.ctx, ccNum)
}
