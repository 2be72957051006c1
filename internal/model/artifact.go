// Package model loads and serves the persisted fraud model bundle.
package model

import (
	"fmt"
	"math"

	"github.com/opensource-finance/shrike/internal/domain"
)

// weightTolerance is the accepted floating error when checking that the
// ensemble weights form a convex combination.
const weightTolerance = 1e-6

// Artifact is the immutable trained model bundle: a fitted scaler, one
// or more classifiers with combination weights, the feature order they
// expect, and the tuned decision threshold. Loaded once per process and
// shared read-only by all scoring calls.
type Artifact struct {
	Version     string
	Features    []string
	Scaler      *StandardScaler
	Classifiers []Classifier
	Threshold   float64
}

// artifactFile is the on-disk JSON shape of a model bundle.
type artifactFile struct {
	Version     string           `json:"version"`
	Features    []string         `json:"features"`
	Scaler      *scalerFile      `json:"scaler"`
	Classifiers []classifierFile `json:"classifiers"`
	Threshold   *float64         `json:"threshold"`
}

type scalerFile struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

type classifierFile struct {
	Name   string  `json:"name"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight"`

	// logistic
	Coefficients []float64 `json:"coefficients,omitempty"`
	Intercept    float64   `json:"intercept"`

	// tree
	Nodes []treeNode `json:"nodes,omitempty"`
}

// validate builds an Artifact from the decoded file, checking every
// schema invariant the scorer later relies on. Errors wrap
// ErrArtifactSchema so the registry can refuse to serve.
func (f *artifactFile) validate() (*Artifact, error) {
	if len(f.Features) == 0 {
		return nil, schemaErr("feature list is empty")
	}
	if f.Scaler == nil {
		return nil, schemaErr("scaler is missing")
	}
	if len(f.Classifiers) == 0 {
		// Weights cannot sum to 1.0 over zero terms; fail at load,
		// never at scoring time.
		return nil, schemaErr("classifier list is empty")
	}

	n := len(f.Features)
	if len(f.Scaler.Mean) != n || len(f.Scaler.Scale) != n {
		return nil, schemaErr("scaler dimensions %dx%d do not match %d features",
			len(f.Scaler.Mean), len(f.Scaler.Scale), n)
	}
	for i, s := range f.Scaler.Scale {
		if s == 0 {
			return nil, schemaErr("scaler scale[%d] is zero", i)
		}
	}

	artifact := &Artifact{
		Version:   f.Version,
		Features:  f.Features,
		Scaler:    &StandardScaler{Mean: f.Scaler.Mean, Scale: f.Scaler.Scale},
		Threshold: 0.5,
	}
	if f.Threshold != nil {
		t := *f.Threshold
		if t <= 0 || t >= 1 {
			return nil, schemaErr("threshold %v outside (0,1)", t)
		}
		artifact.Threshold = t
	}

	var weightSum float64
	for i, cf := range f.Classifiers {
		clf, err := buildClassifier(cf, n)
		if err != nil {
			return nil, fmt.Errorf("classifier %d (%s): %w", i, cf.Name, err)
		}
		artifact.Classifiers = append(artifact.Classifiers, clf)
		weightSum += cf.Weight
	}

	if math.Abs(weightSum-1.0) > weightTolerance {
		return nil, schemaErr("classifier weights sum to %v, want 1.0", weightSum)
	}

	return artifact, nil
}

func schemaErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrArtifactSchema, fmt.Sprintf(format, args...))
}

// StandardScaler applies the per-feature standardization fitted during
// training: (x - mean) / scale.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Transform standardizes a feature vector. The vector length must match
// the fitted dimensions.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("%w: feature vector length %d, scaler expects %d",
			domain.ErrScoring, len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}
