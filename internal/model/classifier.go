package model

import (
	"fmt"
	"math"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Classifier predicts the probability of the positive (fraud) class for
// a scaled feature vector. Implementations are immutable after load.
type Classifier interface {
	Name() string
	Weight() float64
	PredictProba(x []float64) (float64, error)
}

func buildClassifier(cf classifierFile, featureCount int) (Classifier, error) {
	if cf.Name == "" {
		return nil, schemaErr("name is required")
	}
	if cf.Weight < 0 || cf.Weight > 1 {
		return nil, schemaErr("weight %v outside [0,1]", cf.Weight)
	}

	switch cf.Kind {
	case "logistic":
		if len(cf.Coefficients) != featureCount {
			return nil, schemaErr("%d coefficients for %d features", len(cf.Coefficients), featureCount)
		}
		return &logisticClassifier{
			name:         cf.Name,
			weight:       cf.Weight,
			coefficients: cf.Coefficients,
			intercept:    cf.Intercept,
		}, nil

	case "tree":
		if err := validateTree(cf.Nodes, featureCount); err != nil {
			return nil, err
		}
		return &treeClassifier{
			name:   cf.Name,
			weight: cf.Weight,
			nodes:  cf.Nodes,
		}, nil

	default:
		return nil, schemaErr("unknown classifier kind %q", cf.Kind)
	}
}

// logisticClassifier is a logistic regression: sigmoid(w.x + b).
type logisticClassifier struct {
	name         string
	weight       float64
	coefficients []float64
	intercept    float64
}

func (c *logisticClassifier) Name() string    { return c.name }
func (c *logisticClassifier) Weight() float64 { return c.weight }

func (c *logisticClassifier) PredictProba(x []float64) (float64, error) {
	if len(x) != len(c.coefficients) {
		return 0, fmt.Errorf("%w: classifier %s expects %d features, got %d",
			domain.ErrScoring, c.name, len(c.coefficients), len(x))
	}
	z := c.intercept
	for i, v := range x {
		z += v * c.coefficients[i]
	}
	return sigmoid(z), nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// treeNode is one node of a flattened binary decision tree. Leaves have
// Left == -1 and Right == -1 and carry the fraud probability; internal
// nodes route on Feature <= Threshold.
type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

func (n treeNode) leaf() bool { return n.Left < 0 && n.Right < 0 }

func validateTree(nodes []treeNode, featureCount int) error {
	if len(nodes) == 0 {
		return schemaErr("tree has no nodes")
	}
	for i, n := range nodes {
		if n.leaf() {
			if n.Value < 0 || n.Value > 1 {
				return schemaErr("leaf %d value %v outside [0,1]", i, n.Value)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= featureCount {
			return schemaErr("node %d references feature %d of %d", i, n.Feature, featureCount)
		}
		if n.Left < 0 || n.Left >= len(nodes) || n.Right < 0 || n.Right >= len(nodes) {
			return schemaErr("node %d has out-of-range children", i)
		}
		if n.Left <= i || n.Right <= i {
			// Children must come after their parent; rules out cycles.
			return schemaErr("node %d children do not advance", i)
		}
	}
	return nil
}

// treeClassifier walks a flattened decision tree to a leaf probability.
type treeClassifier struct {
	name   string
	weight float64
	nodes  []treeNode
}

func (c *treeClassifier) Name() string    { return c.name }
func (c *treeClassifier) Weight() float64 { return c.weight }

func (c *treeClassifier) PredictProba(x []float64) (float64, error) {
	idx := 0
	for {
		n := c.nodes[idx]
		if n.leaf() {
			return n.Value, nil
		}
		if n.Feature >= len(x) {
			return 0, fmt.Errorf("%w: classifier %s references feature %d, vector has %d",
				domain.ErrScoring, c.name, n.Feature, len(x))
		}
		if x[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}
