package ml

import (
	"errors"
	"fmt"
	"math"
)

// RandomForest averages the normalized leaf class distributions of its trees.
type RandomForest struct {
	ClassLabels []string       `json:"classes"`
	Trees       []DecisionTree `json:"trees"`
}

func (f *RandomForest) Classes() []string { return f.ClassLabels }

func (f *RandomForest) PredictProba(features []float64) ([]float64, error) {
	proba := make([]float64, len(f.ClassLabels))
	for i, tree := range f.Trees {
		leaf, err := tree.Leaf(features)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		total := 0.0
		for _, v := range leaf.Value {
			total += v
		}
		if total <= 0 {
			return nil, fmt.Errorf("tree %d: leaf has no samples", i)
		}
		for c, v := range leaf.Value {
			proba[c] += v / total
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.Trees))
	}
	return proba, nil
}

func (f *RandomForest) validate(featureCount int) error {
	if err := validateClasses(f.ClassLabels); err != nil {
		return err
	}
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for i, tree := range f.Trees {
		if err := tree.validate(featureCount, len(f.ClassLabels)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// GradientBoosting is a binary boosted ensemble. The positive class is the
// second entry of Classes; its probability is
// sigmoid(init + learning_rate*sum(leaf scores)).
type GradientBoosting struct {
	ClassLabels  []string       `json:"classes"`
	Init         float64        `json:"init"`
	LearningRate float64        `json:"learning_rate"`
	Trees        []DecisionTree `json:"trees"`
}

func (g *GradientBoosting) Classes() []string { return g.ClassLabels }

func (g *GradientBoosting) PredictProba(features []float64) ([]float64, error) {
	margin := 0.0
	for i, tree := range g.Trees {
		leaf, err := tree.Leaf(features)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		margin += leaf.Value[0]
	}
	p := sigmoid(g.Init + g.LearningRate*margin)
	return []float64{1 - p, p}, nil
}

func (g *GradientBoosting) validate(featureCount int) error {
	if err := validateClasses(g.ClassLabels); err != nil {
		return err
	}
	if g.ClassLabels[1] != LabelYes {
		return fmt.Errorf("positive class must be %s, got %s", LabelYes, g.ClassLabels[1])
	}
	if len(g.Trees) == 0 {
		return errors.New("boosting ensemble has no trees")
	}
	if g.LearningRate <= 0 || math.IsNaN(g.LearningRate) {
		return fmt.Errorf("invalid learning rate %v", g.LearningRate)
	}
	for i, tree := range g.Trees {
		if err := tree.validate(featureCount, 1); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Churn labels. Every bundled classifier predicts exactly these two.
const (
	LabelNo  = "No"
	LabelYes = "Yes"
)

func validateClasses(classes []string) error {
	if len(classes) != 2 {
		return fmt.Errorf("expected 2 classes, got %d", len(classes))
	}
	if !(classes[0] == LabelNo && classes[1] == LabelYes) && !(classes[0] == LabelYes && classes[1] == LabelNo) {
		return fmt.Errorf("classes %v must be %s and %s", classes, LabelNo, LabelYes)
	}
	return nil
}
