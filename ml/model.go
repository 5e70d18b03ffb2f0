package ml

import (
	"fmt"
	"math"
)

// Classifier is a fitted two-class model.
type Classifier interface {
	Classes() []string
	PredictProba(features []float64) ([]float64, error)
}

// ModelID names one of the bundled classifiers.
type ModelID string

const (
	RandomForestModel     ModelID = "Random Forest"
	GradientBoostingModel ModelID = "XGBoost Classifier"
)

// ModelIDs lists the selectable models in display order.
func ModelIDs() []ModelID {
	return []ModelID{RandomForestModel, GradientBoostingModel}
}

func ParseModelID(s string) (ModelID, error) {
	switch ModelID(s) {
	case RandomForestModel:
		return RandomForestModel, nil
	case GradientBoostingModel:
		return GradientBoostingModel, nil
	}
	return "", &SchemaMismatchError{Field: "model", Value: s, Reason: "not an available model"}
}

type ClassProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

type Prediction struct {
	Model         ModelID            `json:"model"`
	Label         string             `json:"label"`
	Probabilities []ClassProbability `json:"probabilities"`
}

// Probability returns the probability of a label, or 0 if absent.
func (p Prediction) Probability(label string) float64 {
	for _, cp := range p.Probabilities {
		if cp.Label == label {
			return cp.Probability
		}
	}
	return 0
}

// Classify runs a classifier and normalizes its output. The label is the
// most probable class, the first class on a tie.
func Classify(id ModelID, c Classifier, features []float64) (Prediction, error) {
	classes := c.Classes()
	proba, err := c.PredictProba(features)
	if err != nil {
		return Prediction{}, fmt.Errorf("%s: %w", id, err)
	}
	if len(proba) != len(classes) {
		return Prediction{}, fmt.Errorf("%s: %d probabilities for %d classes", id, len(proba), len(classes))
	}

	total := 0.0
	for i, p := range proba {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return Prediction{}, fmt.Errorf("%s: invalid probability %v for %s", id, p, classes[i])
		}
		total += p
	}
	if total == 0 {
		return Prediction{}, fmt.Errorf("%s: all probabilities are zero", id)
	}

	pred := Prediction{Model: id, Probabilities: make([]ClassProbability, len(classes))}
	best := 0
	for i, p := range proba {
		pred.Probabilities[i] = ClassProbability{Label: classes[i], Probability: p / total}
		if p > proba[best] {
			best = i
		}
	}
	pred.Label = classes[best]
	return pred, nil
}
