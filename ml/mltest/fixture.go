// Package mltest provides a small, fully valid model bundle for tests.
package mltest

import (
	"bytes"
	"encoding/json"
	"slices"
	"testing"

	"churnboard/customer"
	"churnboard/ml"
)

// SelectedFeatures is the projected feature list of the fixture bundle.
var SelectedFeatures = []string{
	customer.Tenure,
	customer.MonthlyCharges,
	customer.TotalCharges,
	"Contract_Month-to-month",
	"InternetService_Fiber optic",
	"PaymentMethod_Electronic check",
	"OnlineSecurity_No",
	"TechSupport_No",
	"PaperlessBilling_Yes",
	"SeniorCitizen_Yes",
}

func leaf(v ...float64) ml.TreeNode {
	return ml.TreeNode{FeatureIdx: -1, LeftChild: -1, RightChild: -1, IsLeaf: true, Value: v}
}

func split(feature int, threshold float64, left, right int) ml.TreeNode {
	return ml.TreeNode{FeatureIdx: feature, Threshold: threshold, LeftChild: left, RightChild: right}
}

// NewBundle returns the fixture in its exported form. Callers may alter it
// before encoding to produce invalid artifacts.
func NewBundle() *ml.Bundle {
	reference := customer.Columns()

	enc := ml.OneHotEncoder{Drop: ml.DropIfBinary}
	for _, f := range customer.Schema {
		if f.Kind == customer.Numeric {
			enc.Passthrough = append(enc.Passthrough, f.Name)
			continue
		}
		cats := append([]string(nil), f.Values...)
		slices.Sort(cats)
		enc.Columns = append(enc.Columns, f.Name)
		enc.Categories = append(enc.Categories, cats)
	}

	return &ml.Bundle{
		FormatVersion:      ml.FormatVersion,
		ModelVersion:       "fixture-1",
		ReferenceFeatures:  reference,
		CatPreprocessor:    enc,
		TransformedColumns: enc.OutputColumns(),
		NumericalColumns:   []string{customer.Tenure, customer.MonthlyCharges, customer.TotalCharges},
		NumTransformer: ml.Scaler{
			Kind:  ml.ScalerStandard,
			Mean:  []float64{32.4, 64.8, 2283.3},
			Scale: []float64{24.6, 30.1, 2266.8},
		},
		SelectedFeatures: SelectedFeatures,
		RandomForest: &ml.RandomForest{
			ClassLabels: []string{"No", "Yes"},
			Trees: []ml.DecisionTree{
				ml.NewDecisionTree([]ml.TreeNode{
					split(3, 0.5, 1, 2),
					leaf(90, 10),
					split(0, -0.5, 3, 4),
					leaf(30, 70),
					leaf(70, 30),
				}),
				ml.NewDecisionTree([]ml.TreeNode{
					split(4, 0.5, 1, 2),
					leaf(80, 20),
					leaf(40, 60),
				}),
			},
		},
		GradientBoosting: &ml.GradientBoosting{
			ClassLabels:  []string{"No", "Yes"},
			Init:         -0.8,
			LearningRate: 0.5,
			Trees: []ml.DecisionTree{
				ml.NewDecisionTree([]ml.TreeNode{
					split(3, 0.5, 1, 2),
					leaf(-1.0),
					leaf(1.2),
				}),
				ml.NewDecisionTree([]ml.TreeNode{
					split(5, 0.5, 1, 2),
					leaf(-0.4),
					leaf(0.8),
				}),
			},
		},
	}
}

// Encode renders a bundle as the JSON artifact served to the loader.
func Encode(t testing.TB, b *ml.Bundle) []byte {
	t.Helper()
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("encode bundle: %v", err)
	}
	return data
}

// BundleJSON is the encoded fixture.
func BundleJSON(t testing.TB) []byte {
	return Encode(t, NewBundle())
}

// Bundle decodes the fixture through the same validation as production.
func Bundle(t testing.TB) *ml.Bundle {
	t.Helper()
	b, err := ml.DecodeBundle(bytes.NewReader(BundleJSON(t)))
	if err != nil {
		t.Fatalf("decode fixture bundle: %v", err)
	}
	return b
}

// Record is a month-to-month fiber customer in the first month of service.
func Record() customer.Record {
	return customer.Record{
		Tenure:           1,
		MonthlyCharges:   70.35,
		TotalCharges:     70.35,
		SeniorCitizen:    "No",
		Partner:          "No",
		Dependents:       "No",
		InternetService:  "Fiber optic",
		MultipleLines:    "No",
		OnlineSecurity:   "No",
		OnlineBackup:     "No",
		DeviceProtection: "No",
		TechSupport:      "No",
		StreamingTV:      "No",
		StreamingMovies:  "No",
		Contract:         "Month-to-month",
		PaperlessBilling: "Yes",
		PaymentMethod:    "Electronic check",
	}
}
