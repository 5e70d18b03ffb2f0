package ml_test

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churnboard/customer"
	"churnboard/ml"
	"churnboard/ml/mltest"
)

func decode(t *testing.T, b *ml.Bundle) (*ml.Bundle, error) {
	t.Helper()
	return ml.DecodeBundle(bytes.NewReader(mltest.Encode(t, b)))
}

func TestAssembleFollowsReferenceOrder(t *testing.T) {
	reference := customer.Columns()
	slices.Reverse(reference)

	row, err := ml.Assemble(mltest.Record(), reference)
	require.NoError(t, err)
	assert.Equal(t, reference, row.Columns)

	contract, ok := row.Cell(customer.Contract)
	require.True(t, ok)
	assert.Equal(t, "Month-to-month", contract.Text)
	assert.Equal(t, "Electronic check", row.Cells[0].Text)
	assert.Equal(t, 1.0, row.Cells[len(row.Cells)-1].Number)
}

func TestAssembleRejectsBadInput(t *testing.T) {
	rec := mltest.Record()
	rec.Contract = "Three year"
	_, err := ml.Assemble(rec, customer.Columns())
	var sme *ml.SchemaMismatchError
	require.ErrorAs(t, err, &sme)
	assert.Equal(t, customer.Contract, sme.Field)

	rec = mltest.Record()
	rec.TechSupport = ""
	_, err = ml.Assemble(rec, customer.Columns())
	require.ErrorAs(t, err, &sme)
	assert.Equal(t, customer.TechSupport, sme.Field)

	_, err = ml.Assemble(mltest.Record(), append(customer.Columns(), "Churn"))
	require.ErrorAs(t, err, &sme)
	assert.Equal(t, "Churn", sme.Field)

	_, err = ml.Assemble(mltest.Record(), customer.Columns()[1:])
	require.ErrorAs(t, err, &sme)
	assert.Equal(t, customer.Tenure, sme.Field)
}

func TestBundlePipelineRandomForest(t *testing.T) {
	b := mltest.Bundle(t)

	row, err := b.Assemble(mltest.Record())
	require.NoError(t, err)
	vec, err := b.Transform(row)
	require.NoError(t, err)
	require.Len(t, vec, len(mltest.SelectedFeatures))
	assert.InDelta(t, (1-32.4)/24.6, vec[0], 1e-12)
	assert.Equal(t, 1.0, vec[3])

	pred, err := b.Predict(ml.RandomForestModel, vec)
	require.NoError(t, err)
	assert.Equal(t, "Yes", pred.Label)
	assert.InDelta(t, 0.35, pred.Probability("No"), 1e-9)
	assert.InDelta(t, 0.65, pred.Probability("Yes"), 1e-9)
}

func TestBundlePipelineGradientBoosting(t *testing.T) {
	b := mltest.Bundle(t)

	row, err := b.Assemble(mltest.Record())
	require.NoError(t, err)
	vec, err := b.Transform(row)
	require.NoError(t, err)

	pred, err := b.Predict(ml.GradientBoostingModel, vec)
	require.NoError(t, err)
	want := 1 / (1 + math.Exp(-0.2))
	assert.Equal(t, "Yes", pred.Label)
	assert.InDelta(t, want, pred.Probability("Yes"), 1e-9)
}

func TestPredictionProperties(t *testing.T) {
	b := mltest.Bundle(t)
	contracts := []string{"Month-to-month", "One year", "Two year"}
	services := []string{"DSL", "Fiber optic", "No"}

	for _, id := range ml.ModelIDs() {
		for _, contract := range contracts {
			for _, service := range services {
				for _, tenure := range []int{0, 1, 40, 75} {
					rec := mltest.Record()
					rec.Contract = contract
					rec.InternetService = service
					rec.Tenure = tenure

					row, err := b.Assemble(rec)
					require.NoError(t, err)
					vec, err := b.Transform(row)
					require.NoError(t, err)
					again, err := b.Transform(row)
					require.NoError(t, err)
					assert.Equal(t, vec, again)

					pred, err := b.Predict(id, vec)
					require.NoError(t, err)
					require.Len(t, pred.Probabilities, 2)
					sum := 0.0
					best := pred.Probabilities[0]
					for _, p := range pred.Probabilities {
						assert.GreaterOrEqual(t, p.Probability, 0.0)
						sum += p.Probability
						if p.Probability > best.Probability {
							best = p
						}
					}
					assert.InDelta(t, 1.0, sum, 1e-6)
					assert.Equal(t, best.Label, pred.Label)
				}
			}
		}
	}
}

func TestBoundaryRecords(t *testing.T) {
	b := mltest.Bundle(t)
	for _, rec := range []customer.Record{
		func() customer.Record { r := mltest.Record(); r.Tenure, r.MonthlyCharges, r.TotalCharges = 0, 0, 0; return r }(),
		func() customer.Record { r := mltest.Record(); r.Tenure = 75; return r }(),
	} {
		row, err := b.Assemble(rec)
		require.NoError(t, err)
		vec, err := b.Transform(row)
		require.NoError(t, err)
		_, err = b.Predict(ml.RandomForestModel, vec)
		require.NoError(t, err)
	}
}

func TestTransformUnknownCategory(t *testing.T) {
	raw := mltest.NewBundle()
	// Train-time data never saw "No phone service".
	for i, col := range raw.CatPreprocessor.Columns {
		if col == customer.MultipleLines {
			raw.CatPreprocessor.Categories[i] = []string{"No", "Yes"}
		}
	}
	raw.TransformedColumns = raw.CatPreprocessor.OutputColumns()
	b, err := decode(t, raw)
	require.NoError(t, err)

	rec := mltest.Record()
	rec.MultipleLines = customer.NoPhoneService
	row, err := b.Assemble(rec)
	require.NoError(t, err)

	_, err = b.Transform(row)
	var uce *ml.UnknownCategoryError
	require.ErrorAs(t, err, &uce)
	assert.Equal(t, customer.MultipleLines, uce.Field)
}

func TestDecodeBundleRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *ml.Bundle)
	}{
		{"wrong version", func(b *ml.Bundle) { b.FormatVersion = "2" }},
		{"missing reference feature", func(b *ml.Bundle) { b.ReferenceFeatures = b.ReferenceFeatures[1:] }},
		{"extra reference feature", func(b *ml.Bundle) { b.ReferenceFeatures = append(b.ReferenceFeatures, "customerID") }},
		{"transformed columns drift", func(b *ml.Bundle) {
			b.TransformedColumns[0], b.TransformedColumns[1] = b.TransformedColumns[1], b.TransformedColumns[0]
		}},
		{"unknown selected feature", func(b *ml.Bundle) { b.SelectedFeatures = append(b.SelectedFeatures, "gender_Male") }},
		{"scaler width", func(b *ml.Bundle) { b.NumTransformer.Mean = b.NumTransformer.Mean[:2] }},
		{"missing forest", func(b *ml.Bundle) { b.RandomForest = nil }},
		{"tree feature out of range", func(b *ml.Bundle) {
			b.GradientBoosting.Trees[0] = ml.NewDecisionTree([]ml.TreeNode{
				{FeatureIdx: 99, LeftChild: 1, RightChild: 2},
				{IsLeaf: true, Value: []float64{0}},
				{IsLeaf: true, Value: []float64{0}},
			})
		}},
		{"three classes", func(b *ml.Bundle) { b.RandomForest.ClassLabels = []string{"No", "Yes", "Maybe"} }},
		{"forest labels not churn", func(b *ml.Bundle) { b.RandomForest.ClassLabels = []string{"stay", "leave"} }},
		{"boosting positive class first", func(b *ml.Bundle) { b.GradientBoosting.ClassLabels = []string{"Yes", "No"} }},
		{"duplicate labels", func(b *ml.Bundle) { b.RandomForest.ClassLabels = []string{"Yes", "Yes"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mltest.NewBundle()
			tt.mutate(b)
			_, err := decode(t, b)
			assert.Error(t, err)
		})
	}

	_, err := ml.DecodeBundle(bytes.NewReader([]byte("not json")))
	assert.Error(t, err)
}

func TestModelDispatch(t *testing.T) {
	b := mltest.Bundle(t)

	id, err := ml.ParseModelID("XGBoost Classifier")
	require.NoError(t, err)
	c, err := b.Classifier(id)
	require.NoError(t, err)
	assert.Same(t, b.GradientBoosting, c)

	_, err = ml.ParseModelID("Logistic Regression")
	var sme *ml.SchemaMismatchError
	require.True(t, errors.As(err, &sme))
	assert.Equal(t, "model", sme.Field)

	_, err = b.Predict(ml.RandomForestModel, []float64{1, 2})
	assert.Error(t, err)
}
