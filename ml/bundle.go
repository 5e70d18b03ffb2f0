package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"churnboard/customer"
)

// FormatVersion is the bundle layout this package understands.
const FormatVersion = "1"

// Bundle is the exported preprocessing and model artifact. It is decoded
// once and shared read-only; nothing mutates it after DecodeBundle returns.
type Bundle struct {
	FormatVersion      string            `json:"format_version"`
	ModelVersion       string            `json:"model_version"`
	ReferenceFeatures  []string          `json:"reference_features"`
	CatPreprocessor    OneHotEncoder     `json:"cat_preprocessor"`
	TransformedColumns []string          `json:"transformed_columns"`
	NumericalColumns   []string          `json:"numerical_columns"`
	NumTransformer     Scaler            `json:"num_transformer"`
	SelectedFeatures   []string          `json:"selected_features"`
	RandomForest       *RandomForest     `json:"random_forest_classifier"`
	GradientBoosting   *GradientBoosting `json:"gradient_boosting_classifier"`

	replayer *Replayer
}

// DecodeBundle parses and validates a JSON bundle.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if err := b.prepare(); err != nil {
		return nil, err
	}
	return &b, nil
}

// prepare checks the bundle shape against the customer schema and builds
// the replayer.
func (b *Bundle) prepare() error {
	if b.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported bundle format version %q", b.FormatVersion)
	}
	if err := checkReference(b.ReferenceFeatures); err != nil {
		return fmt.Errorf("reference features: %w", err)
	}

	enc := &b.CatPreprocessor
	if err := enc.validate(); err != nil {
		return err
	}
	covered := make(map[string]int, len(b.ReferenceFeatures))
	for _, col := range enc.Columns {
		f, ok := customer.Lookup(col)
		if !ok || !slices.Contains(b.ReferenceFeatures, col) {
			return fmt.Errorf("encoder column %q is not a reference feature", col)
		}
		if f.Kind != customer.Categorical {
			return fmt.Errorf("encoder column %q is numeric", col)
		}
		covered[col]++
	}
	for _, col := range enc.Passthrough {
		f, ok := customer.Lookup(col)
		if !ok || f.Kind != customer.Numeric {
			return fmt.Errorf("passthrough column %q is not a numeric reference feature", col)
		}
		covered[col]++
	}
	for _, col := range b.ReferenceFeatures {
		if covered[col] != 1 {
			return fmt.Errorf("reference feature %q is handled %d times by the encoder", col, covered[col])
		}
	}

	if !slices.Equal(enc.OutputColumns(), b.TransformedColumns) {
		return errors.New("transformed columns do not match the encoder output")
	}
	if err := b.NumTransformer.validate(len(b.NumericalColumns)); err != nil {
		return err
	}

	replayer, err := NewReplayer(enc, &b.NumTransformer, b.NumericalColumns, b.SelectedFeatures)
	if err != nil {
		return err
	}

	if b.RandomForest == nil {
		return errors.New("missing random forest classifier")
	}
	if err := b.RandomForest.validate(len(b.SelectedFeatures)); err != nil {
		return fmt.Errorf("random forest: %w", err)
	}
	if b.GradientBoosting == nil {
		return errors.New("missing gradient boosting classifier")
	}
	if err := b.GradientBoosting.validate(len(b.SelectedFeatures)); err != nil {
		return fmt.Errorf("gradient boosting: %w", err)
	}

	b.replayer = replayer
	return nil
}

// Version identifies the bundle in logs and history.
func (b *Bundle) Version() string {
	if b.ModelVersion == "" {
		return "v" + b.FormatVersion
	}
	return b.ModelVersion
}

// Assemble lays a record out in the bundle's reference order.
func (b *Bundle) Assemble(rec customer.Record) (Row, error) {
	return Assemble(rec, b.ReferenceFeatures)
}

// Transform replays preprocessing on an assembled row.
func (b *Bundle) Transform(row Row) ([]float64, error) {
	if b.replayer == nil {
		return nil, errors.New("bundle not prepared")
	}
	return b.replayer.Transform(row)
}

// Classifier selects one of the two bundled models.
func (b *Bundle) Classifier(id ModelID) (Classifier, error) {
	switch id {
	case RandomForestModel:
		return b.RandomForest, nil
	case GradientBoostingModel:
		return b.GradientBoosting, nil
	}
	return nil, &SchemaMismatchError{Field: "model", Value: string(id), Reason: "not an available model"}
}

// Predict runs the selected model on a transformed vector.
func (b *Bundle) Predict(id ModelID, features []float64) (Prediction, error) {
	c, err := b.Classifier(id)
	if err != nil {
		return Prediction{}, err
	}
	if len(features) != len(b.SelectedFeatures) {
		return Prediction{}, fmt.Errorf("expected %d features, got %d", len(b.SelectedFeatures), len(features))
	}
	return Classify(id, c, features)
}
