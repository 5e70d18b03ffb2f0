package ml

import "fmt"

// CategoricalEncoder expands an assembled row into the encoder's learned
// column set.
type CategoricalEncoder interface {
	Encode(row Row) ([]float64, error)
	OutputColumns() []string
}

// NumericScaler scales the numerical subset in place using stored parameters.
type NumericScaler interface {
	Apply(values []float64) error
}

// Replayer applies a fitted encoder and scaler, then projects the result
// onto the selected feature list. It holds no mutable state.
type Replayer struct {
	encoder     CategoricalEncoder
	scaler      NumericScaler
	numericIdx  []int
	selectedIdx []int
	width       int
}

// NewReplayer resolves the numerical and selected column names against the
// encoder's output columns.
func NewReplayer(encoder CategoricalEncoder, scaler NumericScaler, numerical, selected []string) (*Replayer, error) {
	columns := encoder.OutputColumns()
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate transformed column %q", c)
		}
		index[c] = i
	}

	resolve := func(kind string, names []string) ([]int, error) {
		idx := make([]int, len(names))
		seen := make(map[string]bool, len(names))
		for i, name := range names {
			pos, ok := index[name]
			if !ok {
				return nil, fmt.Errorf("%s column %q is not a transformed column", kind, name)
			}
			if seen[name] {
				return nil, fmt.Errorf("%s column %q listed twice", kind, name)
			}
			seen[name] = true
			idx[i] = pos
		}
		return idx, nil
	}

	numericIdx, err := resolve("numerical", numerical)
	if err != nil {
		return nil, err
	}
	selectedIdx, err := resolve("selected", selected)
	if err != nil {
		return nil, err
	}
	if len(selectedIdx) == 0 {
		return nil, fmt.Errorf("no selected features")
	}

	return &Replayer{
		encoder:     encoder,
		scaler:      scaler,
		numericIdx:  numericIdx,
		selectedIdx: selectedIdx,
		width:       len(columns),
	}, nil
}

// Transform turns an assembled row into the model input vector.
func (r *Replayer) Transform(row Row) ([]float64, error) {
	encoded, err := r.encoder.Encode(row)
	if err != nil {
		return nil, err
	}
	if len(encoded) != r.width {
		return nil, fmt.Errorf("encoder produced %d columns, want %d", len(encoded), r.width)
	}

	numeric := make([]float64, len(r.numericIdx))
	for i, pos := range r.numericIdx {
		numeric[i] = encoded[pos]
	}
	if err := r.scaler.Apply(numeric); err != nil {
		return nil, err
	}
	for i, pos := range r.numericIdx {
		encoded[pos] = numeric[i]
	}

	out := make([]float64, len(r.selectedIdx))
	for i, pos := range r.selectedIdx {
		out[i] = encoded[pos]
	}
	return out, nil
}
