package ml

import "fmt"

const (
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
)

// Scaler replays a fitted numeric scaler over the bundle's numerical
// columns. Parameters are indexed like the numerical column list.
//
//	standard: (x - mean) / scale
//	minmax:   x*scale + min
type Scaler struct {
	Kind  string    `json:"kind"`
	Mean  []float64 `json:"mean,omitempty"`
	Scale []float64 `json:"scale"`
	Min   []float64 `json:"min,omitempty"`
}

// Apply scales values in place.
func (s *Scaler) Apply(values []float64) error {
	if len(values) != len(s.Scale) {
		return fmt.Errorf("scaler expects %d values, got %d", len(s.Scale), len(values))
	}
	for i, v := range values {
		switch s.Kind {
		case ScalerStandard:
			values[i] = (v - s.Mean[i]) / s.Scale[i]
		case ScalerMinMax:
			values[i] = v*s.Scale[i] + s.Min[i]
		}
	}
	return nil
}

func (s *Scaler) validate(columns int) error {
	if len(s.Scale) != columns {
		return fmt.Errorf("scaler has %d scale values for %d columns", len(s.Scale), columns)
	}
	switch s.Kind {
	case ScalerStandard:
		if len(s.Mean) != columns {
			return fmt.Errorf("scaler has %d means for %d columns", len(s.Mean), columns)
		}
		for i, sc := range s.Scale {
			if sc == 0 {
				return fmt.Errorf("scaler column %d has zero scale", i)
			}
		}
	case ScalerMinMax:
		if len(s.Min) != columns {
			return fmt.Errorf("scaler has %d minimums for %d columns", len(s.Min), columns)
		}
	default:
		return fmt.Errorf("unsupported scaler kind %q", s.Kind)
	}
	return nil
}
