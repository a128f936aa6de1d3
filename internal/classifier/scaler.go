package classifier

import (
	"fmt"
	"math"
)

// StandardScaler centers features on their training mean and scales them to
// unit variance. Constant features are centered only.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitStandardScaler computes per-column mean and population standard deviation.
func FitStandardScaler(X [][]float64) (*StandardScaler, error) {
	if len(X) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	d := len(X[0])
	s := &StandardScaler{Mean: make([]float64, d), Scale: make([]float64, d)}
	n := float64(len(X))
	for i, row := range X {
		if len(row) != d {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), d)
		}
		if err := checkFinite(i, row); err != nil {
			return nil, err
		}
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range X {
		for j, v := range row {
			diff := v - s.Mean[j]
			s.Scale[j] += diff * diff
		}
	}
	for j := range s.Scale {
		s.Scale[j] = math.Sqrt(s.Scale[j] / n)
		if s.Scale[j] < 1e-12 {
			s.Scale[j] = 1
		}
	}
	return s, nil
}

// Transform returns a scaled copy of X. Rows holding NaN or infinite values
// are rejected with ErrNonFiniteFeature.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("row %d has %d features, scaler expects %d", i, len(row), len(s.Mean))
		}
		if err := checkFinite(i, row); err != nil {
			return nil, err
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// Width is the number of features the scaler was fit on.
func (s *StandardScaler) Width() int {
	return len(s.Mean)
}

func checkFinite(i int, row []float64) error {
	for j, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("row %d column %d: %w", i, j, ErrNonFiniteFeature)
		}
	}
	return nil
}
