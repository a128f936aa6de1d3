// Package classifier trains and serves the risk-level classifier.
//
// A Model owns a fitted StandardScaler and one Estimator chosen by Strategy.
// Estimators are implemented here in pure Go: CART trees, a random forest,
// softmax gradient boosting (plain, second-order "xgboost" and "lightgbm"
// flavours), a one-vs-rest linear SVM, a multilayer perceptron, and a
// weighted soft-voting Ensemble over five of them.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Strategy selects the estimator a Model trains.
type Strategy string

const (
	StrategyRandomForest     Strategy = "random_forest"
	StrategyGradientBoosting Strategy = "gradient_boosting"
	StrategyXGBoost          Strategy = "xgboost"
	StrategyLightGBM         Strategy = "lightgbm"
	StrategyEnsemble         Strategy = "ensemble"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{
	StrategyRandomForest, StrategyGradientBoosting, StrategyXGBoost, StrategyLightGBM, StrategyEnsemble,
}

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown classification strategy: %q", s)
}

// Estimator is the capability set every strategy implements.
// Classes is sorted and valid after a successful Fit; PredictProba columns
// follow Classes.
type Estimator interface {
	Fit(ctx context.Context, X [][]float64, y []string) error
	Predict(X [][]float64) []string
	PredictProba(X [][]float64) [][]float64
	Classes() []string
}

// Importancer is implemented by estimators exposing feature importances.
type Importancer interface {
	FeatureImportances() []float64
}

var (
	// ErrModelNotTrained is returned when a model is used before training.
	ErrModelNotTrained = errors.New("model not trained")
	// ErrNotReady is returned for predictions requested while training runs.
	ErrNotReady = errors.New("model not ready: training in progress")
	// ErrEmptyTrainingSet is wrapped in a TrainingError when there is nothing to train on.
	ErrEmptyTrainingSet = errors.New("empty training set")
	// ErrNonFiniteFeature is returned for NaN or infinite feature values.
	ErrNonFiniteFeature = errors.New("non-finite feature value")
)

// TrainingError reports a failed training run with its diagnostic context.
type TrainingError struct {
	Strategy Strategy
	Records  int
	Err      error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training %s on %d records: %v", e.Strategy, e.Records, e.Err)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// encodeLabels returns the sorted distinct labels and each sample's class index.
func encodeLabels(y []string) (classes []string, idx []int) {
	seen := make(map[string]struct{})
	for _, label := range y {
		if _, ok := seen[label]; !ok {
			seen[label] = struct{}{}
			classes = append(classes, label)
		}
	}
	sort.Strings(classes)
	pos := make(map[string]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	idx = make([]int, len(y))
	for i, label := range y {
		idx[i] = pos[label]
	}
	return classes, idx
}

func checkTrainingSet(X [][]float64, y []string) error {
	if len(X) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return fmt.Errorf("feature rows (%d) and labels (%d) differ", len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
	}
	return nil
}

// argmaxLabels maps probability rows to their most probable class.
// Ties resolve to the first class.
func argmaxLabels(proba [][]float64, classes []string) []string {
	out := make([]string, len(proba))
	for i, p := range proba {
		best := 0
		for k := 1; k < len(p); k++ {
			if p[k] > p[best] {
				best = k
			}
		}
		out[i] = classes[best]
	}
	return out
}

func subsetRows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func subsetLabels(y []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

// normalizeSum scales v to sum to 1; an all-zero vector is left unchanged.
func normalizeSum(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		return v
	}
	for i := range v {
		v[i] /= sum
	}
	return v
}
