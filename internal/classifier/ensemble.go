package classifier

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultEnsembleWeights are the voting weights of rf, gb, xgb, svm and mlp.
var DefaultEnsembleWeights = []float64{1.0, 1.2, 1.1, 0.8, 0.9}

// Member is one named base learner of an Ensemble.
type Member struct {
	Name      string
	Estimator Estimator
}

// Ensemble combines heterogeneous members by weighted soft voting.
type Ensemble struct {
	Members     []Member
	Weights     []float64
	ClassLabels []string
}

// NewDefaultEnsemble creates the standard five-member ensemble:
// random forest, gradient boosting, xgboost-style boosting, linear SVM and MLP.
func NewDefaultEnsemble(weights []float64, seed uint64) (*Ensemble, error) {
	forest := DefaultForestParams()
	forest.MaxDepth = 0
	members := []Member{
		{Name: "rf", Estimator: NewRandomForest(forest, seed)},
		{Name: "gb", Estimator: NewGradientBoosting(BoostingParams{Variant: VariantGradient, NEstimators: 100, MaxDepth: 3, LearningRate: 0.1})},
		{Name: "xgb", Estimator: NewGradientBoosting(DefaultBoostingParams(VariantXGBoost))},
		{Name: "svm", Estimator: NewLinearSVM(DefaultSVMParams(), seed)},
		{Name: "mlp", Estimator: NewMLP(DefaultMLPParams(), seed)},
	}
	return NewEnsemble(members, weights)
}

// NewEnsemble creates an ensemble over members with one weight each.
func NewEnsemble(members []Member, weights []float64) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("ensemble needs at least one member")
	}
	if len(weights) != len(members) {
		return nil, fmt.Errorf("ensemble has %d members but %d weights", len(members), len(weights))
	}
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("ensemble weight %d is negative", i)
		}
	}
	return &Ensemble{Members: members, Weights: append([]float64(nil), weights...)}, nil
}

// Fit trains every member concurrently on the same data.
func (e *Ensemble) Fit(ctx context.Context, X [][]float64, y []string) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range e.Members {
		g.Go(func() error {
			if err := m.Estimator.Fit(gctx, X, y); err != nil {
				return fmt.Errorf("ensemble member %s: %w", m.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.ClassLabels, _ = encodeLabels(y)
	return nil
}

// Predict returns the class with the highest weighted probability per row.
func (e *Ensemble) Predict(X [][]float64) []string {
	return argmaxLabels(e.PredictProba(X), e.ClassLabels)
}

// PredictProba returns the weighted average of member probabilities.
func (e *Ensemble) PredictProba(X [][]float64) [][]float64 {
	probs := make([][][]float64, len(e.Members))
	for i, m := range e.Members {
		probs[i] = m.Estimator.PredictProba(X)
	}
	return WeightedAverage(probs, e.Weights)
}

// Classes returns the fitted class labels.
func (e *Ensemble) Classes() []string {
	return e.ClassLabels
}

// MemberAccuracy scores every member and the ensemble itself on a labeled set.
func (e *Ensemble) MemberAccuracy(X [][]float64, y []string) map[string]float64 {
	out := make(map[string]float64, len(e.Members)+1)
	for _, m := range e.Members {
		out[m.Name] = Accuracy(y, m.Estimator.Predict(X))
	}
	out["ensemble"] = Accuracy(y, e.Predict(X))
	return out
}

// WeightedAverage combines per-member probability matrices, all over the same
// classes, into one. Each output row sums to 1 when the inputs do.
func WeightedAverage(probs [][][]float64, weights []float64) [][]float64 {
	if len(probs) == 0 {
		return nil
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	rows := len(probs[0])
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, len(probs[0][i]))
		for m, p := range probs {
			for k, v := range p[i] {
				row[k] += weights[m] * v
			}
		}
		if total > 0 {
			for k := range row {
				row[k] /= total
			}
		}
		out[i] = row
	}
	return out
}
