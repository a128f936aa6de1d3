package classifier

import (
	"context"
	"fmt"
	"math"
)

// BoostingVariant selects how boosting trees are split and how leaves are valued.
type BoostingVariant string

const (
	// VariantGradient splits on residual variance and takes one Newton step per leaf.
	VariantGradient BoostingVariant = "gradient"
	// VariantXGBoost splits on second-order gain with L2-regularized leaves.
	VariantXGBoost BoostingVariant = "xgboost"
	// VariantLightGBM splits on second-order gain without leaf regularization.
	VariantLightGBM BoostingVariant = "lightgbm"
)

// BoostingParams configures GradientBoosting.
type BoostingParams struct {
	Variant      BoostingVariant `json:"variant"`
	NEstimators  int             `json:"n_estimators"`
	MaxDepth     int             `json:"max_depth"`
	LearningRate float64         `json:"learning_rate"`
	Lambda       float64         `json:"lambda"`
}

// DefaultBoostingParams returns the standard setup of each variant.
func DefaultBoostingParams(v BoostingVariant) BoostingParams {
	switch v {
	case VariantXGBoost:
		return BoostingParams{Variant: v, NEstimators: 100, MaxDepth: 6, LearningRate: 0.1, Lambda: 1}
	case VariantLightGBM:
		return BoostingParams{Variant: v, NEstimators: 100, MaxDepth: 5, LearningRate: 0.1}
	default:
		return BoostingParams{Variant: VariantGradient, NEstimators: 100, MaxDepth: 5, LearningRate: 0.1}
	}
}

// GradientBoosting is a softmax multi-class boosted tree ensemble: one
// regression tree per class per round, fit to the negative gradient of the
// multinomial deviance.
type GradientBoosting struct {
	Params      BoostingParams `json:"params"`
	ClassLabels []string       `json:"classes"`
	Init        []float64      `json:"init"`
	// Rounds[m][k] is the tree of class k in round m.
	Rounds      [][][]Node `json:"rounds"`
	Importances []float64  `json:"importances"`
}

// NewGradientBoosting creates an unfitted booster.
func NewGradientBoosting(params BoostingParams) *GradientBoosting {
	return &GradientBoosting{Params: params}
}

func (b *GradientBoosting) regressionParams(k int) (regressionParams, error) {
	p := regressionParams{tree: TreeParams{MaxDepth: b.Params.MaxDepth}, leafScale: 1}
	switch b.Params.Variant {
	case VariantGradient, "":
		p.leafScale = float64(k-1) / float64(k)
	case VariantXGBoost:
		p.secondOrder = true
		p.lambda = b.Params.Lambda
		p.minChildWeight = 1
	case VariantLightGBM:
		p.secondOrder = true
		p.lambda = b.Params.Lambda
		p.minChildWeight = 1e-3
	default:
		return p, fmt.Errorf("unknown boosting variant: %q", b.Params.Variant)
	}
	return p, nil
}

// Fit runs the boosting rounds. It checks ctx between rounds.
func (b *GradientBoosting) Fit(ctx context.Context, X [][]float64, y []string) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	classes, yi := encodeLabels(y)
	k := len(classes)
	b.ClassLabels = classes
	b.Rounds = nil
	b.Importances = make([]float64, len(X[0]))

	// Log class priors start the raw scores.
	b.Init = make([]float64, k)
	for _, c := range yi {
		b.Init[c]++
	}
	for c := range b.Init {
		b.Init[c] = math.Log(b.Init[c] / float64(len(yi)))
	}
	if k < 2 {
		return nil
	}

	params, err := b.regressionParams(k)
	if err != nil {
		return err
	}

	n := len(X)
	raw := make([][]float64, n)
	for i := range raw {
		raw[i] = append([]float64(nil), b.Init...)
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	lr := b.Params.LearningRate
	if lr <= 0 {
		lr = 0.1
	}

	for m := 0; m < b.Params.NEstimators; m++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		prob := make([][]float64, n)
		for i := range raw {
			prob[i] = softmax(raw[i])
		}
		round := make([][]Node, k)
		for c := 0; c < k; c++ {
			for i := 0; i < n; i++ {
				target := 0.0
				if yi[i] == c {
					target = 1
				}
				grad[i] = target - prob[i][c]
				hess[i] = math.Max(prob[i][c]*(1-prob[i][c]), 1e-16)
			}
			nodes, imp := growRegressionTree(X, grad, hess, params)
			round[c] = nodes
			for j, v := range imp {
				b.Importances[j] += v
			}
			for i := 0; i < n; i++ {
				raw[i][c] += lr * leafFor(nodes, X[i]).Value[0]
			}
		}
		b.Rounds = append(b.Rounds, round)
	}
	b.Importances = normalizeSum(b.Importances)
	return nil
}

func (b *GradientBoosting) rawScores(x []float64) []float64 {
	raw := append([]float64(nil), b.Init...)
	lr := b.Params.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	for _, round := range b.Rounds {
		for c, nodes := range round {
			raw[c] += lr * leafFor(nodes, x).Value[0]
		}
	}
	return raw
}

// Predict returns the most probable class per row.
func (b *GradientBoosting) Predict(X [][]float64) []string {
	return argmaxLabels(b.PredictProba(X), b.ClassLabels)
}

// PredictProba returns softmax probabilities of the raw class scores.
func (b *GradientBoosting) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = softmax(b.rawScores(x))
	}
	return out
}

// Classes returns the fitted class labels.
func (b *GradientBoosting) Classes() []string {
	return b.ClassLabels
}

// FeatureImportances returns the normalized total split gain per feature.
func (b *GradientBoosting) FeatureImportances() []float64 {
	return b.Importances
}

func softmax(z []float64) []float64 {
	out := make([]float64, len(z))
	if len(z) == 0 {
		return out
	}
	m := z[0]
	for _, v := range z[1:] {
		m = math.Max(m, v)
	}
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - m)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
