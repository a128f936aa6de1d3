package classifier

import (
	"context"
	"math/rand/v2"
)

// SVMParams configures LinearSVM.
type SVMParams struct {
	// Lambda is the L2 regularization strength.
	Lambda float64 `json:"lambda"`
	Epochs int     `json:"epochs"`
	// Eta0 is the initial learning rate.
	Eta0 float64 `json:"eta0"`
}

// DefaultSVMParams returns the standard linear SVM setup.
func DefaultSVMParams() SVMParams {
	return SVMParams{Lambda: 1e-3, Epochs: 50, Eta0: 0.1}
}

// LinearSVM is a one-vs-rest linear hinge-loss classifier trained by
// stochastic subgradient descent. Probabilities are the softmax of the
// per-class margins.
type LinearSVM struct {
	Params      SVMParams   `json:"params"`
	Seed        uint64      `json:"seed"`
	ClassLabels []string    `json:"classes"`
	Weights     [][]float64 `json:"weights"`
	Bias        []float64   `json:"bias"`
}

// NewLinearSVM creates an unfitted SVM.
func NewLinearSVM(params SVMParams, seed uint64) *LinearSVM {
	return &LinearSVM{Params: params, Seed: seed}
}

// Fit trains one binary classifier per class.
func (s *LinearSVM) Fit(ctx context.Context, X [][]float64, y []string) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	classes, yi := encodeLabels(y)
	d := len(X[0])
	s.ClassLabels = classes
	s.Weights = make([][]float64, len(classes))
	s.Bias = make([]float64, len(classes))

	lambda, eta0 := s.Params.Lambda, s.Params.Eta0
	if lambda <= 0 {
		lambda = 1e-3
	}
	if eta0 <= 0 {
		eta0 = 0.1
	}
	rng := rand.New(rand.NewPCG(s.Seed, s.Seed))
	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}

	for c := range classes {
		w := make([]float64, d)
		var b float64
		t := 0
		for epoch := 0; epoch < s.Params.Epochs; epoch++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
			for _, i := range order {
				t++
				eta := eta0 / (1 + eta0*lambda*float64(t))
				target := -1.0
				if yi[i] == c {
					target = 1
				}
				margin := target * (dot(w, X[i]) + b)
				for j := range w {
					w[j] *= 1 - eta*lambda
				}
				if margin < 1 {
					for j, v := range X[i] {
						w[j] += eta * target * v
					}
					b += eta * target
				}
			}
		}
		s.Weights[c] = w
		s.Bias[c] = b
	}
	return nil
}

// Predict returns the class with the largest margin per row.
func (s *LinearSVM) Predict(X [][]float64) []string {
	return argmaxLabels(s.PredictProba(X), s.ClassLabels)
}

// PredictProba returns the softmax of the one-vs-rest margins.
func (s *LinearSVM) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		margins := make([]float64, len(s.ClassLabels))
		for c := range margins {
			margins[c] = dot(s.Weights[c], x) + s.Bias[c]
		}
		out[i] = softmax(margins)
	}
	return out
}

// Classes returns the fitted class labels.
func (s *LinearSVM) Classes() []string {
	return s.ClassLabels
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
