package classifier

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestParams configures a RandomForest.
type ForestParams struct {
	NEstimators     int  `json:"n_estimators"`
	MaxDepth        int  `json:"max_depth"`
	MinSamplesSplit int  `json:"min_samples_split"`
	Balanced        bool `json:"balanced"`
}

// DefaultForestParams matches the standard 100-tree, depth-10, balanced forest.
func DefaultForestParams() ForestParams {
	return ForestParams{NEstimators: 100, MaxDepth: 10, MinSamplesSplit: 2, Balanced: true}
}

// RandomForest averages Gini trees grown on bootstrap samples with sqrt(d)
// features considered per split.
type RandomForest struct {
	Params      ForestParams `json:"params"`
	Seed        uint64       `json:"seed"`
	ClassLabels []string     `json:"classes"`
	Trees       [][]Node     `json:"trees"`
	Importances []float64    `json:"importances"`
}

// NewRandomForest creates an unfitted forest.
func NewRandomForest(params ForestParams, seed uint64) *RandomForest {
	return &RandomForest{Params: params, Seed: seed}
}

// Fit grows the trees concurrently. Each tree draws from its own seeded
// source, so the result does not depend on scheduling.
func (f *RandomForest) Fit(ctx context.Context, X [][]float64, y []string) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	classes, yi := encodeLabels(y)
	w := sampleWeights(yi, len(classes), f.Params.Balanced)
	d := len(X[0])
	params := TreeParams{
		MaxDepth:        f.Params.MaxDepth,
		MinSamplesSplit: f.Params.MinSamplesSplit,
		MaxFeatures:     max(1, int(math.Sqrt(float64(d)))),
	}

	n := max(1, f.Params.NEstimators)
	trees := make([][]Node, n)
	importances := make([][]float64, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < n; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(f.Seed, uint64(t)))
			idx := make([]int, len(X))
			for i := range idx {
				idx[i] = rng.IntN(len(X))
			}
			trees[t], importances[t] = growClassTree(X, yi, w, idx, len(classes), params, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	imp := make([]float64, d)
	for _, ti := range importances {
		for j, v := range ti {
			imp[j] += v
		}
	}
	f.ClassLabels = classes
	f.Trees = trees
	f.Importances = normalizeSum(imp)
	return nil
}

// Predict returns the most probable class per row.
func (f *RandomForest) Predict(X [][]float64) []string {
	return argmaxLabels(f.PredictProba(X), f.ClassLabels)
}

// PredictProba averages the leaf distributions of all trees.
func (f *RandomForest) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		p := make([]float64, len(f.ClassLabels))
		for _, nodes := range f.Trees {
			for k, v := range leafFor(nodes, x).Value {
				p[k] += v
			}
		}
		out[i] = normalizeSum(p)
	}
	return out
}

// Classes returns the fitted class labels.
func (f *RandomForest) Classes() []string {
	return f.ClassLabels
}

// FeatureImportances returns the mean impurity decrease per feature.
func (f *RandomForest) FeatureImportances() []float64 {
	return f.Importances
}
