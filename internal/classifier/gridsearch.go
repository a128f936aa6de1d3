package classifier

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Grid is the random forest hyperparameter grid.
type Grid struct {
	NEstimators     []int `json:"n_estimators" mapstructure:"n_estimators"`
	MaxDepth        []int `json:"max_depth" mapstructure:"max_depth"`
	MinSamplesSplit []int `json:"min_samples_split" mapstructure:"min_samples_split"`
}

// DefaultGrid returns the 27-candidate standard grid.
func DefaultGrid() Grid {
	return Grid{
		NEstimators:     []int{50, 100, 200},
		MaxDepth:        []int{5, 10, 15},
		MinSamplesSplit: []int{2, 5, 10},
	}
}

// Candidates enumerates the grid with parameter names in alphabetical order,
// the last varying fastest: max_depth, min_samples_split, n_estimators.
func (g Grid) Candidates() []ForestParams {
	var out []ForestParams
	for _, depth := range g.MaxDepth {
		for _, split := range g.MinSamplesSplit {
			for _, n := range g.NEstimators {
				out = append(out, ForestParams{NEstimators: n, MaxDepth: depth, MinSamplesSplit: split, Balanced: true})
			}
		}
	}
	return out
}

// CVResult is the cross-validated score of one candidate.
type CVResult struct {
	Params     ForestParams `json:"params"`
	FoldScores []float64    `json:"fold_scores"`
	MeanScore  float64      `json:"mean_score"`
}

// SearchResult is the outcome of GridSearch. Estimator is the best candidate
// refit on all samples.
type SearchResult struct {
	Best      ForestParams
	BestScore float64
	Results   []CVResult
	Estimator *RandomForest
}

// StratifiedKFold assigns samples to k test folds without shuffling, keeping
// class proportions per fold as even as possible. Within a class, samples keep
// their order and fill folds contiguously.
func StratifiedKFold(y []string, k int) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", k)
	}
	if k > len(y) {
		return nil, fmt.Errorf("cannot split %d samples into %d folds", len(y), k)
	}

	// Classes are numbered by first appearance.
	code := make(map[string]int)
	enc := make([]int, len(y))
	for i, label := range y {
		c, ok := code[label]
		if !ok {
			c = len(code)
			code[label] = c
		}
		enc[i] = c
	}
	sortedEnc := append([]int(nil), enc...)
	sort.Ints(sortedEnc)

	// alloc[f][c] is the number of class-c samples in test fold f.
	alloc := make([][]int, k)
	for f := range alloc {
		alloc[f] = make([]int, len(code))
		for i := f; i < len(sortedEnc); i += k {
			alloc[f][sortedEnc[i]]++
		}
	}

	folds := make([][]int, k)
	next := make([]int, len(code))
	used := make([]int, len(code))
	for i, c := range enc {
		for used[c] >= alloc[next[c]][c] {
			next[c]++
			used[c] = 0
		}
		folds[next[c]] = append(folds[next[c]], i)
		used[c]++
	}
	return folds, nil
}

// GridSearch cross-validates every grid candidate by accuracy and refits the
// best on all samples. Ties keep the earliest candidate in grid order.
// Candidates are evaluated concurrently, at most workers at a time.
func GridSearch(ctx context.Context, X [][]float64, y []string, grid Grid, folds int, seed uint64, workers int) (*SearchResult, error) {
	if err := checkTrainingSet(X, y); err != nil {
		return nil, err
	}
	candidates := grid.Candidates()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("empty hyperparameter grid")
	}
	testFolds, err := StratifiedKFold(y, folds)
	if err != nil {
		return nil, err
	}
	trainFolds := make([][]int, len(testFolds))
	for f := range testFolds {
		inTest := make(map[int]struct{}, len(testFolds[f]))
		for _, i := range testFolds[f] {
			inTest[i] = struct{}{}
		}
		for i := range y {
			if _, ok := inTest[i]; !ok {
				trainFolds[f] = append(trainFolds[f], i)
			}
		}
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]CVResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c, params := range candidates {
		g.Go(func() error {
			scores := make([]float64, len(testFolds))
			for f := range testFolds {
				if err := gctx.Err(); err != nil {
					return err
				}
				est := NewRandomForest(params, seed)
				if err := est.Fit(gctx, subsetRows(X, trainFolds[f]), subsetLabels(y, trainFolds[f])); err != nil {
					return fmt.Errorf("candidate %+v fold %d: %w", params, f, err)
				}
				scores[f] = Accuracy(subsetLabels(y, testFolds[f]), est.Predict(subsetRows(X, testFolds[f])))
			}
			var sum float64
			for _, s := range scores {
				sum += s
			}
			results[c] = CVResult{Params: params, FoldScores: scores, MeanScore: sum / float64(len(scores))}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	for c := range results {
		if results[c].MeanScore > results[best].MeanScore {
			best = c
		}
	}

	est := NewRandomForest(results[best].Params, seed)
	if err := est.Fit(ctx, X, y); err != nil {
		return nil, fmt.Errorf("refit best candidate: %w", err)
	}
	return &SearchResult{
		Best:      results[best].Params,
		BestScore: results[best].MeanScore,
		Results:   results,
		Estimator: est,
	}, nil
}
