package classifier

import (
	"fmt"
	"math/rand/v2"

	"github.com/rewired-gh/unrestwatch/internal/features"
)

// PrepareFeatures selects the classifier columns of an engineered frame and
// extracts the target labels.
func PrepareFeatures(f *features.Frame, target string) (X [][]float64, y []string, names []string, err error) {
	names = features.SelectFeatures(f)
	if len(names) == 0 {
		return nil, nil, nil, fmt.Errorf("no feature columns present")
	}
	y, err = features.Labels(f, target)
	if err != nil {
		return nil, nil, nil, err
	}
	return features.Matrix(f, names), y, names, nil
}

// SplitTrainTest holds out testFraction of every class, chosen by a seeded
// shuffle. Classes with a single sample stay in the training set.
func SplitTrainTest(X [][]float64, y []string, testFraction float64, seed uint64) (XTrain, XTest [][]float64, yTrain, yTest []string, err error) {
	if len(X) != len(y) {
		return nil, nil, nil, nil, fmt.Errorf("feature rows (%d) and labels (%d) differ", len(X), len(y))
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}

	byClass := make(map[string][]int)
	var order []string
	for i, label := range y {
		if _, ok := byClass[label]; !ok {
			order = append(order, label)
		}
		byClass[label] = append(byClass[label], i)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	test := make(map[int]bool)
	for _, label := range order {
		idx := byClass[label]
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		n := int(float64(len(idx))*testFraction + 0.5)
		if n >= len(idx) {
			n = len(idx) - 1
		}
		for _, i := range idx[:n] {
			test[i] = true
		}
	}

	for i := range X {
		if test[i] {
			XTest = append(XTest, X[i])
			yTest = append(yTest, y[i])
		} else {
			XTrain = append(XTrain, X[i])
			yTrain = append(yTrain, y[i])
		}
	}
	return XTrain, XTest, yTrain, yTest, nil
}
