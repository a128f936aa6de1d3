package classifier

import (
	"context"
	"math/rand/v2"
	"sort"
)

// Node is one node of a fitted tree. Leaves have Left == Right == -1.
// Value holds class probabilities for classification trees and a single
// score for regression trees.
type Node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t"`
	Left      int       `json:"l"`
	Right     int       `json:"r"`
	Value     []float64 `json:"v"`
}

func (n *Node) isLeaf() bool {
	return n.Left < 0
}

// TreeParams bounds tree growth.
type TreeParams struct {
	// MaxDepth of 0 grows until leaves are pure.
	MaxDepth        int `json:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split"`
	MinSamplesLeaf  int `json:"min_samples_leaf"`
	// MaxFeatures of 0 considers every feature at each split.
	MaxFeatures int `json:"max_features"`
}

func (p TreeParams) withDefaults() TreeParams {
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	return p
}

// leafFor walks the tree to the leaf x falls into.
func leafFor(nodes []Node, x []float64) *Node {
	n := &nodes[0]
	for !n.isLeaf() {
		if x[n.Feature] <= n.Threshold {
			n = &nodes[n.Left]
		} else {
			n = &nodes[n.Right]
		}
	}
	return n
}

// DecisionTree is a CART classifier splitting on Gini impurity.
type DecisionTree struct {
	Params      TreeParams `json:"params"`
	Balanced    bool       `json:"balanced"`
	Seed        uint64     `json:"seed"`
	ClassLabels []string   `json:"classes"`
	Nodes       []Node     `json:"nodes"`
	Importances []float64  `json:"importances"`
}

// NewDecisionTree creates an unfitted tree.
func NewDecisionTree(params TreeParams, balanced bool, seed uint64) *DecisionTree {
	return &DecisionTree{Params: params, Balanced: balanced, Seed: seed}
}

// Fit grows the tree on all samples.
func (t *DecisionTree) Fit(ctx context.Context, X [][]float64, y []string) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	classes, yi := encodeLabels(y)
	w := sampleWeights(yi, len(classes), t.Balanced)
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewPCG(t.Seed, t.Seed))
	t.ClassLabels = classes
	t.Nodes, t.Importances = growClassTree(X, yi, w, idx, len(classes), t.Params, rng)
	return nil
}

// Predict returns the most probable class per row.
func (t *DecisionTree) Predict(X [][]float64) []string {
	return argmaxLabels(t.PredictProba(X), t.ClassLabels)
}

// PredictProba returns the class distribution of each row's leaf.
func (t *DecisionTree) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = append([]float64(nil), leafFor(t.Nodes, x).Value...)
	}
	return out
}

// Classes returns the fitted class labels.
func (t *DecisionTree) Classes() []string {
	return t.ClassLabels
}

// FeatureImportances returns normalized total impurity decrease per feature.
func (t *DecisionTree) FeatureImportances() []float64 {
	return t.Importances
}

// sampleWeights returns unit weights, or n/(k*count_c) per sample when balanced.
func sampleWeights(y []int, k int, balanced bool) []float64 {
	w := make([]float64, len(y))
	if !balanced {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	counts := make([]float64, k)
	for _, c := range y {
		counts[c]++
	}
	present := 0
	for _, c := range counts {
		if c > 0 {
			present++
		}
	}
	for i, c := range y {
		w[i] = float64(len(y)) / (float64(present) * counts[c])
	}
	return w
}

// growClassTree grows a Gini tree over the samples in idx and returns its
// nodes and normalized feature importances.
func growClassTree(X [][]float64, y []int, w []float64, idx []int, k int, params TreeParams, rng *rand.Rand) ([]Node, []float64) {
	b := &classBuilder{X: X, y: y, w: w, k: k, p: params.withDefaults(), rng: rng, imp: make([]float64, len(X[0]))}
	for _, i := range idx {
		b.totalW += w[i]
	}
	b.build(idx, 0)
	return b.nodes, normalizeSum(b.imp)
}

type classBuilder struct {
	X      [][]float64
	y      []int
	w      []float64
	k      int
	p      TreeParams
	rng    *rand.Rand
	nodes  []Node
	imp    []float64
	totalW float64
}

func (b *classBuilder) build(idx []int, depth int) int {
	counts := make([]float64, b.k)
	var wsum float64
	for _, i := range idx {
		counts[b.y[i]] += b.w[i]
		wsum += b.w[i]
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: normalizeSum(append([]float64(nil), counts...))})

	impurity := gini(counts, wsum)
	if (b.p.MaxDepth > 0 && depth >= b.p.MaxDepth) || len(idx) < b.p.MinSamplesSplit || impurity <= 1e-12 {
		return id
	}

	s, ok := b.bestSplit(idx, counts, wsum, impurity)
	if !ok {
		return id
	}
	b.imp[s.feature] += wsum / b.totalW * s.gain

	left, right := partition(b.X, idx, s.feature, s.threshold)
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = s.feature
	b.nodes[id].Threshold = s.threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *classBuilder) bestSplit(idx []int, counts []float64, wsum, impurity float64) (split, bool) {
	best := split{gain: 1e-12}
	found := false
	left := make([]float64, b.k)
	right := make([]float64, b.k)
	sorted := make([]int, len(idx))

	for _, f := range candidateFeatures(len(b.X[0]), b.p.MaxFeatures, b.rng) {
		copy(sorted, idx)
		sortByFeature(b.X, sorted, f)
		clear(left)
		var wl float64
		n := len(sorted)
		for pos := 0; pos < n-1; pos++ {
			i := sorted[pos]
			left[b.y[i]] += b.w[i]
			wl += b.w[i]
			cur, next := b.X[i][f], b.X[sorted[pos+1]][f]
			if cur == next {
				continue
			}
			if pos+1 < b.p.MinSamplesLeaf || n-pos-1 < b.p.MinSamplesLeaf {
				continue
			}
			wr := wsum - wl
			for c := range right {
				right[c] = counts[c] - left[c]
			}
			child := wl/wsum*gini(left, wl) + wr/wsum*gini(right, wr)
			if gain := impurity - child; gain > best.gain {
				best = split{feature: f, threshold: (cur + next) / 2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func gini(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	sum := 1.0
	for _, c := range counts {
		p := c / total
		sum -= p * p
	}
	return sum
}

// candidateFeatures samples maxFeatures features without replacement, or returns all.
func candidateFeatures(d, maxFeatures int, rng *rand.Rand) []int {
	if maxFeatures <= 0 || maxFeatures >= d || rng == nil {
		all := make([]int, d)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return rng.Perm(d)[:maxFeatures]
}

func sortByFeature(X [][]float64, idx []int, f int) {
	sort.SliceStable(idx, func(a, b int) bool {
		return X[idx[a]][f] < X[idx[b]][f]
	})
}

func partition(X [][]float64, idx []int, f int, threshold float64) (left, right []int) {
	for _, i := range idx {
		if X[i][f] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// regressionParams configures a gradient/hessian tree grown for boosting.
type regressionParams struct {
	tree TreeParams
	// lambda is the L2 penalty on leaf values.
	lambda float64
	// secondOrder scores splits with hessians instead of sample counts.
	secondOrder    bool
	minChildWeight float64
	// leafScale multiplies every leaf value.
	leafScale float64
}

func growRegressionTree(X [][]float64, grad, hess []float64, params regressionParams) ([]Node, []float64) {
	b := &regBuilder{X: X, g: grad, h: hess, p: params, imp: make([]float64, len(X[0]))}
	b.p.tree = b.p.tree.withDefaults()
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	b.build(idx, 0)
	return b.nodes, b.imp
}

type regBuilder struct {
	X     [][]float64
	g     []float64
	h     []float64
	p     regressionParams
	nodes []Node
	imp   []float64
}

// splitWeight is the denominator used to score a node: hessian sum or count.
func (b *regBuilder) splitWeight(i int) float64 {
	if b.p.secondOrder {
		return b.h[i]
	}
	return 1
}

func (b *regBuilder) score(g, h float64) float64 {
	d := h + b.p.lambda
	if d <= 1e-12 {
		return 0
	}
	return g * g / d
}

func (b *regBuilder) build(idx []int, depth int) int {
	var G, H, S float64
	for _, i := range idx {
		G += b.g[i]
		H += b.h[i]
		S += b.splitWeight(i)
	}
	leaf := 0.0
	if d := H + b.p.lambda; d > 1e-12 {
		leaf = b.p.leafScale * G / d
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: []float64{leaf}})

	if (b.p.tree.MaxDepth > 0 && depth >= b.p.tree.MaxDepth) || len(idx) < b.p.tree.MinSamplesSplit {
		return id
	}

	parent := b.score(G, S)
	best := split{gain: 1e-12}
	found := false
	sorted := make([]int, len(idx))
	for f := range b.X[0] {
		copy(sorted, idx)
		sortByFeature(b.X, sorted, f)
		var gl, sl, hl float64
		n := len(sorted)
		for pos := 0; pos < n-1; pos++ {
			i := sorted[pos]
			gl += b.g[i]
			sl += b.splitWeight(i)
			hl += b.h[i]
			cur, next := b.X[i][f], b.X[sorted[pos+1]][f]
			if cur == next {
				continue
			}
			if pos+1 < b.p.tree.MinSamplesLeaf || n-pos-1 < b.p.tree.MinSamplesLeaf {
				continue
			}
			if hl < b.p.minChildWeight || H-hl < b.p.minChildWeight {
				continue
			}
			gain := b.score(gl, sl) + b.score(G-gl, S-sl) - parent
			if gain > best.gain {
				best = split{feature: f, threshold: (cur + next) / 2, gain: gain}
				found = true
			}
		}
	}
	if !found {
		return id
	}
	b.imp[best.feature] += best.gain

	left, right := partition(b.X, idx, best.feature, best.threshold)
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = best.feature
	b.nodes[id].Threshold = best.threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}
