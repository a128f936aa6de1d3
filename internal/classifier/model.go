package classifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/unrestwatch/internal/logger"
)

// Config configures a Model.
type Config struct {
	Strategy        Strategy
	CVFolds         int
	Seed            uint64
	EnsembleWeights []float64
	Grid            Grid
	// Workers bounds grid search parallelism; 0 means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns the random forest strategy with 5-fold grid search.
func DefaultConfig() Config {
	return Config{
		Strategy:        StrategyRandomForest,
		CVFolds:         5,
		Seed:            42,
		EnsembleWeights: append([]float64(nil), DefaultEnsembleWeights...),
		Grid:            DefaultGrid(),
	}
}

// FeatureImportance is one entry of the ranked importance list.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// fitted is the immutable state of a trained model. It is swapped as a whole.
type fitted struct {
	strategy     Strategy
	estimator    Estimator
	scaler       *StandardScaler
	featureNames []string
	importance   []FeatureImportance
	bestParams   *ForestParams
	trainedAt    time.Time
}

// Model is a trainable risk classifier. Predictions take a read lock;
// training fits outside the lock and only swaps the result in under the
// write lock, so readers never observe a half-trained model.
type Model struct {
	cfg   Config
	mu    sync.RWMutex
	state *fitted
}

// NewModel creates an untrained model.
func NewModel(cfg Config) *Model {
	return &Model{cfg: cfg}
}

// Trained reports whether the model can predict.
func (m *Model) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state != nil
}

// Strategy returns the configured strategy.
func (m *Model) Strategy() Strategy {
	if m.cfg.Strategy == "" {
		return StrategyRandomForest
	}
	return m.cfg.Strategy
}

func (m *Model) newEstimator() (Estimator, error) {
	seed := m.cfg.Seed
	switch m.cfg.Strategy {
	case StrategyRandomForest, "":
		return NewRandomForest(DefaultForestParams(), seed), nil
	case StrategyGradientBoosting:
		return NewGradientBoosting(DefaultBoostingParams(VariantGradient)), nil
	case StrategyXGBoost:
		return NewGradientBoosting(DefaultBoostingParams(VariantXGBoost)), nil
	case StrategyLightGBM:
		return NewGradientBoosting(DefaultBoostingParams(VariantLightGBM)), nil
	case StrategyEnsemble:
		weights := m.cfg.EnsembleWeights
		if len(weights) == 0 {
			weights = DefaultEnsembleWeights
		}
		return NewDefaultEnsemble(weights, seed)
	default:
		return nil, fmt.Errorf("unknown classification strategy: %q", m.cfg.Strategy)
	}
}

// Train fits the scaler on X, then the configured strategy on the scaled
// features. The random forest strategy is tuned by grid search first.
// Failures are reported as *TrainingError and leave the previous state intact.
func (m *Model) Train(ctx context.Context, X [][]float64, y []string, featureNames []string) error {
	strategy := m.cfg.Strategy
	if strategy == "" {
		strategy = StrategyRandomForest
	}
	fail := func(err error) error {
		return &TrainingError{Strategy: strategy, Records: len(X), Err: err}
	}

	if err := checkTrainingSet(X, y); err != nil {
		return fail(err)
	}
	if len(featureNames) != len(X[0]) {
		return fail(fmt.Errorf("%d feature names for %d features", len(featureNames), len(X[0])))
	}

	start := time.Now()
	scaler, err := FitStandardScaler(X)
	if err != nil {
		return fail(err)
	}
	scaled, err := scaler.Transform(X)
	if err != nil {
		return fail(err)
	}

	state := &fitted{
		strategy:     strategy,
		scaler:       scaler,
		featureNames: append([]string(nil), featureNames...),
	}
	if strategy == StrategyRandomForest {
		folds := m.cfg.CVFolds
		if folds <= 0 {
			folds = 5
		}
		res, err := GridSearch(ctx, scaled, y, m.cfg.Grid, folds, m.cfg.Seed, m.cfg.Workers)
		if err != nil {
			return fail(fmt.Errorf("grid search: %w", err))
		}
		logger.Info("Best parameters: n_estimators=%d max_depth=%d min_samples_split=%d (cv accuracy %.4f)",
			res.Best.NEstimators, res.Best.MaxDepth, res.Best.MinSamplesSplit, res.BestScore)
		best := res.Best
		state.estimator = res.Estimator
		state.bestParams = &best
	} else {
		est, err := m.newEstimator()
		if err != nil {
			return fail(err)
		}
		if err := est.Fit(ctx, scaled, y); err != nil {
			return fail(err)
		}
		state.estimator = est
	}
	state.importance = rankImportance(state.estimator, featureNames)
	state.trainedAt = time.Now()

	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	logger.Info("Trained %s on %d records with %d features in %s",
		strategy, len(X), len(featureNames), time.Since(start).Round(time.Millisecond))
	return nil
}

func rankImportance(est Estimator, names []string) []FeatureImportance {
	imp, ok := est.(Importancer)
	if !ok {
		return nil
	}
	values := imp.FeatureImportances()
	if len(values) != len(names) {
		return nil
	}
	ranked := make([]FeatureImportance, len(names))
	for i, name := range names {
		ranked[i] = FeatureImportance{Feature: name, Importance: values[i]}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Importance > ranked[b].Importance
	})
	return ranked
}

func (m *Model) snapshot() (*fitted, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil, ErrModelNotTrained
	}
	return m.state, nil
}

// Predict scales X with the training scaler and returns hard labels and
// class probabilities in Classes order.
func (m *Model) Predict(X [][]float64) ([]string, [][]float64, error) {
	st, err := m.snapshot()
	if err != nil {
		return nil, nil, err
	}
	scaled, err := st.scaler.Transform(X)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scale features: %w", err)
	}
	proba := st.estimator.PredictProba(scaled)
	return argmaxLabels(proba, st.estimator.Classes()), proba, nil
}

// Evaluate predicts X and reports accuracy, per-class metrics and the
// confusion matrix against y.
func (m *Model) Evaluate(X [][]float64, y []string) (Evaluation, error) {
	if len(X) != len(y) {
		return Evaluation{}, fmt.Errorf("feature rows (%d) and labels (%d) differ", len(X), len(y))
	}
	pred, proba, err := m.Predict(X)
	if err != nil {
		return Evaluation{}, err
	}
	ev := Evaluate(y, pred)
	ev.Predictions = pred
	ev.Probabilities = proba
	return ev, nil
}

// Classes returns the labels of the probability columns.
func (m *Model) Classes() ([]string, error) {
	st, err := m.snapshot()
	if err != nil {
		return nil, err
	}
	return st.estimator.Classes(), nil
}

// FeatureNames returns the feature columns the model was trained on.
func (m *Model) FeatureNames() ([]string, error) {
	st, err := m.snapshot()
	if err != nil {
		return nil, err
	}
	return st.featureNames, nil
}

// FeatureImportance returns the importance ranking, descending. It is nil
// for strategies that do not expose importances.
func (m *Model) FeatureImportance() []FeatureImportance {
	st, err := m.snapshot()
	if err != nil {
		return nil
	}
	return st.importance
}

// Info describes a trained model.
type Info struct {
	Strategy   Strategy      `json:"strategy"`
	Features   int           `json:"features"`
	Classes    []string      `json:"classes"`
	TrainedAt  time.Time     `json:"trained_at"`
	BestParams *ForestParams `json:"best_params,omitempty"`
}

// Info describes the current model.
func (m *Model) Info() (Info, error) {
	st, err := m.snapshot()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Strategy:   st.strategy,
		Features:   len(st.featureNames),
		Classes:    st.estimator.Classes(),
		TrainedAt:  st.trainedAt,
		BestParams: st.bestParams,
	}, nil
}

// Save persists the trained model. An untrained model is never written.
func (m *Model) Save(path string) error {
	st, err := m.snapshot()
	if err != nil {
		return err
	}
	env, err := encodeEstimator(st.estimator)
	if err != nil {
		return err
	}
	return writeArtifact(&Artifact{
		Version:      ArtifactVersion,
		SavedAt:      time.Now(),
		TrainedAt:    st.trainedAt,
		Strategy:     st.strategy,
		FeatureNames: st.featureNames,
		Scaler:       st.scaler,
		Estimator:    env,
		Importance:   st.importance,
		BestParams:   st.bestParams,
	}, path)
}

// Load replaces the model state with a saved artifact.
func (m *Model) Load(path string) error {
	a, err := readArtifact(path)
	if err != nil {
		return err
	}
	est, err := decodeEstimator(a.Estimator)
	if err != nil {
		return err
	}
	if a.Scaler.Width() != len(a.FeatureNames) {
		return errors.New("artifact scaler width does not match its feature names")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &fitted{
		strategy:     a.Strategy,
		estimator:    est,
		scaler:       a.Scaler,
		featureNames: a.FeatureNames,
		importance:   a.Importance,
		bestParams:   a.BestParams,
		trainedAt:    a.TrainedAt,
	}
	return nil
}
