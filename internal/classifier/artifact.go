package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArtifactVersion is written into every saved model.
const ArtifactVersion = "1.0"

// Estimator kinds in persisted artifacts.
const (
	kindDecisionTree     = "decision_tree"
	kindRandomForest     = "random_forest"
	kindGradientBoosting = "gradient_boosting"
	kindLinearSVM        = "linear_svm"
	kindMLP              = "mlp"
	kindEnsemble         = "ensemble"
)

// Artifact is the persisted form of a trained Model.
type Artifact struct {
	Version      string              `json:"version"`
	SavedAt      time.Time           `json:"saved_at"`
	TrainedAt    time.Time           `json:"trained_at"`
	Strategy     Strategy            `json:"strategy"`
	FeatureNames []string            `json:"feature_names"`
	Scaler       *StandardScaler     `json:"scaler"`
	Estimator    estimatorEnvelope   `json:"estimator"`
	Importance   []FeatureImportance `json:"feature_importance,omitempty"`
	BestParams   *ForestParams       `json:"best_params,omitempty"`
}

type estimatorEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func encodeEstimator(e Estimator) (estimatorEnvelope, error) {
	var kind string
	switch e.(type) {
	case *DecisionTree:
		kind = kindDecisionTree
	case *RandomForest:
		kind = kindRandomForest
	case *GradientBoosting:
		kind = kindGradientBoosting
	case *LinearSVM:
		kind = kindLinearSVM
	case *MLP:
		kind = kindMLP
	case *Ensemble:
		kind = kindEnsemble
	default:
		return estimatorEnvelope{}, fmt.Errorf("cannot persist estimator of type %T", e)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return estimatorEnvelope{}, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return estimatorEnvelope{Kind: kind, Data: data}, nil
}

func decodeEstimator(env estimatorEnvelope) (Estimator, error) {
	var e Estimator
	switch env.Kind {
	case kindDecisionTree:
		e = &DecisionTree{}
	case kindRandomForest:
		e = &RandomForest{}
	case kindGradientBoosting:
		e = &GradientBoosting{}
	case kindLinearSVM:
		e = &LinearSVM{}
	case kindMLP:
		e = &MLP{}
	case kindEnsemble:
		e = &Ensemble{}
	default:
		return nil, fmt.Errorf("unknown estimator kind: %q", env.Kind)
	}
	if err := json.Unmarshal(env.Data, e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", env.Kind, err)
	}
	return e, nil
}

type ensembleJSON struct {
	Names   []string            `json:"names"`
	Members []estimatorEnvelope `json:"members"`
	Weights []float64           `json:"weights"`
	Classes []string            `json:"classes"`
}

// MarshalJSON persists members as tagged estimators.
func (e *Ensemble) MarshalJSON() ([]byte, error) {
	out := ensembleJSON{Weights: e.Weights, Classes: e.ClassLabels}
	for _, m := range e.Members {
		env, err := encodeEstimator(m.Estimator)
		if err != nil {
			return nil, fmt.Errorf("ensemble member %s: %w", m.Name, err)
		}
		out.Names = append(out.Names, m.Name)
		out.Members = append(out.Members, env)
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores members from tagged estimators.
func (e *Ensemble) UnmarshalJSON(data []byte) error {
	var in ensembleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if len(in.Names) != len(in.Members) || len(in.Members) != len(in.Weights) {
		return fmt.Errorf("ensemble artifact is inconsistent: %d names, %d members, %d weights",
			len(in.Names), len(in.Members), len(in.Weights))
	}
	e.Members = make([]Member, len(in.Members))
	for i, env := range in.Members {
		est, err := decodeEstimator(env)
		if err != nil {
			return fmt.Errorf("ensemble member %s: %w", in.Names[i], err)
		}
		e.Members[i] = Member{Name: in.Names[i], Estimator: est}
	}
	e.Weights = in.Weights
	e.ClassLabels = in.Classes
	return nil
}

// writeArtifact writes a to path through a temporary file and a rename, so a
// crash never leaves a partial model behind.
func writeArtifact(a *Artifact, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename artifact: %w", err)
	}
	return nil
}

func readArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %q", a.Version)
	}
	if a.Scaler == nil {
		return nil, fmt.Errorf("artifact has no scaler")
	}
	return &a, nil
}
