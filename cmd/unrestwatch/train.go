package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/unrestwatch/internal/classifier"
	"github.com/rewired-gh/unrestwatch/internal/features"
	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/models"
	"github.com/rewired-gh/unrestwatch/internal/storage"
)

// trainingResult is printed after training.
type trainingResult struct {
	Run               storage.TrainingRun            `json:"run"`
	Evaluation        *classifier.Evaluation         `json:"evaluation,omitempty"`
	FeatureImportance []classifier.FeatureImportance `json:"feature_importance,omitempty"`
}

// loadPosts scores the input file when one is given, otherwise it reads every
// stored post.
func (a *app) loadPosts(ctx context.Context, input string, store *storage.Storage) ([]models.ScoredPost, error) {
	if input == "" {
		return store.AllPosts(ctx)
	}
	inputs, err := readInputs(input)
	if err != nil {
		return nil, err
	}
	scorer, err := a.newScorer()
	if err != nil {
		return nil, err
	}
	return scoreInputs(ctx, scorer, inputs)
}

func newTrainCmd(a *app) *cobra.Command {
	var (
		input    string
		target   string
		artifact string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the risk classifier on stored or supplied posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if artifact == "" {
				artifact = a.cfg.Classifier.ArtifactPath
			}
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			defer closeStorage(store)

			posts, err := a.loadPosts(ctx, input, store)
			if err != nil {
				return err
			}
			if len(posts) == 0 {
				return errors.New("no posts to train on")
			}

			frame := a.newEngineer().Build(features.NewFrame(posts))
			X, y, names, err := classifier.PrepareFeatures(frame, target)
			if err != nil {
				return err
			}
			XTrain, XTest, yTrain, yTest, err := classifier.SplitTrainTest(X, y, a.cfg.Classifier.TestFraction, a.cfg.Classifier.Seed)
			if err != nil {
				return err
			}

			model := classifier.NewModel(a.cfg.ClassifierModelConfig())
			run := storage.TrainingRun{
				ID:        uuid.New().String(),
				Strategy:  string(model.Strategy()),
				Records:   len(XTrain),
				StartedAt: time.Now(),
			}
			logger.Info("Training %s on %d posts with %d features (%d held out)", run.Strategy, len(XTrain), len(names), len(XTest))

			trainErr := model.Train(ctx, XTrain, yTrain, names)
			run.FinishedAt = time.Now()
			result := trainingResult{Run: run}
			if trainErr == nil {
				if len(XTest) > 0 {
					eval, err := model.Evaluate(XTest, yTest)
					if err != nil {
						return err
					}
					result.Evaluation = &eval
					result.Run.Accuracy = eval.Accuracy
				}
				result.FeatureImportance = model.FeatureImportance()
				if err := model.Save(artifact); err != nil {
					trainErr = fmt.Errorf("failed to save model artifact: %w", err)
				} else {
					result.Run.ArtifactPath = artifact
					logger.Info("Model saved to %s", artifact)
				}
			}
			if trainErr != nil {
				result.Run.Error = trainErr.Error()
			}

			recordCtx, recordCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer recordCancel()
			if err := store.RecordTrainingRun(recordCtx, result.Run); err != nil {
				logger.Warn("Failed to record training run: %v", err)
			}
			if trainErr != nil {
				return trainErr
			}
			return writeJSON(output, result)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "train on this file instead of stored posts")
	cmd.Flags().StringVar(&target, "target", features.TargetRiskLevel, "label column: risk_level, sentiment_label or region")
	cmd.Flags().StringVar(&artifact, "artifact", "", "model artifact path (classifier.artifact_path when empty)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	return cmd
}

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		input    string
		target   string
		artifact string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a saved classifier on stored or supplied posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if artifact == "" {
				artifact = a.cfg.Classifier.ArtifactPath
			}
			model := classifier.NewModel(a.cfg.ClassifierModelConfig())
			if err := model.Load(artifact); err != nil {
				return fmt.Errorf("failed to load model artifact: %w", err)
			}
			names, err := model.FeatureNames()
			if err != nil {
				return err
			}

			store, err := a.openStorage()
			if err != nil {
				return err
			}
			defer closeStorage(store)
			posts, err := a.loadPosts(cmd.Context(), input, store)
			if err != nil {
				return err
			}
			if len(posts) == 0 {
				return errors.New("no posts to evaluate on")
			}

			frame := a.newEngineer().Build(features.NewFrame(posts))
			y, err := features.Labels(frame, target)
			if err != nil {
				return err
			}
			eval, err := model.Evaluate(features.Matrix(frame, names), y)
			if err != nil {
				return err
			}
			logger.Info("Accuracy %.4f on %d posts", eval.Accuracy, len(y))
			return writeJSON(output, eval)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "evaluate on this file instead of stored posts")
	cmd.Flags().StringVar(&target, "target", features.TargetRiskLevel, "label column: risk_level, sentiment_label or region")
	cmd.Flags().StringVar(&artifact, "artifact", "", "model artifact path (classifier.artifact_path when empty)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	return cmd
}
