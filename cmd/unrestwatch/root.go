package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/unrestwatch/internal/classifier"
	"github.com/rewired-gh/unrestwatch/internal/config"
	"github.com/rewired-gh/unrestwatch/internal/features"
	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/scoring"
	"github.com/rewired-gh/unrestwatch/internal/storage"
)

// app carries the loaded configuration into subcommands.
type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "unrestwatch",
		Short:         "Conflict risk scoring and early-warning pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to configuration file (defaults and environment only when empty)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")

	root.AddCommand(
		newScoreCmd(a),
		newTrainCmd(a),
		newEvaluateCmd(a),
		newReportCmd(a),
		newMonitorCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) load() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if a.configPath != "" {
		logger.Info("Configuration loaded from %s", a.configPath)
	} else {
		logger.Debug("No config file given, using defaults and environment")
	}
	return nil
}

func (a *app) openStorage() (*storage.Storage, error) {
	store, err := storage.New(a.cfg.Storage.Driver, a.cfg.Storage.DSN, a.cfg.Storage.MaxPosts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func closeStorage(store *storage.Storage) {
	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}

func (a *app) newScorer() (*scoring.Scorer, error) {
	return scoring.NewDefault(a.cfg.ScorerConfig())
}

func (a *app) newEngineer() *features.Engineer {
	return features.New(a.cfg.FeatureConfig())
}

// loadModel returns the configured model, loaded from path when the artifact
// exists. A missing artifact leaves the model untrained.
func (a *app) loadModel(path string) (*classifier.Model, error) {
	model := classifier.NewModel(a.cfg.ClassifierModelConfig())
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.Info("No model artifact at %s, classifier starts untrained", path)
		return model, nil
	}
	if err := model.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load model artifact: %w", err)
	}
	logger.Info("Loaded model artifact from %s", path)
	return model, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
