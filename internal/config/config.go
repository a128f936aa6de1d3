package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/unrestwatch/internal/classifier"
	"github.com/rewired-gh/unrestwatch/internal/features"
	"github.com/rewired-gh/unrestwatch/internal/monitor"
	"github.com/rewired-gh/unrestwatch/internal/scoring"
)

// EnvPrefix prefixes environment overrides, e.g. UNRESTWATCH_TELEGRAM_BOT_TOKEN.
const EnvPrefix = "UNRESTWATCH"

// Config represents the complete application configuration
type Config struct {
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Features   FeaturesConfig   `mapstructure:"features"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ScoringConfig holds the risk level boundaries
type ScoringConfig struct {
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
	HighThreshold     float64 `mapstructure:"high_threshold"`
	MediumThreshold   float64 `mapstructure:"medium_threshold"`
	Workers           int     `mapstructure:"workers"`
}

// FeaturesConfig holds feature engineering options
type FeaturesConfig struct {
	LagPeriods                []int             `mapstructure:"lag_periods"`
	BatchRelativeEngagement   bool              `mapstructure:"batch_relative_engagement"`
	ReferenceMaxEngagement    float64           `mapstructure:"reference_max_engagement"`
	ReferenceMedianEngagement float64           `mapstructure:"reference_median_engagement"`
	Regions                   []features.Region `mapstructure:"regions"`
}

// ClassifierConfig holds training options
type ClassifierConfig struct {
	Strategy        string          `mapstructure:"strategy"`
	CVFolds         int             `mapstructure:"cv_folds"`
	TestFraction    float64         `mapstructure:"test_fraction"`
	Seed            uint64          `mapstructure:"seed"`
	EnsembleWeights []float64       `mapstructure:"ensemble_weights"`
	Grid            classifier.Grid `mapstructure:"grid"`
	ArtifactPath    string          `mapstructure:"artifact_path"`
}

// MonitorConfig holds early-warning thresholds and the monitoring loop schedule
type MonitorConfig struct {
	SentimentDropThreshold float64       `mapstructure:"sentiment_drop_threshold"`
	WindowSize             int           `mapstructure:"window_size"`
	IntensityThreshold     float64       `mapstructure:"intensity_threshold"`
	IntensityClusterCount  int           `mapstructure:"intensity_cluster_count"`
	Cooldown               time.Duration `mapstructure:"cooldown"`
	Interval               time.Duration `mapstructure:"interval"`
	Lookback               time.Duration `mapstructure:"lookback"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// FeedConfig holds the post collection endpoint polled by the monitor
type FeedConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Limit          int           `mapstructure:"limit"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxPosts int    `mapstructure:"max_posts"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	th := scoring.DefaultThresholds()
	v.SetDefault("scoring.critical_threshold", th.Critical)
	v.SetDefault("scoring.high_threshold", th.High)
	v.SetDefault("scoring.medium_threshold", th.Medium)
	v.SetDefault("scoring.workers", 8)

	v.SetDefault("features.lag_periods", []int{1, 7, 30})
	v.SetDefault("features.batch_relative_engagement", true)
	v.SetDefault("features.reference_max_engagement", 0.0)
	v.SetDefault("features.reference_median_engagement", 0.0)

	grid := classifier.DefaultGrid()
	v.SetDefault("classifier.strategy", string(classifier.StrategyRandomForest))
	v.SetDefault("classifier.cv_folds", 5)
	v.SetDefault("classifier.test_fraction", 0.2)
	v.SetDefault("classifier.seed", 42)
	v.SetDefault("classifier.ensemble_weights", classifier.DefaultEnsembleWeights)
	v.SetDefault("classifier.grid.n_estimators", grid.NEstimators)
	v.SetDefault("classifier.grid.max_depth", grid.MaxDepth)
	v.SetDefault("classifier.grid.min_samples_split", grid.MinSamplesSplit)
	v.SetDefault("classifier.artifact_path", "./data/model.json")

	det := monitor.DefaultDetectorConfig()
	v.SetDefault("monitor.sentiment_drop_threshold", det.SentimentDropThreshold)
	v.SetDefault("monitor.window_size", det.WindowSize)
	v.SetDefault("monitor.intensity_threshold", det.IntensityThreshold)
	v.SetDefault("monitor.intensity_cluster_count", det.ClusterCount)
	v.SetDefault("monitor.cooldown", "6h")
	v.SetDefault("monitor.interval", "15m")
	v.SetDefault("monitor.lookback", "720h")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.timeout", "30s")
	v.SetDefault("feed.limit", 500)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.retry_delay_base", "2s")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "./data/unrestwatch.db")
	v.SetDefault("storage.max_posts", 100000)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if c.Scoring.Workers < 0 {
		return fmt.Errorf("scoring.workers must not be negative")
	}

	if len(c.Features.LagPeriods) == 0 {
		return fmt.Errorf("features.lag_periods must contain at least one period")
	}
	for _, p := range c.Features.LagPeriods {
		if p < 1 {
			return fmt.Errorf("features.lag_periods must be positive, got %d", p)
		}
	}
	if !c.Features.BatchRelativeEngagement && c.Features.ReferenceMaxEngagement <= 0 {
		return fmt.Errorf("features.reference_max_engagement must be positive when batch_relative_engagement is false")
	}
	for _, r := range c.Features.Regions {
		if r.Name == "" || len(r.Keywords) == 0 {
			return fmt.Errorf("features.regions entries need a name and at least one keyword")
		}
	}

	if _, err := classifier.ParseStrategy(c.Classifier.Strategy); err != nil {
		return fmt.Errorf("classifier.strategy: %w", err)
	}
	if c.Classifier.CVFolds < 2 {
		return fmt.Errorf("classifier.cv_folds must be at least 2")
	}
	if c.Classifier.TestFraction <= 0 || c.Classifier.TestFraction >= 1 {
		return fmt.Errorf("classifier.test_fraction must be between 0 and 1")
	}
	if len(c.Classifier.EnsembleWeights) != len(classifier.DefaultEnsembleWeights) {
		return fmt.Errorf("classifier.ensemble_weights must have %d entries", len(classifier.DefaultEnsembleWeights))
	}
	for _, w := range c.Classifier.EnsembleWeights {
		if w < 0 {
			return fmt.Errorf("classifier.ensemble_weights must not be negative")
		}
	}
	if len(c.Classifier.Grid.Candidates()) == 0 {
		return fmt.Errorf("classifier.grid must contain at least one candidate")
	}
	if c.Classifier.ArtifactPath == "" {
		return fmt.Errorf("classifier.artifact_path is required")
	}

	if c.Monitor.SentimentDropThreshold >= 0 {
		return fmt.Errorf("monitor.sentiment_drop_threshold must be negative")
	}
	if c.Monitor.WindowSize < 1 {
		return fmt.Errorf("monitor.window_size must be at least 1")
	}
	if c.Monitor.IntensityThreshold < 0 || c.Monitor.IntensityThreshold > 1 {
		return fmt.Errorf("monitor.intensity_threshold must be between 0.0 and 1.0")
	}
	if c.Monitor.IntensityClusterCount < 0 {
		return fmt.Errorf("monitor.intensity_cluster_count must not be negative")
	}
	if c.Monitor.Interval < time.Minute {
		return fmt.Errorf("monitor.interval must be at least 1 minute")
	}
	if c.Monitor.Lookback < c.Monitor.Interval {
		return fmt.Errorf("monitor.lookback must not be shorter than monitor.interval")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Feed.Enabled {
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url is required when feed is enabled")
		}
		if c.Feed.Limit < 1 {
			return fmt.Errorf("feed.limit must be at least 1")
		}
		if c.Feed.MaxRetries < 0 {
			return fmt.Errorf("feed.max_retries must not be negative")
		}
	}

	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("storage.driver must be one of: sqlite, postgres")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Storage.MaxPosts < 0 {
		return fmt.Errorf("storage.max_posts must not be negative")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Thresholds returns the risk level boundaries
func (c *Config) Thresholds() scoring.Thresholds {
	return scoring.Thresholds{
		Critical: c.Scoring.CriticalThreshold,
		High:     c.Scoring.HighThreshold,
		Medium:   c.Scoring.MediumThreshold,
	}
}

// ScorerConfig returns the scorer configuration
func (c *Config) ScorerConfig() scoring.Config {
	return scoring.Config{Thresholds: c.Thresholds(), Workers: c.Scoring.Workers}
}

// FeatureConfig returns the feature engineering configuration
func (c *Config) FeatureConfig() features.Config {
	fc := features.DefaultConfig()
	fc.LagPeriods = append([]int(nil), c.Features.LagPeriods...)
	fc.BatchRelativeEngagement = c.Features.BatchRelativeEngagement
	fc.ReferenceMaxEngagement = c.Features.ReferenceMaxEngagement
	fc.ReferenceMedianEngagement = c.Features.ReferenceMedianEngagement
	if len(c.Features.Regions) > 0 {
		fc.Regions = c.Features.Regions
	}
	return fc
}

// ClassifierModelConfig returns the classifier configuration
func (c *Config) ClassifierModelConfig() classifier.Config {
	return classifier.Config{
		Strategy:        classifier.Strategy(c.Classifier.Strategy),
		CVFolds:         c.Classifier.CVFolds,
		Seed:            c.Classifier.Seed,
		EnsembleWeights: c.Classifier.EnsembleWeights,
		Grid:            c.Classifier.Grid,
		Workers:         c.Scoring.Workers,
	}
}

// DetectorConfig returns the early-warning thresholds
func (c *Config) DetectorConfig() monitor.DetectorConfig {
	return monitor.DetectorConfig{
		SentimentDropThreshold: c.Monitor.SentimentDropThreshold,
		WindowSize:             c.Monitor.WindowSize,
		IntensityThreshold:     c.Monitor.IntensityThreshold,
		ClusterCount:           c.Monitor.IntensityClusterCount,
	}
}
