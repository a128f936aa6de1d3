// Package api serves scoring, reporting and classifier training over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rewired-gh/unrestwatch/internal/classifier"
	"github.com/rewired-gh/unrestwatch/internal/features"
	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/metrics"
	"github.com/rewired-gh/unrestwatch/internal/monitor"
	"github.com/rewired-gh/unrestwatch/internal/scoring"
	"github.com/rewired-gh/unrestwatch/internal/storage"
)

// Version is reported by the status endpoint.
const Version = "1.0.0"

// Options tunes the server.
type Options struct {
	CORSOrigins      []string
	ArtifactPath     string
	DashboardWindow  time.Duration
	HighRegionShare  float64
	TrainingTarget   string
	TestFraction     float64
	Seed             uint64
	RequestTimeout   time.Duration
	ShutdownDeadline time.Duration
}

// DefaultOptions returns the standard server options.
func DefaultOptions() Options {
	return Options{
		CORSOrigins:      []string{"*"},
		DashboardWindow:  30 * 24 * time.Hour,
		HighRegionShare:  scoring.DefaultRegionShare,
		TrainingTarget:   features.TargetRiskLevel,
		TestFraction:     0.2,
		Seed:             42,
		RequestTimeout:   time.Minute,
		ShutdownDeadline: 10 * time.Second,
	}
}

// Server wires the pipeline components to gin handlers.
type Server struct {
	opts       Options
	scorer     *scoring.Scorer
	engineer   *features.Engineer
	trainer    *classifier.Trainer
	aggregator *monitor.Aggregator
	store      *storage.Storage
	metrics    *metrics.Collector
	router     *gin.Engine
	now        func() time.Time
}

// New creates a Server. The model may already be trained, for example when
// loaded from an artifact.
func New(
	opts Options,
	scorer *scoring.Scorer,
	engineer *features.Engineer,
	model *classifier.Model,
	aggregator *monitor.Aggregator,
	store *storage.Storage,
	collector *metrics.Collector,
) *Server {
	s := &Server{
		opts:       opts,
		scorer:     scorer,
		engineer:   engineer,
		aggregator: aggregator,
		store:      store,
		metrics:    collector,
		now:        time.Now,
	}
	s.trainer = classifier.NewTrainer(model, s.observeTraining)
	s.metrics.SetModelReady(model.Trained())
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Trainer returns the background trainer.
func (s *Server) Trainer() *classifier.Trainer {
	return s.trainer
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.metrics.Middleware())
	r.Use(cors.New(s.corsConfig()))

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.metrics.Handler())

	r.POST("/predict", s.handlePredict)
	r.POST("/classify", s.handleClassify)
	r.GET("/generate_report/:month/:year", s.handleReport)
	r.GET("/dashboard", s.handleDashboard)

	model := r.Group("/model")
	{
		model.GET("/status", s.handleModelStatus)
	}
	r.POST("/train", s.handleTrain)
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	if len(s.opts.CORSOrigins) == 0 || (len(s.opts.CORSOrigins) == 1 && s.opts.CORSOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.opts.CORSOrigins
	}
	return cfg
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	s.trainer.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownDeadline)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.trainer.Wait()
	return nil
}

// observeTraining reports every training job to the metrics collector.
func (s *Server) observeTraining(_ classifier.TrainStatus, err error, elapsed time.Duration) {
	s.metrics.ObserveTraining(err, elapsed)
	s.metrics.SetModelReady(s.trainer.Model().Trained())
}

// trainingComplete returns the completion of one training job. It evaluates
// the job's own held-out rows and records the run.
func (s *Server) trainingComplete(X [][]float64, y []string) classifier.CompletionFunc {
	return func(status classifier.TrainStatus, err error, _ time.Duration) {
		s.recordTrainingRun(status, err, X, y)
	}
}

func (s *Server) recordTrainingRun(status classifier.TrainStatus, err error, X [][]float64, y []string) {
	run := storage.TrainingRun{
		ID:         uuid.New().String(),
		Strategy:   string(s.trainer.Model().Strategy()),
		Records:    status.Records,
		StartedAt:  status.StartedAt,
		FinishedAt: status.FinishedAt,
	}

	if err != nil {
		run.Error = err.Error()
	} else if len(X) > 0 {
		if eval, evalErr := s.trainer.Model().Evaluate(X, y); evalErr == nil {
			run.Accuracy = eval.Accuracy
			logger.Info("Model trained: strategy=%s records=%d held-out accuracy=%.4f", run.Strategy, run.Records, eval.Accuracy)
		} else {
			logger.Warn("Failed to evaluate trained model: %v", evalErr)
		}
	}
	if err == nil && s.opts.ArtifactPath != "" {
		if saveErr := s.trainer.Model().Save(s.opts.ArtifactPath); saveErr != nil {
			logger.Error("Failed to save model artifact: %v", saveErr)
		} else {
			run.ArtifactPath = s.opts.ArtifactPath
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if recErr := s.store.RecordTrainingRun(ctx, run); recErr != nil {
		logger.Warn("Failed to record training run: %v", recErr)
	}
}
