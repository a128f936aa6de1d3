package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/unrestwatch/internal/classifier"
	"github.com/rewired-gh/unrestwatch/internal/export"
	"github.com/rewired-gh/unrestwatch/internal/features"
	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/models"
	"github.com/rewired-gh/unrestwatch/internal/monitor"
	"github.com/rewired-gh/unrestwatch/internal/scoring"
)

// PredictRequest is the body of /predict and /classify.
type PredictRequest struct {
	Tweets                []models.PostInput `json:"tweets"`
	IncludeVisualizations bool               `json:"include_visualizations"`
}

// PredictResponse is the /predict result.
type PredictResponse struct {
	Predictions     []models.Projection `json:"predictions"`
	OverallRisk     models.RiskLevel    `json:"overall_risk"`
	HighRiskRegions []string            `json:"high_risk_regions"`
	Visualization   *Dashboard          `json:"visualization,omitempty"`
}

// Classification is one /classify result row.
type Classification struct {
	Text          string             `json:"text"`
	Region        string             `json:"region"`
	Predicted     string             `json:"predicted"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func errorJSON(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":      "Conflict Early Warning System API",
		"status":       "active",
		"version":      Version,
		"model_loaded": s.trainer.Model().Trained(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func bindRequest(c *gin.Context) (PredictRequest, bool) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return req, false
	}
	if len(req.Tweets) == 0 {
		errorJSON(c, http.StatusBadRequest, errors.New("no tweets provided"))
		return req, false
	}
	return req, true
}

// scoreInputs converts and scores the request posts. Malformed timestamps
// are logged and the post is kept undated.
func (s *Server) scoreInputs(c *gin.Context, inputs []models.PostInput) ([]models.ScoredPost, bool) {
	posts := make([]models.Post, len(inputs))
	for i, in := range inputs {
		post, err := in.ToPost()
		if err != nil {
			logger.Warn("Tweet %d: %v", i, err)
		}
		posts[i] = post
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
	defer cancel()
	scored, err := s.scorer.ScoreBatch(ctx, posts)
	if err != nil {
		errorJSON(c, http.StatusServiceUnavailable, err)
		return nil, false
	}
	s.metrics.ObserveScored(scored)
	return scored, true
}

func (s *Server) handlePredict(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}
	scored, ok := s.scoreInputs(c, req.Tweets)
	if !ok {
		return
	}

	if _, err := s.store.AddScoredPosts(c.Request.Context(), scored); err != nil {
		logger.Error("Failed to persist scored posts: %v", err)
		errorJSON(c, http.StatusInternalServerError, errors.New("failed to persist scored posts"))
		return
	}

	resp := PredictResponse{
		Predictions:     make([]models.Projection, len(scored)),
		OverallRisk:     scoring.OverallRisk(scored),
		HighRiskRegions: scoring.HighRiskRegions(scored, s.opts.HighRegionShare),
	}
	for i := range scored {
		resp.Predictions[i] = scored[i].Projection()
	}
	if req.IncludeVisualizations {
		d := BuildDashboard(scored, s.now())
		resp.Visualization = &d
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClassify(c *gin.Context) {
	if s.trainer.Status().State == classifier.TrainRunning {
		errorJSON(c, http.StatusServiceUnavailable, classifier.ErrNotReady)
		return
	}
	model := s.trainer.Model()
	names, err := model.FeatureNames()
	if err != nil {
		errorJSON(c, http.StatusConflict, err)
		return
	}

	req, ok := bindRequest(c)
	if !ok {
		return
	}
	scored, ok := s.scoreInputs(c, req.Tweets)
	if !ok {
		return
	}
	frame := s.engineer.Build(features.NewFrame(scored))
	labels, probs, err := s.trainer.Predict(features.Matrix(frame, names))
	switch {
	case errors.Is(err, classifier.ErrNotReady):
		errorJSON(c, http.StatusServiceUnavailable, err)
		return
	case errors.Is(err, classifier.ErrModelNotTrained):
		errorJSON(c, http.StatusConflict, err)
		return
	case err != nil:
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	classes, err := model.Classes()
	if err != nil {
		errorJSON(c, http.StatusConflict, err)
		return
	}

	out := make([]Classification, len(labels))
	for i := range labels {
		p := make(map[string]float64, len(classes))
		for j, class := range classes {
			p[class] = probs[i][j]
		}
		out[i] = Classification{
			Text:          scored[i].Post.Text,
			Region:        frame.Row(i).Region,
			Predicted:     labels[i],
			Probabilities: p,
		}
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes, "classifications": out})
}

func (s *Server) handleReport(c *gin.Context) {
	month, err := monitor.ParseMonth(c.Param("month"))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1 || year > 9999 {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid year %q", c.Param("year")))
		return
	}

	posts, err := s.store.PostsForMonth(c.Request.Context(), month, year)
	if err != nil {
		logger.Error("Failed to load posts for %s %d: %v", month, year, err)
		errorJSON(c, http.StatusInternalServerError, errors.New("failed to load posts"))
		return
	}
	report := s.aggregator.Aggregate(posts, month.String(), year)

	if strings.EqualFold(c.Query("format"), "xlsx") {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(report)))
		c.Header("Content-Type", export.ContentType)
		c.Status(http.StatusOK)
		if err := export.WriteReport(c.Writer, report); err != nil {
			logger.Error("Failed to write report workbook: %v", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Report generated successfully",
		"report_data": report,
	})
}

func (s *Server) handleDashboard(c *gin.Context) {
	now := s.now()
	posts, err := s.store.PostsInWindow(c.Request.Context(), now.Add(-s.opts.DashboardWindow), now)
	if err != nil {
		logger.Error("Failed to load dashboard posts: %v", err)
		errorJSON(c, http.StatusInternalServerError, errors.New("failed to load posts"))
		return
	}
	c.JSON(http.StatusOK, BuildDashboard(posts, now))
}

func (s *Server) handleModelStatus(c *gin.Context) {
	resp := gin.H{
		"training": s.trainer.Status(),
		"strategy": s.trainer.Model().Strategy(),
	}
	if info, err := s.trainer.Model().Info(); err == nil {
		resp["model"] = info
		resp["feature_importance"] = s.trainer.Model().FeatureImportance()
	}
	if runs, err := s.store.TrainingRuns(c.Request.Context(), 5); err == nil {
		resp["recent_runs"] = runs
	} else {
		logger.Warn("Failed to load training runs: %v", err)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTrain(c *gin.Context) {
	if s.trainer.Status().State == classifier.TrainRunning {
		errorJSON(c, http.StatusConflict, classifier.ErrTrainingInProgress)
		return
	}

	posts, err := s.store.AllPosts(c.Request.Context())
	if err != nil {
		logger.Error("Failed to load training posts: %v", err)
		errorJSON(c, http.StatusInternalServerError, errors.New("failed to load posts"))
		return
	}
	if len(posts) == 0 {
		errorJSON(c, http.StatusBadRequest, errors.New("no stored posts to train on"))
		return
	}

	frame := s.engineer.Build(features.NewFrame(posts))
	X, y, names, err := classifier.PrepareFeatures(frame, s.opts.TrainingTarget)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	XTrain, XTest, yTrain, yTest, err := classifier.SplitTrainTest(X, y, s.opts.TestFraction, s.opts.Seed)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	err = s.trainer.StartWith(context.Background(), XTrain, yTrain, names, s.trainingComplete(XTest, yTest))
	if err != nil {
		errorJSON(c, http.StatusConflict, err)
		return
	}

	logger.Info("Training started on %d posts (%d held out)", len(XTrain), len(XTest))
	c.JSON(http.StatusAccepted, gin.H{
		"status":   classifier.TrainRunning,
		"records":  len(XTrain),
		"held_out": len(XTest),
	})
}
