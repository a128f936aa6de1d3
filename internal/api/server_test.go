package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/unrestwatch/internal/classifier"
	"github.com/rewired-gh/unrestwatch/internal/export"
	"github.com/rewired-gh/unrestwatch/internal/features"
	"github.com/rewired-gh/unrestwatch/internal/metrics"
	"github.com/rewired-gh/unrestwatch/internal/models"
	"github.com/rewired-gh/unrestwatch/internal/monitor"
	"github.com/rewired-gh/unrestwatch/internal/scoring"
	"github.com/rewired-gh/unrestwatch/internal/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	protestText = "Protest planned tomorrow, violence expected"
	calmText    = "market day in Nakuru"
)

type testEnv struct {
	server *Server
	store  *storage.Storage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.New(storage.DriverSQLite, ":memory:", 1000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	scorer, err := scoring.NewDefault(scoring.Config{Thresholds: scoring.DefaultThresholds(), Workers: 2})
	require.NoError(t, err)

	cfg := classifier.DefaultConfig()
	cfg.CVFolds = 2
	cfg.Grid = classifier.Grid{NEstimators: []int{5}, MaxDepth: []int{3}, MinSamplesSplit: []int{2}}

	opts := DefaultOptions()
	opts.ArtifactPath = filepath.Join(t.TempDir(), "model.json")

	s := New(opts, scorer,
		features.New(features.DefaultConfig()),
		classifier.NewModel(cfg),
		monitor.NewAggregator(monitor.NewDetector(monitor.DefaultDetectorConfig())),
		store,
		metrics.New(),
	)
	s.now = func() time.Time { return time.Date(2024, time.June, 30, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() {
		s.Trainer().Cancel()
		s.Trainer().Wait()
	})
	return &testEnv{server: s, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func tweet(text, region, ts string) map[string]any {
	m := map[string]any{"text": text, "region": region}
	if ts != "" {
		m["timestamp"] = ts
	}
	return m
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var root map[string]any
	decode(t, w, &root)
	assert.Equal(t, "active", root["status"])
	assert.Equal(t, false, root["model_loaded"])

	w = env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2024-06-30T12:00:00Z")
}

func TestPredict(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/predict", map[string]any{
		"tweets": []any{
			tweet(protestText, "Nairobi", "2024-06-03T10:00:00Z"),
			tweet(protestText, "Nairobi", "2024-06-04T10:00:00Z"),
			tweet(calmText, "Nakuru", "not a date"),
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Predictions     []models.Projection `json:"predictions"`
		OverallRisk     string              `json:"overall_risk"`
		HighRiskRegions []string            `json:"high_risk_regions"`
		Visualization   *Dashboard          `json:"visualization"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Predictions, 3)
	assert.Equal(t, "Nairobi", resp.Predictions[0].Region)
	for _, word := range []string{"protest", "tomorrow", "violence"} {
		assert.Contains(t, strings.Fields(resp.Predictions[0].CleanedText), word)
	}
	assert.Equal(t, models.RiskLow, resp.Predictions[2].RiskLevel)
	assert.Equal(t, "High", resp.OverallRisk)
	assert.Equal(t, []string{"Nairobi"}, resp.HighRiskRegions)
	assert.Nil(t, resp.Visualization)

	n, err := env.store.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPredict_Visualization(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/predict", map[string]any{
		"tweets": []any{
			tweet(protestText, "Nairobi", "2024-06-03T10:00:00Z"),
			tweet(calmText, "Kisumu", "2024-06-04T10:00:00Z"),
		},
		"include_visualizations": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp PredictResponse
	decode(t, w, &resp)
	require.NotNil(t, resp.Visualization)
	assert.Equal(t, []string{"2024-06-03", "2024-06-04"}, resp.Visualization.Timeline.Dates)
	assert.Equal(t, []string{"Kisumu", "Nairobi"}, resp.Visualization.Heatmap.Regions)
	assert.Equal(t, [][]float64{{0, 0}, {1, 0}}, resp.Visualization.Heatmap.RiskValues)
}

func TestPredict_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/predict", map[string]any{"tweets": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no tweets provided")

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateReport(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/predict", map[string]any{
		"tweets": []any{
			tweet(protestText, "Nairobi", "2024-06-03T10:00:00Z"),
			tweet(calmText, "Nakuru", "2024-06-10T10:00:00Z"),
			tweet(protestText, "Nairobi", "2024-07-01T10:00:00Z"),
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	for _, month := range []string{"june", "Jun", "6", "06"} {
		w = env.do(t, http.MethodGet, "/generate_report/"+month+"/2024", nil)
		require.Equal(t, http.StatusOK, w.Code, month)

		var resp struct {
			ReportData models.Report `json:"report_data"`
		}
		decode(t, w, &resp)
		assert.Equal(t, "June", resp.ReportData.Month)
		assert.Equal(t, 2, resp.ReportData.Summary.Total)
		require.NotNil(t, resp.ReportData.Trends)
		assert.Equal(t, []int{23, 24}, resp.ReportData.Trends.Weeks)
	}

	w = env.do(t, http.MethodGet, "/generate_report/june/2024?format=xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "conflict_report_june_2024.xlsx")
	assert.NotZero(t, w.Body.Len())

	w = env.do(t, http.MethodGet, "/generate_report/13/2024", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodGet, "/generate_report/june/year", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassify_Untrained(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/classify", map[string]any{"tweets": []any{tweet(protestText, "Nairobi", "")}})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTrain_NoPosts(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/train", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrainAndClassify(t *testing.T) {
	env := newTestEnv(t)

	texts := []string{protestText, calmText, "Peaceful celebration, happy families in the park"}
	regions := []string{"Nairobi", "Mombasa", "Kisumu"}
	var tweets []any
	for day := 1; day <= 10; day++ {
		for i, text := range texts {
			tweets = append(tweets, tweet(text, regions[i], fmt.Sprintf("2024-06-%02dT%02d:00:00Z", day, 8+i)))
		}
	}
	w := env.do(t, http.MethodPost, "/predict", map[string]any{"tweets": tweets})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/train", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	env.server.Trainer().Wait()
	require.Equal(t, classifier.TrainReady, env.server.Trainer().Status().State, env.server.Trainer().Status().Error)

	w = env.do(t, http.MethodGet, "/model/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Training   classifier.TrainStatus `json:"training"`
		Model      *classifier.Info       `json:"model"`
		RecentRuns []storage.TrainingRun  `json:"recent_runs"`
	}
	decode(t, w, &status)
	assert.Equal(t, classifier.TrainReady, status.Training.State)
	require.NotNil(t, status.Model)
	require.Len(t, status.RecentRuns, 1)
	assert.Empty(t, status.RecentRuns[0].Error)
	assert.NotEmpty(t, status.RecentRuns[0].ArtifactPath)
	assert.FileExists(t, status.RecentRuns[0].ArtifactPath)

	w = env.do(t, http.MethodPost, "/classify", map[string]any{
		"tweets": []any{
			tweet(protestText, "Nairobi", "2024-06-11T08:00:00Z"),
			tweet(calmText, "Mombasa", "2024-06-11T09:00:00Z"),
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cls struct {
		Classes         []string         `json:"classes"`
		Classifications []Classification `json:"classifications"`
	}
	decode(t, w, &cls)
	require.Len(t, cls.Classifications, 2)
	for _, c := range cls.Classifications {
		assert.Contains(t, cls.Classes, c.Predicted)
		sum := 0.0
		for _, p := range c.Probabilities {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
}

func TestTrainingRuns_EvaluateOwnHoldout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	separable := func(n int) ([][]float64, []string) {
		X := make([][]float64, n)
		y := make([]string, n)
		for i := range X {
			jitter := float64(i%5) * 0.1
			if i%2 == 0 {
				X[i], y[i] = []float64{jitter, jitter}, "Low"
			} else {
				X[i], y[i] = []float64{10 + jitter, 10 - jitter}, "High"
			}
		}
		return X, y
	}
	holdoutX := [][]float64{{0, 0}, {10, 10}}
	names := []string{"a", "b"}

	trainer := env.server.Trainer()
	X, y := separable(20)
	require.NoError(t, trainer.StartWith(ctx, X, y, names, env.server.trainingComplete(holdoutX, []string{"Low", "High"})))
	trainer.Wait()
	X, y = separable(18)
	require.NoError(t, trainer.StartWith(ctx, X, y, names, env.server.trainingComplete(holdoutX, []string{"High", "Low"})))
	trainer.Wait()

	runs, err := env.store.TrainingRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	accuracy := map[int]float64{}
	for _, r := range runs {
		assert.Empty(t, r.Error)
		accuracy[r.Records] = r.Accuracy
	}
	assert.InDelta(t, 1.0, accuracy[20], 1e-9, "first job scored on its own holdout")
	assert.InDelta(t, 0.0, accuracy[18], 1e-9, "second job scored on its own holdout")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/predict", map[string]any{"tweets": []any{tweet(protestText, "Nairobi", "")}})

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unrestwatch_posts_scored_total")
	assert.Contains(t, w.Body.String(), `endpoint="/predict"`)
}

func TestBuildDashboard(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, time.June, d, 9, 0, 0, 0, time.UTC) }
	posts := []models.ScoredPost{
		{Post: models.Post{Region: "Nairobi", Timestamp: day(1)}, Sentiment: models.SentimentScore{Compound: -0.5}, ConflictIntensity: 0.6, RiskLevel: models.RiskCritical},
		{Post: models.Post{Region: "Nairobi", Timestamp: day(1)}, Sentiment: models.SentimentScore{Compound: 0.1}, ConflictIntensity: 0.0, RiskLevel: models.RiskLow},
		{Post: models.Post{Region: "", Timestamp: day(2)}, Sentiment: models.SentimentScore{Compound: 0.2}, ConflictIntensity: 0.2, RiskLevel: models.RiskMedium},
		{Post: models.Post{Region: "Nairobi"}, RiskLevel: models.RiskHigh},
	}

	d := BuildDashboard(posts, day(3))
	assert.Equal(t, "2024-06-03T09:00:00Z", d.GeneratedAt)
	assert.Equal(t, []string{"2024-06-01", "2024-06-02"}, d.Timeline.Dates)
	assert.Equal(t, []float64{-0.2, 0.2}, d.Timeline.Sentiment)
	assert.Equal(t, []float64{0.3, 0.2}, d.Timeline.Intensity)
	assert.Equal(t, []string{"Nairobi", "Unknown"}, d.Heatmap.Regions)
	assert.Equal(t, [][]float64{{0.5, 0}, {0, 0}}, d.Heatmap.RiskValues)
	require.Len(t, d.Map, 1)
	assert.Equal(t, MapPoint{Region: "Nairobi", Lat: -1.286389, Lon: 36.817223, Risk: 0.5, Posts: 2}, d.Map[0])
}
