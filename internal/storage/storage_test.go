package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

func mustStorage(t *testing.T, maxPosts int) *Storage {
	t.Helper()
	s, err := New(DriverSQLite, ":memory:", maxPosts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func post(id string, ts time.Time, level models.RiskLevel) models.ScoredPost {
	return models.ScoredPost{
		Post: models.Post{
			ID:            id,
			Text:          "Protest planned tomorrow, violence expected",
			Timestamp:     ts,
			Region:        "Nairobi",
			RetweetCount:  3,
			FavoriteCount: 5,
		},
		CleanedText:       "protest planned tomorrow violence expected",
		Sentiment:         models.SentimentScore{Polarity: -0.4, Subjectivity: 0.6, Compound: -0.73, Positive: 0, Negative: 0.5, Neutral: 0.5},
		ConflictIntensity: 0.4,
		SentimentLabel:    models.SentimentNegative,
		RiskLevel:         level,
	}
}

var base = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New("mysql", "", 0)
	assert.Error(t, err)
}

func TestNew_ReopensFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unrestwatch.db")
	ctx := context.Background()

	s, err := New(DriverSQLite, path, 0)
	require.NoError(t, err)
	_, err = s.AddScoredPosts(ctx, []models.ScoredPost{post("a", base, models.RiskHigh)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(DriverSQLite, path, 0)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAddScoredPosts_RoundTrip(t *testing.T) {
	s := mustStorage(t, 0)
	ctx := context.Background()

	loc := "Nairobi CBD"
	dated := post("dated", base, models.RiskCritical)
	dated.Post.UserLocation = &loc
	undated := post("undated", time.Time{}, models.RiskLow)

	n, err := s.AddScoredPosts(ctx, []models.ScoredPost{dated, undated})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Duplicates are skipped.
	n, err = s.AddScoredPosts(ctx, []models.ScoredPost{dated})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, err := s.AllPosts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	got := all[0]
	assert.Equal(t, "dated", got.Post.ID)
	assert.True(t, got.Post.Timestamp.Equal(base))
	require.NotNil(t, got.Post.UserLocation)
	assert.Equal(t, loc, *got.Post.UserLocation)
	assert.Equal(t, dated.Sentiment, got.Sentiment)
	assert.Equal(t, models.RiskCritical, got.RiskLevel)
	assert.Equal(t, models.SentimentNegative, got.SentimentLabel)
	assert.Equal(t, dated.CleanedText, got.CleanedText)
	assert.Equal(t, 5, got.Post.FavoriteCount)

	assert.False(t, all[1].Post.HasTimestamp())
	assert.Nil(t, all[1].Post.UserLocation)
}

func TestAddScoredPosts_Invalid(t *testing.T) {
	s := mustStorage(t, 0)
	bad := post("bad", base, models.RiskLow)
	bad.Post.RetweetCount = -1

	_, err := s.AddScoredPosts(context.Background(), []models.ScoredPost{post("ok", base, models.RiskLow), bad})
	assert.Error(t, err)

	n, err := s.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a rejected batch stores nothing")
}

func TestPostsInWindowAndMonth(t *testing.T) {
	s := mustStorage(t, 0)
	ctx := context.Background()

	_, err := s.AddScoredPosts(ctx, []models.ScoredPost{
		post("apr", time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), models.RiskLow),
		post("mar-late", time.Date(2024, time.March, 31, 23, 59, 0, 0, time.UTC), models.RiskLow),
		post("mar-early", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), models.RiskLow),
		post("feb", time.Date(2024, time.February, 29, 12, 0, 0, 0, time.UTC), models.RiskLow),
		post("undated", time.Time{}, models.RiskLow),
	})
	require.NoError(t, err)

	march, err := s.PostsForMonth(ctx, time.March, 2024)
	require.NoError(t, err)
	ids := make([]string, len(march))
	for i, p := range march {
		ids[i] = p.Post.ID
	}
	assert.Equal(t, []string{"mar-early", "mar-late"}, ids)

	window, err := s.PostsInWindow(ctx, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, window, 2)

	_, err = s.PostsForMonth(ctx, 13, 2024)
	assert.Error(t, err)
}

func TestRotatePosts(t *testing.T) {
	s := mustStorage(t, 3)
	ctx := context.Background()

	for i := range 5 {
		_, err := s.AddScoredPosts(ctx, []models.ScoredPost{post(fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Hour), models.RiskLow)})
		require.NoError(t, err)
	}

	removed, err := s.RotatePosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	all, err := s.AllPosts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p2", all[0].Post.ID)
	assert.Equal(t, "p4", all[2].Post.ID)

	unbounded := mustStorage(t, 0)
	removed, err = unbounded.RotatePosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestWarnings(t *testing.T) {
	s := mustStorage(t, 0)
	ctx := context.Background()

	warnings := []models.Warning{
		{ID: "w1", Type: models.WarningSentimentDrop, Severity: models.SeverityHigh, Message: "drop", SuggestedAction: "watch", DetectedAt: base},
		{ID: "w2", Type: models.WarningHighIntensityCluster, Severity: models.SeverityCritical, Message: "cluster", SuggestedAction: "deploy", DetectedAt: base.Add(time.Hour)},
	}
	require.NoError(t, s.AddWarnings(ctx, warnings))
	require.NoError(t, s.AddWarnings(ctx, nil))

	got, err := s.RecentWarnings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "w2", got[0].ID)
	assert.Equal(t, models.SeverityCritical, got[0].Severity)
	assert.True(t, got[0].DetectedAt.Equal(base.Add(time.Hour)))

	err = s.AddWarnings(ctx, []models.Warning{{ID: "bad"}})
	assert.Error(t, err)
}

func TestTrainingRuns(t *testing.T) {
	s := mustStorage(t, 0)
	ctx := context.Background()

	run := TrainingRun{
		ID:           "run-1",
		Strategy:     "random_forest",
		Records:      120,
		Accuracy:     0.91,
		StartedAt:    base,
		FinishedAt:   base.Add(2 * time.Minute),
		ArtifactPath: "./data/model.json",
	}
	require.NoError(t, s.RecordTrainingRun(ctx, run))
	require.NoError(t, s.RecordTrainingRun(ctx, TrainingRun{ID: "run-2", Strategy: "xgboost", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour), Error: "empty training set"}))
	assert.Error(t, s.RecordTrainingRun(ctx, TrainingRun{}))

	runs, err := s.TrainingRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "empty training set", runs[0].Error)
	assert.Equal(t, 120, runs[1].Records)
	assert.InDelta(t, 0.91, runs[1].Accuracy, 1e-12)
	assert.True(t, runs[1].FinishedAt.Equal(run.FinishedAt))
}
