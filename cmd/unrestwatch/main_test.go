package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/unrestwatch/internal/config"
	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/metrics"
	"github.com/rewired-gh/unrestwatch/internal/models"
	"github.com/rewired-gh/unrestwatch/internal/monitor"
	"github.com/rewired-gh/unrestwatch/internal/scoring"
	"github.com/rewired-gh/unrestwatch/internal/storage"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeNotifier struct {
	sendErr    error
	warnings   [][]models.Warning
	errors     []error
	recoveries []int
}

func (f *fakeNotifier) SendWarnings(_ context.Context, w []models.Warning) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.warnings = append(f.warnings, w)
	return nil
}

func (f *fakeNotifier) SendError(_ context.Context, err error) error {
	f.errors = append(f.errors, err)
	return nil
}

func (f *fakeNotifier) SendRecovery(_ context.Context, failures int) error {
	f.recoveries = append(f.recoveries, failures)
	return nil
}

// fakeFeed serves posts published at or after since, oldest first, in pages
// of limit.
type fakeFeed struct {
	posts []models.PostInput
	limit int
	err   error
	since []time.Time
}

func (f *fakeFeed) Limit() int { return f.limit }

func (f *fakeFeed) FetchPosts(_ context.Context, since time.Time) ([]models.PostInput, error) {
	f.since = append(f.since, since)
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PostInput
	for _, in := range f.posts {
		ts, err := models.ParseTimestamp(*in.Timestamp)
		if err != nil || ts.Before(since) {
			continue
		}
		out = append(out, in)
		if len(out) == f.limit {
			break
		}
	}
	return out, nil
}

// failingStore fails the first failures inserts.
type failingStore struct {
	*storage.Storage
	failures int
}

func (f *failingStore) AddScoredPosts(ctx context.Context, posts []models.ScoredPost) (int, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("disk full")
	}
	return f.Storage.AddScoredPosts(ctx, posts)
}

func feedPosts(start time.Time, n int, text string) []models.PostInput {
	region := "Nairobi"
	out := make([]models.PostInput, n)
	for i := range out {
		ts := start.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)
		out[i] = models.PostInput{Text: text, Region: &region, Timestamp: &ts}
	}
	return out
}

func newFeedLoop(t *testing.T, f *fakeFeed) (*monitorLoop, *storage.Storage) {
	t.Helper()
	loop, store := newTestLoop(t, nil)
	scorer, err := scoring.NewDefault(scoring.Config{Thresholds: scoring.DefaultThresholds()})
	require.NoError(t, err)
	loop.feed = f
	loop.scorer = scorer
	return loop, store
}

func TestParseInputs(t *testing.T) {
	arr, err := parseInputs([]byte(`[{"text":"a","region":"Nairobi"},{"text":"b","retweet_count":3}]`))
	require.NoError(t, err)
	require.Len(t, arr, 2)
	assert.Equal(t, "Nairobi", *arr[0].Region)
	assert.Equal(t, 3, *arr[1].RetweetCount)

	lines, err := parseInputs([]byte("{\"text\":\"a\"}\n\nnot json\n{\"text\":\"c\",\"timestamp\":\"2024-06-03\"}\n"))
	require.NoError(t, err)
	require.Len(t, lines, 2, "bad line skipped")
	assert.Equal(t, "2024-06-03", *lines[1].Timestamp)

	empty, err := parseInputs([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = parseInputs([]byte(`[{"text":`))
	assert.Error(t, err)
}

func newTestLoop(t *testing.T, n *fakeNotifier) (*monitorLoop, *storage.Storage) {
	t.Helper()
	store, err := storage.New(storage.DriverSQLite, ":memory:", 1000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg, err := config.Load("")
	require.NoError(t, err)

	loop := &monitorLoop{
		cfg:     cfg.Monitor,
		mon:     monitor.New(monitor.NewDetector(cfg.DetectorConfig())),
		store:   store,
		metrics: metrics.New(),
	}
	if n != nil {
		loop.notifier = n
	}
	return loop, store
}

func clusterPosts(start time.Time, n int) []models.ScoredPost {
	posts := make([]models.ScoredPost, n)
	for i := range posts {
		posts[i] = models.ScoredPost{
			Post: models.Post{
				ID:        fmt.Sprintf("p%d", i),
				Text:      "riot clash attack violence",
				Timestamp: start.Add(time.Duration(i) * time.Hour),
				Region:    "Nairobi",
			},
			ConflictIntensity: 0.8,
			RiskLevel:         models.RiskCritical,
		}
	}
	return posts
}

func TestRunCycle_SendsAndCoolsDown(t *testing.T) {
	n := &fakeNotifier{}
	loop, store := newTestLoop(t, n)
	ctx := context.Background()

	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	_, err := store.AddScoredPosts(ctx, clusterPosts(now.Add(-24*time.Hour), 11))
	require.NoError(t, err)

	require.NoError(t, loop.runCycle(ctx, now))
	require.Len(t, n.warnings, 1)
	require.Len(t, n.warnings[0], 1)
	assert.Equal(t, models.WarningHighIntensityCluster, n.warnings[0][0].Type)

	stored, err := store.RecentWarnings(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	require.NoError(t, loop.runCycle(ctx, now.Add(time.Minute)))
	assert.Len(t, n.warnings, 1, "second cycle is inside the cooldown")
	stored, err = store.RecentWarnings(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestRunCycle_OutsideLookback(t *testing.T) {
	n := &fakeNotifier{}
	loop, store := newTestLoop(t, n)
	ctx := context.Background()

	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	_, err := store.AddScoredPosts(ctx, clusterPosts(now.Add(-2*loop.cfg.Lookback), 11))
	require.NoError(t, err)

	require.NoError(t, loop.runCycle(ctx, now))
	assert.Empty(t, n.warnings)
}

func TestRunCycle_SendFailureAllowsRetry(t *testing.T) {
	n := &fakeNotifier{sendErr: errors.New("telegram down")}
	loop, store := newTestLoop(t, n)
	ctx := context.Background()

	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	_, err := store.AddScoredPosts(ctx, clusterPosts(now.Add(-24*time.Hour), 11))
	require.NoError(t, err)

	require.NoError(t, loop.runCycle(ctx, now))
	n.sendErr = nil
	require.NoError(t, loop.runCycle(ctx, now.Add(time.Minute)))
	assert.Len(t, n.warnings, 1, "undelivered warnings are not in cooldown")
}

func TestRunCycle_IngestsFeed(t *testing.T) {
	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	f := &fakeFeed{posts: feedPosts(now.Add(-16*time.Hour), 2, "Protest planned tomorrow"), limit: 100}
	loop, store := newFeedLoop(t, f)
	ctx := context.Background()

	require.NoError(t, loop.runCycle(ctx, now))
	count, err := store.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, loop.runCycle(ctx, now.Add(15*time.Minute)))
	require.Len(t, f.since, 2)
	assert.Equal(t, now.Add(-loop.cfg.Lookback), f.since[0])
	assert.Equal(t, now.Add(-15*time.Hour), f.since[1], "cursor moves to the newest stored post")
}

func TestRunCycle_RedeliveredPostsStoredOnce(t *testing.T) {
	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	f := &fakeFeed{posts: feedPosts(now.Add(-24*time.Hour), 6, "riot clash attack violence protest"), limit: 100}
	n := &fakeNotifier{}
	loop, store := newFeedLoop(t, f)
	loop.notifier = n
	ctx := context.Background()

	require.NoError(t, loop.runCycle(ctx, now))
	loop.lastFetch = time.Time{}
	require.NoError(t, loop.runCycle(ctx, now.Add(time.Minute)))

	count, err := store.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	assert.Empty(t, n.warnings, "six posts do not form an intensity cluster")
}

func TestRunCycle_PagesThroughFullFeed(t *testing.T) {
	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	f := &fakeFeed{posts: feedPosts(now.Add(-24*time.Hour), 5, "market day"), limit: 2}
	loop, store := newFeedLoop(t, f)
	ctx := context.Background()

	require.NoError(t, loop.runCycle(ctx, now))
	count, err := store.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, now.Add(-20*time.Hour), loop.lastFetch)
}

func TestRunCycle_StalledPageStops(t *testing.T) {
	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	ts := now.Add(-time.Hour).Format(time.RFC3339)
	var posts []models.PostInput
	for i := 0; i < 3; i++ {
		text := fmt.Sprintf("same second %d", i)
		posts = append(posts, models.PostInput{Text: text, Timestamp: &ts})
	}
	f := &fakeFeed{posts: posts, limit: 2}
	loop, _ := newFeedLoop(t, f)

	require.NoError(t, loop.runCycle(context.Background(), now))
	assert.Len(t, f.since, 2, "a full page that does not advance the cursor ends paging")
}

func TestRunCycle_StoreFailureKeepsCursor(t *testing.T) {
	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	f := &fakeFeed{posts: feedPosts(now.Add(-24*time.Hour), 3, "market day"), limit: 100}
	loop, store := newFeedLoop(t, f)
	loop.store = &failingStore{Storage: store, failures: 1}
	ctx := context.Background()

	require.Error(t, loop.runCycle(ctx, now))
	require.NoError(t, loop.runCycle(ctx, now.Add(time.Minute)))

	require.Len(t, f.since, 2)
	assert.Equal(t, f.since[0], f.since[1], "posts that failed to store are fetched again")
	count, err := store.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRunCycle_FeedErrorFailsCycle(t *testing.T) {
	loop, _ := newTestLoop(t, nil)
	f := &fakeFeed{err: errors.New("feed down"), limit: 10}
	loop.feed = f

	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	require.Error(t, loop.runCycle(context.Background(), now))
	require.Error(t, loop.runCycle(context.Background(), now.Add(time.Minute)))
	assert.Equal(t, f.since[0], f.since[1], "failed fetches are retried from the same point")
}

func TestHandleCycleResult(t *testing.T) {
	n := &fakeNotifier{}
	loop, _ := newTestLoop(t, n)
	ctx := context.Background()

	loop.handleCycleResult(ctx, errors.New("first"))
	loop.handleCycleResult(ctx, errors.New("second"))
	require.Len(t, n.errors, 1, "only the first failure of a streak is reported")
	assert.EqualError(t, n.errors[0], "first")

	loop.handleCycleResult(ctx, nil)
	assert.Equal(t, []int{2}, n.recoveries)
	assert.Zero(t, loop.consecutiveFailures)

	loop.handleCycleResult(ctx, nil)
	assert.Len(t, n.recoveries, 1)
}

func TestRootCmd_ConfigErrors(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"report", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--env-file", ""})
	cmd.SetOut(io.Discard)
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestReportCmd_FromInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "posts.json")
	require.NoError(t, os.WriteFile(input, []byte(`[
		{"text":"Protest planned tomorrow, violence expected","region":"Nairobi","timestamp":"2024-06-03T10:00:00Z"},
		{"text":"market day in Nakuru","region":"Nakuru","timestamp":"2024-06-04T10:00:00Z"}
	]`), 0o644))
	out := filepath.Join(dir, "report.json")
	xlsx := filepath.Join(dir, "report.xlsx")

	t.Setenv("UNRESTWATCH_STORAGE_DSN", filepath.Join(dir, "unrestwatch.db"))
	cmd := newRootCmd()
	cmd.SetArgs([]string{"report", "--env-file", "", "--month", "june", "--year", "2024", "-i", input, "-o", out, "--xlsx", xlsx})
	require.NoError(t, cmd.Execute())

	assert.FileExists(t, out)
	assert.FileExists(t, xlsx)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"month": "June"`)
	assert.Contains(t, string(data), `"total": 2`)
}
