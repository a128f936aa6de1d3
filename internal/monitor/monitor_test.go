package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

var day0 = time.Date(2024, time.June, 3, 10, 0, 0, 0, time.UTC)

func scored(region string, ts time.Time, compound, intensity float64, level models.RiskLevel) models.ScoredPost {
	return models.ScoredPost{
		Post:              models.Post{ID: region + ts.String(), Region: region, Timestamp: ts},
		Sentiment:         models.SentimentScore{Compound: compound},
		ConflictIntensity: intensity,
		RiskLevel:         level,
	}
}

// dropBatch returns 14 daily posts, the oldest 7 at compound old and the
// newest 7 at compound recent, in shuffled order.
func dropBatch(old, recent float64) []models.ScoredPost {
	var batch []models.ScoredPost
	for i := 13; i >= 0; i-- {
		compound := old
		if i >= 7 {
			compound = recent
		}
		batch = append(batch, scored("Nairobi", day0.AddDate(0, 0, i), compound, 0.2, models.RiskLow))
	}
	return batch
}

func TestDetect_SentimentDrop(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	warnings := d.Detect(dropBatch(-0.1, -0.5))
	require.Len(t, warnings, 1)
	w := warnings[0]
	assert.Equal(t, models.WarningSentimentDrop, w.Type)
	assert.Equal(t, models.SeverityHigh, w.Severity)
	assert.Equal(t, "Significant sentiment drop detected: -0.50 vs -0.10", w.Message)
	assert.Equal(t, "Monitor social media for potential unrest triggers", w.SuggestedAction)
	assert.NoError(t, w.Validate())
}

func TestDetect_NoDropOnSmallChangeOrRise(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	assert.Empty(t, d.Detect(dropBatch(-0.1, -0.3)))
	assert.Empty(t, d.Detect(dropBatch(-0.5, 0.5)))
}

func TestSentimentWindows(t *testing.T) {
	t.Run("short batch overlaps", func(t *testing.T) {
		var batch []models.ScoredPost
		for i := range 5 {
			batch = append(batch, scored("Nairobi", day0.AddDate(0, 0, i), float64(-i), 0, models.RiskLow))
		}
		recent, previous, ok := SentimentWindows(batch, 7)
		require.True(t, ok)
		assert.Equal(t, recent, previous)
		assert.Empty(t, NewDetector(DefaultDetectorConfig()).Detect(batch))
	})

	t.Run("ten posts", func(t *testing.T) {
		var batch []models.ScoredPost
		for i := range 10 {
			batch = append(batch, scored("Nairobi", day0.AddDate(0, 0, i), float64(i), 0, models.RiskLow))
		}
		recent, previous, ok := SentimentWindows(batch, 7)
		require.True(t, ok)
		assert.InDelta(t, 6.0, recent, 1e-12)   // 3..9
		assert.InDelta(t, 3.0, previous, 1e-12) // 0..6
	})

	t.Run("undated posts are ignored", func(t *testing.T) {
		batch := []models.ScoredPost{
			scored("Nairobi", time.Time{}, -1, 0, models.RiskLow),
			scored("Nairobi", day0, 0.5, 0, models.RiskLow),
		}
		recent, _, ok := SentimentWindows(batch, 7)
		require.True(t, ok)
		assert.Equal(t, 0.5, recent)

		_, _, ok = SentimentWindows(batch[:1], 7)
		assert.False(t, ok)
	})
}

func TestDetect_IntensityCluster(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	var batch []models.ScoredPost
	for i := range 11 {
		batch = append(batch, scored("Kisumu", day0.Add(time.Duration(i)*time.Hour), 0, 0.9, models.RiskMedium))
	}
	for i := range 5 {
		batch = append(batch, scored("Kisumu", day0.AddDate(0, 0, 1+i), 0, 0.6, models.RiskLow))
	}

	warnings := d.Detect(batch)
	require.Len(t, warnings, 1)
	assert.Equal(t, models.WarningHighIntensityCluster, warnings[0].Type)
	assert.Equal(t, models.SeverityCritical, warnings[0].Severity)
	assert.Equal(t, "11 high-intensity conflict mentions detected", warnings[0].Message)

	// Exactly ten is not a cluster; 0.7 itself is not high intensity.
	batch = batch[1:]
	batch = append(batch, scored("Kisumu", day0, 0, 0.7, models.RiskLow))
	assert.Empty(t, d.Detect(batch))
}

func TestDetect_EmptyBatch(t *testing.T) {
	warnings := NewDetector(DefaultDetectorConfig()).Detect(nil)
	assert.NotNil(t, warnings)
	assert.Empty(t, warnings)
}

func newTestAggregator() *Aggregator {
	a := NewAggregator(NewDetector(DefaultDetectorConfig()))
	a.now = func() time.Time { return time.Date(2024, time.July, 1, 8, 30, 0, 0, time.UTC) }
	return a
}

func TestAggregate(t *testing.T) {
	week24 := day0.AddDate(0, 0, 7)
	batch := []models.ScoredPost{
		scored("Nairobi", day0, -0.4, 0.4, models.RiskHigh),
		scored("Nairobi", week24, -0.2, 0.2, models.RiskLow),
		scored("Kisumu", day0, -0.6, 0.8, models.RiskCritical),
		scored("Mombasa", week24, 0.3, 0, models.RiskLow),
		scored("", time.Time{}, 0.1, 0, models.RiskMedium),
	}

	r := newTestAggregator().Aggregate(batch, "June", 2024)

	assert.Equal(t, "June", r.Month)
	assert.Equal(t, 2024, r.Year)
	assert.Equal(t, "2024-07-01 08:30:00", r.GeneratedDate)

	assert.Equal(t, 5, r.Summary.Total)
	assert.Equal(t, 2, r.Summary.HighRiskCount)
	assert.InDelta(t, 40.0, r.Summary.HighRiskPct, 1e-9)
	assert.InDelta(t, -0.16, r.Summary.AvgSentiment, 1e-9)
	assert.InDelta(t, 0.28, r.Summary.AvgIntensity, 1e-9)

	assert.Equal(t, map[string]models.RegionalStats{
		"Nairobi": {Sentiment: -0.3, Intensity: 0.3, RiskPct: 50},
		"Kisumu":  {Sentiment: -0.6, Intensity: 0.8, RiskPct: 100},
		"Mombasa": {Sentiment: 0.3, Intensity: 0, RiskPct: 0},
		"Unknown": {Sentiment: 0.1, Intensity: 0, RiskPct: 0},
	}, r.RegionalAnalysis)

	require.NotNil(t, r.KeyFindings)
	assert.Equal(t, []string{"Kisumu", "Nairobi", "Mombasa"}, r.KeyFindings.TopHighRiskRegions)
	assert.Equal(t, "Kisumu", r.KeyFindings.MostNegativeSentimentRegion)
	assert.Equal(t, "Kisumu", r.KeyFindings.HighestConflictIntensityRegion)
	assert.Equal(t, []string{
		"Increase monitoring and peacekeeping presence in Kisumu",
		"Increase monitoring and peacekeeping presence in Nairobi",
		"Increase monitoring and peacekeeping presence in Mombasa",
	}, r.Recommendations)

	require.NotNil(t, r.Trends)
	assert.Equal(t, []int{23, 24}, r.Trends.Weeks)
	assert.InDeltaSlice(t, []float64{-0.5, 0.05}, r.Trends.WeeklySentiment, 1e-9)
	assert.InDeltaSlice(t, []float64{0.6, 0.1}, r.Trends.WeeklyIntensity, 1e-9)
	assert.InDeltaSlice(t, []float64{100, 0}, r.Trends.WeeklyRisk, 1e-9)
	assert.Equal(t, 23, r.Trends.PeakRiskWeek)

	assert.Empty(t, r.EarlyWarnings)
}

func TestAggregate_PeakWeekTieKeepsFirst(t *testing.T) {
	batch := []models.ScoredPost{
		scored("Nairobi", day0, 0, 0, models.RiskHigh),
		scored("Nairobi", day0.AddDate(0, 0, 7), 0, 0, models.RiskHigh),
	}
	r := newTestAggregator().Aggregate(batch, "June", 2024)
	require.NotNil(t, r.Trends)
	assert.Equal(t, 23, r.Trends.PeakRiskWeek)
}

func TestAggregate_Empty(t *testing.T) {
	r := newTestAggregator().Aggregate(nil, "May", 2024)

	assert.Equal(t, models.Summary{}, r.Summary)
	assert.Nil(t, r.RegionalAnalysis)
	assert.Nil(t, r.KeyFindings)
	assert.Nil(t, r.Trends)
	assert.NotNil(t, r.EarlyWarnings)
	assert.NotNil(t, r.Recommendations)
}

func TestAggregate_UndatedOnlyOmitsTrends(t *testing.T) {
	batch := []models.ScoredPost{scored("Meru", time.Time{}, -0.2, 0.4, models.RiskHigh)}
	r := newTestAggregator().Aggregate(batch, "May", 2024)
	assert.Nil(t, r.Trends)
	assert.Equal(t, []string{"Meru"}, r.KeyFindings.TopHighRiskRegions)
}

func TestAggregate_Deterministic(t *testing.T) {
	a := newTestAggregator()
	batch := dropBatch(-0.1, -0.5)
	first := a.Aggregate(batch, "June", 2024)
	second := a.Aggregate(batch, "June", 2024)

	// Warning IDs and detection times differ per run.
	first.EarlyWarnings, second.EarlyWarnings = nil, nil
	assert.Equal(t, first, second)
}

func TestMonitor_Cooldown(t *testing.T) {
	now := day0
	m := New(NewDetector(DefaultDetectorConfig()))
	m.now = func() time.Time { return now }

	drop := models.Warning{Type: models.WarningSentimentDrop, Severity: models.SeverityHigh}
	cluster := models.Warning{Type: models.WarningHighIntensityCluster, Severity: models.SeverityCritical}

	sent := m.FilterRecentlySent([]models.Warning{drop, cluster}, time.Hour)
	assert.Len(t, sent, 2)
	m.RecordNotified(sent)

	now = now.Add(30 * time.Minute)
	assert.Empty(t, m.FilterRecentlySent([]models.Warning{drop, cluster}, time.Hour))

	escalated := drop
	escalated.Severity = models.SeverityCritical
	assert.Equal(t, []models.Warning{escalated}, m.FilterRecentlySent([]models.Warning{escalated}, time.Hour))

	now = now.Add(time.Hour)
	assert.Len(t, m.FilterRecentlySent([]models.Warning{drop, cluster}, time.Hour), 2)
}

func TestMonitor_Detect(t *testing.T) {
	m := New(NewDetector(DefaultDetectorConfig()))
	warnings := m.Detect(dropBatch(0.4, -0.4))
	require.Len(t, warnings, 1)
	assert.Equal(t, models.WarningSentimentDrop, warnings[0].Type)
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		in   string
		want time.Month
		ok   bool
	}{
		{"January", time.January, true},
		{"dec", time.December, true},
		{"9", time.September, true},
		{"0", 0, false},
		{"Sept", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseMonth(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
