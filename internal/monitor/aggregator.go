package monitor

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

// GeneratedDateLayout formats Report.GeneratedDate.
const GeneratedDateLayout = "2006-01-02 15:04:05"

const topRegions = 3

// Aggregator assembles monthly reports from scored batches.
type Aggregator struct {
	detector *Detector
	now      func() time.Time
}

// NewAggregator creates an Aggregator whose reports carry the warnings of detector.
func NewAggregator(detector *Detector) *Aggregator {
	return &Aggregator{detector: detector, now: time.Now}
}

// Aggregate builds the report for batch. Regional sections are omitted for
// an empty batch and trends are omitted when no post carries a date.
func (a *Aggregator) Aggregate(batch []models.ScoredPost, month string, year int) models.Report {
	report := models.Report{
		Month:           month,
		Year:            year,
		GeneratedDate:   a.now().Format(GeneratedDateLayout),
		Summary:         summarize(batch),
		EarlyWarnings:   a.detector.Detect(batch),
		Recommendations: []string{},
	}
	if len(batch) == 0 {
		return report
	}

	regions, names := regionalStats(batch)
	report.RegionalAnalysis = regions
	report.KeyFindings = keyFindings(regions, names)
	for _, region := range report.KeyFindings.TopHighRiskRegions {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("Increase monitoring and peacekeeping presence in %s", region))
	}
	report.Trends = weeklyTrends(batch)
	return report
}

// bucket accumulates the three report aggregates of a group of posts.
type bucket struct {
	n         int
	sentiment float64
	intensity float64
	highRisk  int
}

func (b *bucket) add(p models.ScoredPost) {
	b.n++
	b.sentiment += p.Sentiment.Compound
	b.intensity += p.ConflictIntensity
	if p.RiskLevel.IsHigh() {
		b.highRisk++
	}
}

func (b *bucket) means() (sentiment, intensity, riskPct float64) {
	n := float64(b.n)
	return b.sentiment / n, b.intensity / n, float64(b.highRisk) / n * 100
}

func summarize(batch []models.ScoredPost) models.Summary {
	if len(batch) == 0 {
		return models.Summary{}
	}
	var b bucket
	for _, p := range batch {
		b.add(p)
	}
	sentiment, intensity, pct := b.means()
	return models.Summary{
		Total:         b.n,
		HighRiskCount: b.highRisk,
		HighRiskPct:   pct,
		AvgSentiment:  sentiment,
		AvgIntensity:  intensity,
	}
}

// regionalStats returns per-region stats rounded to two decimals and the
// region names in ascending order.
func regionalStats(batch []models.ScoredPost) (map[string]models.RegionalStats, []string) {
	buckets := make(map[string]*bucket)
	for _, p := range batch {
		region := p.Post.Region
		if region == "" {
			region = models.RegionUnknown
		}
		b, ok := buckets[region]
		if !ok {
			b = &bucket{}
			buckets[region] = b
		}
		b.add(p)
	}

	stats := make(map[string]models.RegionalStats, len(buckets))
	names := make([]string, 0, len(buckets))
	for region, b := range buckets {
		sentiment, intensity, pct := b.means()
		stats[region] = models.RegionalStats{
			Sentiment: round2(sentiment),
			Intensity: round2(intensity),
			RiskPct:   round2(pct),
		}
		names = append(names, region)
	}
	sort.Strings(names)
	return stats, names
}

// keyFindings ranks regions on their rounded stats. Ties go to the region
// that sorts first.
func keyFindings(stats map[string]models.RegionalStats, names []string) *models.KeyFindings {
	byRisk := append([]string(nil), names...)
	sort.SliceStable(byRisk, func(i, j int) bool {
		return stats[byRisk[i]].RiskPct > stats[byRisk[j]].RiskPct
	})

	kf := &models.KeyFindings{TopHighRiskRegions: byRisk[:min(topRegions, len(byRisk))]}
	for i, name := range names {
		s := stats[name]
		if i == 0 || s.Sentiment < stats[kf.MostNegativeSentimentRegion].Sentiment {
			kf.MostNegativeSentimentRegion = name
		}
		if i == 0 || s.Intensity > stats[kf.HighestConflictIntensityRegion].Intensity {
			kf.HighestConflictIntensityRegion = name
		}
	}
	return kf
}

// weeklyTrends groups dated posts by ISO week number. It returns nil when no
// post is dated.
func weeklyTrends(batch []models.ScoredPost) *models.Trends {
	buckets := make(map[int]*bucket)
	for _, p := range batch {
		if !p.Post.HasTimestamp() {
			continue
		}
		_, week := p.Post.Timestamp.ISOWeek()
		b, ok := buckets[week]
		if !ok {
			b = &bucket{}
			buckets[week] = b
		}
		b.add(p)
	}
	if len(buckets) == 0 {
		return nil
	}

	weeks := make([]int, 0, len(buckets))
	for w := range buckets {
		weeks = append(weeks, w)
	}
	sort.Ints(weeks)

	t := &models.Trends{Weeks: weeks}
	peak := math.Inf(-1)
	for _, w := range weeks {
		sentiment, intensity, pct := buckets[w].means()
		t.WeeklySentiment = append(t.WeeklySentiment, sentiment)
		t.WeeklyIntensity = append(t.WeeklyIntensity, intensity)
		t.WeeklyRisk = append(t.WeeklyRisk, pct)
		if pct > peak {
			peak = pct
			t.PeakRiskWeek = w
		}
	}
	return t
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ParseMonth accepts a month number, a full month name or its three-letter
// abbreviation, case-insensitively.
func ParseMonth(raw string) (time.Month, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 1 || n > 12 {
			return 0, fmt.Errorf("invalid month %q", raw)
		}
		return time.Month(n), nil
	}
	for m := time.January; m <= time.December; m++ {
		name := m.String()
		if strings.EqualFold(raw, name) || strings.EqualFold(raw, name[:3]) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("invalid month %q", raw)
}
