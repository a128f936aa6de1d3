package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/models"
)

// Warning texts.
const (
	sentimentDropAction = "Monitor social media for potential unrest triggers"
	clusterAction       = "Deploy rapid response teams to affected regions"
)

// DetectorConfig holds the early-warning rule thresholds.
type DetectorConfig struct {
	// SentimentDropThreshold is the largest allowed recent-minus-previous
	// change in mean compound sentiment; anything below it is a drop.
	SentimentDropThreshold float64
	WindowSize             int
	IntensityThreshold     float64
	// ClusterCount is the number of high-intensity posts that must be
	// exceeded before a cluster is reported.
	ClusterCount int
}

// DefaultDetectorConfig returns the standard thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SentimentDropThreshold: -0.3,
		WindowSize:             7,
		IntensityThreshold:     0.7,
		ClusterCount:           10,
	}
}

// Detector applies the early-warning rules to a scored batch.
type Detector struct {
	cfg DetectorConfig
	now func() time.Time
}

// NewDetector creates a Detector. A non-positive window size falls back to 7.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 7
	}
	return &Detector{cfg: cfg, now: time.Now}
}

// Detect returns the warnings raised by batch, sentiment drop first.
// The result is empty, never nil, when nothing fires.
func (d *Detector) Detect(batch []models.ScoredPost) []models.Warning {
	warnings := []models.Warning{}
	now := d.now()

	if recent, previous, ok := SentimentWindows(batch, d.cfg.WindowSize); !ok {
		logger.Debug("Sentiment drop check skipped: no dated posts")
	} else if recent-previous < d.cfg.SentimentDropThreshold {
		warnings = append(warnings, models.Warning{
			ID:              uuid.New().String(),
			Type:            models.WarningSentimentDrop,
			Severity:        models.SeverityHigh,
			Message:         fmt.Sprintf("Significant sentiment drop detected: %.2f vs %.2f", recent, previous),
			SuggestedAction: sentimentDropAction,
			DetectedAt:      now,
		})
	}

	if count := CountAbove(batch, d.cfg.IntensityThreshold); count > d.cfg.ClusterCount {
		warnings = append(warnings, models.Warning{
			ID:              uuid.New().String(),
			Type:            models.WarningHighIntensityCluster,
			Severity:        models.SeverityCritical,
			Message:         fmt.Sprintf("%d high-intensity conflict mentions detected", count),
			SuggestedAction: clusterAction,
			DetectedAt:      now,
		})
	}
	return warnings
}

// SentimentWindows orders the dated posts of batch by timestamp and returns
// the mean compound of the newest window posts and of the window posts
// before them. The previous window is taken from the head of the newest
// 2*window posts, so on short batches the two windows overlap. ok is false
// when the batch has no dated post.
func SentimentWindows(batch []models.ScoredPost, window int) (recent, previous float64, ok bool) {
	dated := make([]models.ScoredPost, 0, len(batch))
	for _, p := range batch {
		if p.Post.HasTimestamp() {
			dated = append(dated, p)
		}
	}
	if len(dated) == 0 || window <= 0 {
		return 0, 0, false
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].Post.Timestamp.Before(dated[j].Post.Timestamp)
	})

	n := len(dated)
	recent = meanCompound(dated[n-min(window, n):])
	tail := dated[n-min(2*window, n):]
	previous = meanCompound(tail[:min(window, len(tail))])
	return recent, previous, true
}

// CountAbove counts posts whose conflict intensity is strictly above threshold.
func CountAbove(batch []models.ScoredPost, threshold float64) int {
	count := 0
	for _, p := range batch {
		if p.ConflictIntensity > threshold {
			count++
		}
	}
	return count
}

func meanCompound(posts []models.ScoredPost) float64 {
	var sum float64
	for _, p := range posts {
		sum += p.Sentiment.Compound
	}
	return sum / float64(len(posts))
}
