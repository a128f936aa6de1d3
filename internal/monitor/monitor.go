// Package monitor turns scored batches into early warnings and monthly reports.
//
// Two rules raise warnings:
//
//	sentiment_drop          mean compound of the newest 7 posts minus the 7 before < -0.3
//	high_intensity_cluster  more than 10 posts with conflict intensity above 0.7
//
// The Aggregator builds the report: batch summary, per-region statistics,
// the top-3 high-risk regions with recommendations, and weekly trends.
//
// Monitor wraps a Detector for repeated runs over a sliding window. It
// remembers what was already delivered so the same alert is not resent
// during its cooldown unless it escalates.
package monitor

import (
	"sync"
	"time"

	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/models"
)

// notifiedRecord tracks a previously sent warning for cooldown deduplication.
type notifiedRecord struct {
	Severity models.Severity
	SentAt   time.Time
}

// Monitor runs detection repeatedly and deduplicates deliveries.
type Monitor struct {
	detector *Detector
	now      func() time.Time

	mu       sync.Mutex
	notified map[models.WarningType]notifiedRecord
}

// New creates a new Monitor instance
func New(detector *Detector) *Monitor {
	return &Monitor{
		detector: detector,
		now:      time.Now,
		notified: make(map[models.WarningType]notifiedRecord),
	}
}

// Detect runs the detector over batch.
func (m *Monitor) Detect(batch []models.ScoredPost) []models.Warning {
	warnings := m.detector.Detect(batch)
	logger.Debug("Detect: %d posts, %d warnings", len(batch), len(warnings))
	return warnings
}

// FilterRecentlySent drops warnings whose type was already sent within
// cooldown, unless the new severity is higher than the one sent.
// Returns a non-nil slice.
func (m *Monitor) FilterRecentlySent(warnings []models.Warning, cooldown time.Duration) []models.Warning {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	result := []models.Warning{}
	for _, w := range warnings {
		rec, exists := m.notified[w.Type]
		if exists && now.Sub(rec.SentAt) < cooldown && w.Severity.Rank() <= rec.Severity.Rank() {
			logger.Debug("Suppressing %s warning: sent %s ago", w.Type, now.Sub(rec.SentAt).Round(time.Second))
			continue
		}
		result = append(result, w)
	}
	return result
}

// RecordNotified records warnings as sent now.
// Call this after a successful delivery to enable cooldown deduplication.
func (m *Monitor) RecordNotified(warnings []models.Warning) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, w := range warnings {
		m.notified[w.Type] = notifiedRecord{Severity: w.Severity, SentAt: now}
	}
}
