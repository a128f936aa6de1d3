package models

import (
	"errors"
	"time"
)

// WarningType identifies the rule that produced a warning.
type WarningType string

const (
	WarningSentimentDrop        WarningType = "sentiment_drop"
	WarningHighIntensityCluster WarningType = "high_intensity_cluster"
)

// Severity ranks warnings for delivery and display.
type Severity string

const (
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so escalations can be detected.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 1
	case SeverityCritical:
		return 2
	default:
		return 0
	}
}

// Warning is an early-warning alert produced by the detector
type Warning struct {
	ID              string      `json:"id"`
	Type            WarningType `json:"type"`
	Severity        Severity    `json:"severity"`
	Message         string      `json:"message"`
	SuggestedAction string      `json:"suggested_action"`
	DetectedAt      time.Time   `json:"detected_at"`
}

// Validate checks that all warning fields are valid
func (w *Warning) Validate() error {
	if w.ID == "" {
		return errors.New("warning ID must not be empty")
	}
	if w.Type != WarningSentimentDrop && w.Type != WarningHighIntensityCluster {
		return errors.New("warning type must be 'sentiment_drop' or 'high_intensity_cluster'")
	}
	if w.Severity.Rank() == 0 {
		return errors.New("severity must be 'high' or 'critical'")
	}
	if w.Message == "" {
		return errors.New("message must not be empty")
	}
	if w.DetectedAt.IsZero() {
		return errors.New("detected at must be set")
	}
	return nil
}
