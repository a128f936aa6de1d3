package models

import (
	"encoding/json"
	"fmt"
)

// RiskLevel is the ordered conflict-risk category of a post or batch.
// Levels compare with the usual integer operators: Low < Medium < High < Critical.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskLevelNames = [...]string{"Low", "Medium", "High", "Critical"}

// RiskLevels lists every level in ascending order.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// String returns the level name.
func (r RiskLevel) String() string {
	if r < RiskLow || r > RiskCritical {
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
	return riskLevelNames[r]
}

// IsHigh reports whether the level counts towards high-risk statistics.
func (r RiskLevel) IsHigh() bool {
	return r >= RiskHigh
}

// ParseRiskLevel converts a level name back to its value.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for i, name := range riskLevelNames {
		if name == s {
			return RiskLevel(i), nil
		}
	}
	return RiskLow, fmt.Errorf("unknown risk level: %q", s)
}

// MarshalJSON encodes the level as its name.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a level name.
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// SentimentLabel is the coarse polarity of a compound sentiment score.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "Positive"
	SentimentNegative SentimentLabel = "Negative"
	SentimentNeutral  SentimentLabel = "Neutral"
)

// SentimentScore holds the output of both lexicon models for one text.
// Positive, Negative and Neutral are proportions that sum to 1.
type SentimentScore struct {
	Polarity     float64 `json:"polarity"`
	Subjectivity float64 `json:"subjectivity"`
	Compound     float64 `json:"compound"`
	Positive     float64 `json:"pos"`
	Negative     float64 `json:"neg"`
	Neutral      float64 `json:"neu"`
}

// ScoredPost is a Post together with everything the scorer derived from it.
// It is produced exactly once per post and treated as read-only afterwards.
type ScoredPost struct {
	Post              Post           `json:"post"`
	CleanedText       string         `json:"cleaned_text"`
	Sentiment         SentimentScore `json:"sentiment"`
	ConflictIntensity float64        `json:"conflict_intensity"`
	SentimentLabel    SentimentLabel `json:"sentiment_label"`
	RiskLevel         RiskLevel      `json:"risk_level"`
}

// Projection is the flat scoring output consumed by API and dashboard collaborators.
type Projection struct {
	Text              string         `json:"text"`
	CleanedText       string         `json:"cleaned_text"`
	PolarityTB        float64        `json:"polarity_tb"`
	SubjectivityTB    float64        `json:"subjectivity_tb"`
	VaderCompound     float64        `json:"vader_compound"`
	VaderPositive     float64        `json:"vader_positive"`
	VaderNegative     float64        `json:"vader_negative"`
	VaderNeutral      float64        `json:"vader_neutral"`
	ConflictIntensity float64        `json:"conflict_intensity"`
	SentimentLabel    SentimentLabel `json:"sentiment_label"`
	RiskLevel         RiskLevel      `json:"risk_level"`
	Region            string         `json:"region"`
}

// Projection flattens the scored post into the external scoring output.
// Posts without a region report "Unknown".
func (s *ScoredPost) Projection() Projection {
	region := s.Post.Region
	if region == "" {
		region = RegionUnknown
	}
	return Projection{
		Text:              s.Post.Text,
		CleanedText:       s.CleanedText,
		PolarityTB:        s.Sentiment.Polarity,
		SubjectivityTB:    s.Sentiment.Subjectivity,
		VaderCompound:     s.Sentiment.Compound,
		VaderPositive:     s.Sentiment.Positive,
		VaderNegative:     s.Sentiment.Negative,
		VaderNeutral:      s.Sentiment.Neutral,
		ConflictIntensity: s.ConflictIntensity,
		SentimentLabel:    s.SentimentLabel,
		RiskLevel:         s.RiskLevel,
		Region:            region,
	}
}

// Sentinel region values.
const (
	RegionUnknown = "Unknown"
	RegionOther   = "Other"
)
