package models

// Report is the monthly early-warning report for one (month, year) window.
// Sections whose inputs were missing from the batch are nil and omitted from JSON.
type Report struct {
	Month            string                   `json:"month"`
	Year             int                      `json:"year"`
	GeneratedDate    string                   `json:"generated_date"`
	Summary          Summary                  `json:"summary"`
	RegionalAnalysis map[string]RegionalStats `json:"regional_analysis,omitempty"`
	KeyFindings      *KeyFindings             `json:"key_findings,omitempty"`
	Trends           *Trends                  `json:"trends,omitempty"`
	EarlyWarnings    []Warning                `json:"early_warnings"`
	Recommendations  []string                 `json:"recommendations"`
}

// Summary holds batch-wide statistics.
type Summary struct {
	Total         int     `json:"total"`
	HighRiskCount int     `json:"high_risk_count"`
	HighRiskPct   float64 `json:"high_risk_pct"`
	AvgSentiment  float64 `json:"avg_sentiment"`
	AvgIntensity  float64 `json:"avg_intensity"`
}

// RegionalStats are the per-region aggregates, rounded to two decimals.
type RegionalStats struct {
	Sentiment float64 `json:"sentiment"`
	Intensity float64 `json:"intensity"`
	RiskPct   float64 `json:"risk_pct"`
}

// KeyFindings names the regions that stand out in the regional analysis.
type KeyFindings struct {
	TopHighRiskRegions             []string `json:"top_high_risk_regions"`
	MostNegativeSentimentRegion    string   `json:"most_negative_sentiment_region"`
	HighestConflictIntensityRegion string   `json:"highest_conflict_intensity_region"`
}

// Trends are weekly aggregates aligned by index with Weeks (ISO week numbers, ascending).
type Trends struct {
	Weeks           []int     `json:"weeks"`
	WeeklySentiment []float64 `json:"weekly_sentiment"`
	WeeklyIntensity []float64 `json:"weekly_intensity"`
	WeeklyRisk      []float64 `json:"weekly_risk"`
	PeakRiskWeek    int       `json:"peak_risk_week"`
}
