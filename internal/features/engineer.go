package features

import (
	"fmt"
	"strings"
)

// CoreFeatures is the master feature list, in classifier column order.
var CoreFeatures = []string{
	ColPolarity, ColCompound, ColIntensity,
	ColTotalEngagement, ColEngagementRate, ColDayOfWeek, ColHour,
	ColMonthSin, ColMonthCos, ColHourSin, ColHourCos,
}

// Label targets understood by Labels.
const (
	TargetRiskLevel      = "risk_level"
	TargetSentimentLabel = "sentiment_label"
	TargetRegion         = "region"
)

// Config configures an Engineer.
type Config struct {
	Regions      []Region
	LagPeriods   []int
	ValueColumns []string
	GroupBy      string
	Holidays     HolidayCalendar

	BatchRelativeEngagement   bool
	ReferenceMaxEngagement    float64
	ReferenceMedianEngagement float64
}

// DefaultConfig returns the standard engineering setup: Kenyan regions and
// holidays, lags of 1, 7 and 30 over compound sentiment and conflict intensity
// grouped by region, batch-relative engagement.
func DefaultConfig() Config {
	return Config{
		Regions:                 DefaultRegions(),
		LagPeriods:              []int{1, 7, 30},
		ValueColumns:            []string{ColCompound, ColIntensity},
		GroupBy:                 GroupByRegion,
		Holidays:                KenyaHolidays{},
		BatchRelativeEngagement: true,
	}
}

// Engineer derives feature columns. It holds only configuration and is safe
// for concurrent use.
type Engineer struct {
	cfg Config
}

// New creates an Engineer.
func New(cfg Config) *Engineer {
	return &Engineer{cfg: cfg}
}

// Build runs every engineering step: temporal, engagement, geographic, then
// lags for each configured value column.
func (e *Engineer) Build(in *Frame) *Frame {
	f := e.Temporal(in)
	f = e.Engagement(f)
	f = e.Geo(f)
	for _, col := range e.cfg.ValueColumns {
		f = e.Lags(f, col, e.cfg.GroupBy, e.cfg.LagPeriods)
	}
	return f
}

// SelectFeatures returns the classifier columns present in the frame: the core
// features, then every region column, then every lag and rolling column.
func SelectFeatures(f *Frame) []string {
	var cols []string
	for _, c := range CoreFeatures {
		if f.HasColumn(c) {
			cols = append(cols, c)
		}
	}
	for _, c := range f.columns {
		if strings.HasPrefix(c, RegionPrefix) {
			cols = append(cols, c)
		}
	}
	for _, c := range f.columns {
		if strings.Contains(c, "lag") || strings.Contains(c, "rolling") {
			cols = append(cols, c)
		}
	}
	return cols
}

// Matrix extracts the named columns row by row. Absent cells read as 0.
func Matrix(f *Frame, cols []string) [][]float64 {
	X := make([][]float64, f.Len())
	for i := range f.rows {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = f.rows[i].Values[c]
		}
		X[i] = row
	}
	return X
}

// Labels extracts a categorical target per row.
func Labels(f *Frame, target string) ([]string, error) {
	y := make([]string, f.Len())
	for i := range f.rows {
		switch target {
		case TargetRiskLevel:
			y[i] = f.rows[i].Post.RiskLevel.String()
		case TargetSentimentLabel:
			y[i] = string(f.rows[i].Post.SentimentLabel)
		case TargetRegion:
			y[i] = f.rows[i].Region
		default:
			return nil, fmt.Errorf("unknown target %q", target)
		}
	}
	return y, nil
}
