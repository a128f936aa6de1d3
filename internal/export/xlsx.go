// Package export writes monthly reports as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

// ContentType is the MIME type of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet names, in workbook order.
const (
	SheetSummary  = "Summary"
	SheetRegions  = "Regions"
	SheetTrends   = "Trends"
	SheetWarnings = "Warnings"
)

// FileName is the default workbook name for a report.
func FileName(r models.Report) string {
	return fmt.Sprintf("conflict_report_%s_%d.xlsx", strings.ToLower(r.Month), r.Year)
}

// WriteReportXLSX writes the report workbook to path, creating parent
// directories as needed.
func WriteReportXLSX(r models.Report, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := build(r)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report workbook: %w", err)
	}
	return nil
}

// WriteReport streams the report workbook to w.
func WriteReport(w io.Writer, r models.Report) error {
	f, err := build(r)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write report workbook: %w", err)
	}
	return nil
}

type sheetWriter struct {
	f      *excelize.File
	sheet  string
	row    int
	header int
	err    error
}

func (s *sheetWriter) write(values ...any) {
	if s.err != nil {
		return
	}
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetSheetRow(s.sheet, cell, &values)
}

func (s *sheetWriter) heading(values ...any) {
	s.write(values...)
	if s.err == nil {
		s.err = s.f.SetRowStyle(s.sheet, s.row, s.row, s.header)
	}
}

func (s *sheetWriter) blank() {
	s.row++
}

func build(r models.Report) (*excelize.File, error) {
	f := excelize.NewFile()
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}
	for _, name := range []string{SheetRegions, SheetTrends, SheetWarnings} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	writers := []func(*sheetWriter, models.Report){writeSummary, writeRegions, writeTrends, writeWarnings}
	for i, name := range []string{SheetSummary, SheetRegions, SheetTrends, SheetWarnings} {
		sw := &sheetWriter{f: f, sheet: name, header: header}
		writers[i](sw, r)
		if sw.err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write sheet %s: %w", name, sw.err)
		}
		if err := f.SetColWidth(name, "A", "A", 32); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSummary(s *sheetWriter, r models.Report) {
	s.heading("Conflict Early Warning Report")
	s.write("Month", r.Month)
	s.write("Year", r.Year)
	s.write("Generated", r.GeneratedDate)
	s.blank()
	s.heading("Metric", "Value")
	s.write("Total posts", r.Summary.Total)
	s.write("High-risk posts", r.Summary.HighRiskCount)
	s.write("High-risk %", r.Summary.HighRiskPct)
	s.write("Average sentiment", r.Summary.AvgSentiment)
	s.write("Average conflict intensity", r.Summary.AvgIntensity)

	if kf := r.KeyFindings; kf != nil {
		s.blank()
		s.heading("Key findings")
		s.write("Top high-risk regions", strings.Join(kf.TopHighRiskRegions, ", "))
		s.write("Most negative sentiment", kf.MostNegativeSentimentRegion)
		s.write("Highest conflict intensity", kf.HighestConflictIntensityRegion)
	}
	if len(r.Recommendations) > 0 {
		s.blank()
		s.heading("Recommendations")
		for _, rec := range r.Recommendations {
			s.write(rec)
		}
	}
}

func writeRegions(s *sheetWriter, r models.Report) {
	s.heading("Region", "Avg sentiment", "Avg intensity", "High-risk %")
	names := make([]string, 0, len(r.RegionalAnalysis))
	for name := range r.RegionalAnalysis {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := r.RegionalAnalysis[name]
		s.write(name, st.Sentiment, st.Intensity, st.RiskPct)
	}
}

func writeTrends(s *sheetWriter, r models.Report) {
	s.heading("ISO week", "Avg sentiment", "Avg intensity", "High-risk %")
	t := r.Trends
	if t == nil {
		return
	}
	for i, week := range t.Weeks {
		s.write(week, t.WeeklySentiment[i], t.WeeklyIntensity[i], t.WeeklyRisk[i])
	}
	s.blank()
	s.write("Peak risk week", t.PeakRiskWeek)
}

func writeWarnings(s *sheetWriter, r models.Report) {
	s.heading("Detected", "Type", "Severity", "Message", "Suggested action")
	for _, w := range r.EarlyWarnings {
		s.write(w.DetectedAt.UTC().Format(time.DateTime), string(w.Type), string(w.Severity), w.Message, w.SuggestedAction)
	}
}
