package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/unrestwatch/internal/export"
	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/models"
	"github.com/rewired-gh/unrestwatch/internal/monitor"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		month  string
		year   int
		input  string
		xlsx   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the monthly early-warning report",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := monitor.ParseMonth(month)
			if err != nil {
				return err
			}
			if year < 1 {
				return errors.New("--year is required")
			}

			store, err := a.openStorage()
			if err != nil {
				return err
			}
			defer closeStorage(store)

			var posts []models.ScoredPost
			if input != "" {
				posts, err = a.loadPosts(cmd.Context(), input, store)
			} else {
				posts, err = store.PostsForMonth(cmd.Context(), m, year)
			}
			if err != nil {
				return err
			}

			agg := monitor.NewAggregator(monitor.NewDetector(a.cfg.DetectorConfig()))
			report := agg.Aggregate(posts, m.String(), year)
			logger.Info("Report for %s %d: %d posts, %d warnings", m, year, report.Summary.Total, len(report.EarlyWarnings))

			if xlsx != "" {
				if err := export.WriteReportXLSX(report, xlsx); err != nil {
					return err
				}
				logger.Info("Workbook written to %s", xlsx)
			}
			return writeJSON(output, report)
		},
	}
	now := time.Now()
	cmd.Flags().StringVar(&month, "month", now.Month().String(), "month name or number")
	cmd.Flags().IntVar(&year, "year", now.Year(), "year")
	cmd.Flags().StringVarP(&input, "input", "i", "", "report on this file instead of stored posts of the month")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "also write an Excel workbook to this path")
	cmd.Flags().StringVarP(&output, "output", "o", "", "JSON output file (stdout when empty)")
	return cmd
}
