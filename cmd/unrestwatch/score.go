package main

import (
	"github.com/spf13/cobra"

	"github.com/rewired-gh/unrestwatch/internal/api"
	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/models"
	"github.com/rewired-gh/unrestwatch/internal/scoring"
)

func newScoreCmd(a *app) *cobra.Command {
	var (
		input  string
		output string
		store  bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score posts for sentiment, conflict intensity and risk level",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readInputs(input)
			if err != nil {
				return err
			}
			scorer, err := a.newScorer()
			if err != nil {
				return err
			}
			scored, err := scoreInputs(cmd.Context(), scorer, inputs)
			if err != nil {
				return err
			}
			logger.Info("Scored %d posts", len(scored))

			if store {
				st, err := a.openStorage()
				if err != nil {
					return err
				}
				defer closeStorage(st)
				added, err := st.AddScoredPosts(cmd.Context(), scored)
				if err != nil {
					return err
				}
				logger.Info("Stored %d new posts (%d duplicates skipped)", added, len(scored)-added)
				if removed, err := st.RotatePosts(cmd.Context()); err != nil {
					logger.Warn("Failed to rotate posts: %v", err)
				} else if removed > 0 {
					logger.Debug("Rotated %d old posts", removed)
				}
			}

			resp := api.PredictResponse{
				Predictions:     make([]models.Projection, len(scored)),
				OverallRisk:     scoring.OverallRisk(scored),
				HighRiskRegions: scoring.HighRiskRegions(scored, scoring.DefaultRegionShare),
			}
			for i := range scored {
				resp.Predictions[i] = scored[i].Projection()
			}
			return writeJSON(output, resp)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON array or JSON lines of posts (- for stdin)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	cmd.Flags().BoolVar(&store, "store", false, "persist scored posts")
	return cmd
}
