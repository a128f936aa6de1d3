package main

import (
	"github.com/spf13/cobra"

	"github.com/rewired-gh/unrestwatch/internal/api"
	"github.com/rewired-gh/unrestwatch/internal/metrics"
	"github.com/rewired-gh/unrestwatch/internal/monitor"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr        string
		withMonitor bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scoring, report and training HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			defer closeStorage(store)

			scorer, err := a.newScorer()
			if err != nil {
				return err
			}
			model, err := a.loadModel(a.cfg.Classifier.ArtifactPath)
			if err != nil {
				return err
			}

			opts := api.DefaultOptions()
			opts.CORSOrigins = a.cfg.Server.CORSOrigins
			opts.ArtifactPath = a.cfg.Classifier.ArtifactPath
			opts.TestFraction = a.cfg.Classifier.TestFraction
			opts.Seed = a.cfg.Classifier.Seed
			opts.DashboardWindow = a.cfg.Monitor.Lookback

			collector := metrics.New()
			srv := api.New(opts, scorer, a.newEngineer(), model,
				monitor.NewAggregator(monitor.NewDetector(a.cfg.DetectorConfig())),
				store,
				collector,
			)

			ctx, cancel := signalContext()
			defer cancel()

			if withMonitor {
				loop, err := a.newMonitorLoop(store, collector)
				if err != nil {
					return err
				}
				done := make(chan struct{})
				go func() {
					defer close(done)
					loop.run(ctx)
				}()
				defer func() {
					cancel()
					<-done
				}()
			}
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (server.addr when empty)")
	cmd.Flags().BoolVar(&withMonitor, "monitor", false, "also run the early-warning loop")
	return cmd
}
