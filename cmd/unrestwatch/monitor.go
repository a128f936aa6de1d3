package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/unrestwatch/internal/config"
	"github.com/rewired-gh/unrestwatch/internal/feed"
	"github.com/rewired-gh/unrestwatch/internal/logger"
	"github.com/rewired-gh/unrestwatch/internal/metrics"
	"github.com/rewired-gh/unrestwatch/internal/models"
	"github.com/rewired-gh/unrestwatch/internal/monitor"
	"github.com/rewired-gh/unrestwatch/internal/scoring"
	"github.com/rewired-gh/unrestwatch/internal/storage"
	"github.com/rewired-gh/unrestwatch/internal/telegram"
)

// notifier delivers warnings and loop health messages.
type notifier interface {
	SendWarnings(ctx context.Context, warnings []models.Warning) error
	SendError(ctx context.Context, err error) error
	SendRecovery(ctx context.Context, failures int) error
}

// fetcher pulls new posts from the collection endpoint in pages of Limit.
type fetcher interface {
	FetchPosts(ctx context.Context, since time.Time) ([]models.PostInput, error)
	Limit() int
}

// loopStore is the part of storage.Storage the loop uses.
type loopStore interface {
	AddScoredPosts(ctx context.Context, posts []models.ScoredPost) (int, error)
	PostsInWindow(ctx context.Context, since, until time.Time) ([]models.ScoredPost, error)
	AddWarnings(ctx context.Context, warnings []models.Warning) error
	RotatePosts(ctx context.Context) (int, error)
}

// monitorLoop runs detection cycles over the stored lookback window.
type monitorLoop struct {
	cfg      config.MonitorConfig
	mon      *monitor.Monitor
	store    loopStore
	notifier notifier // nil when Telegram is disabled
	feed     fetcher  // nil when the feed is disabled
	scorer   *scoring.Scorer
	metrics  *metrics.Collector

	lastFetch           time.Time
	consecutiveFailures int
}

func newMonitorCmd(a *app) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the early-warning loop, polling the post feed when enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			defer closeStorage(store)

			loop, err := a.newMonitorLoop(store, nil)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			if once {
				return loop.runCycle(ctx, time.Now())
			}
			loop.run(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

func (a *app) newMonitorLoop(store *storage.Storage, collector *metrics.Collector) (*monitorLoop, error) {
	loop := &monitorLoop{
		cfg:     a.cfg.Monitor,
		mon:     monitor.New(monitor.NewDetector(a.cfg.DetectorConfig())),
		store:   store,
		metrics: collector,
	}
	if a.cfg.Telegram.Enabled {
		tg, err := telegram.NewClient(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Telegram.MaxRetries, a.cfg.Telegram.RetryDelayBase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		loop.notifier = tg
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}
	if a.cfg.Feed.Enabled {
		scorer, err := a.newScorer()
		if err != nil {
			return nil, err
		}
		loop.scorer = scorer
		loop.feed = feed.NewClient(a.cfg.Feed.URL, feed.ClientConfig{
			Timeout:        a.cfg.Feed.Timeout,
			Limit:          a.cfg.Feed.Limit,
			MaxRetries:     a.cfg.Feed.MaxRetries,
			RetryDelayBase: a.cfg.Feed.RetryDelayBase,
		})
		logger.Info("Polling post feed at %s", a.cfg.Feed.URL)
	}
	return loop, nil
}

func (l *monitorLoop) run(ctx context.Context) {
	logger.Info("Starting monitoring service (interval: %v, lookback: %v, cooldown: %v)",
		l.cfg.Interval, l.cfg.Lookback, l.cfg.Cooldown)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	logger.Debug("Running initial monitoring cycle")
	l.handleCycleResult(ctx, l.runCycle(ctx, time.Now()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case tickTime := <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			l.handleCycleResult(ctx, l.runCycle(ctx, tickTime))

			if removed, err := l.store.RotatePosts(ctx); err != nil {
				logger.Warn("Failed to rotate posts: %v", err)
			} else if removed > 0 {
				logger.Debug("Rotated %d old posts", removed)
			}
		}
	}
}

// handleCycleResult reports the first failure of a streak and the recovery
// that ends it.
func (l *monitorLoop) handleCycleResult(ctx context.Context, err error) {
	if err != nil {
		l.consecutiveFailures++
		logger.Error("Monitoring cycle failed: %v", err)
		if l.consecutiveFailures == 1 && l.notifier != nil {
			if sendErr := l.notifier.SendError(ctx, err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return
	}
	if l.consecutiveFailures > 0 && l.notifier != nil {
		if sendErr := l.notifier.SendRecovery(ctx, l.consecutiveFailures); sendErr != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
		}
	}
	l.consecutiveFailures = 0
}

// ingest pages through posts published since the cursor, scoring and storing
// each page. The cursor is the newest stored post timestamp and only moves
// after a page is stored; the first fetch reaches back one lookback window.
// Redelivered posts keep their id and are skipped by storage.
func (l *monitorLoop) ingest(ctx context.Context, cycleTime time.Time) error {
	if l.lastFetch.IsZero() {
		l.lastFetch = cycleTime.Add(-l.cfg.Lookback)
	}

	total := 0
	for {
		inputs, err := l.feed.FetchPosts(ctx, l.lastFetch)
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			break
		}

		scored, err := scoreInputs(ctx, l.scorer, inputs)
		if err != nil {
			return err
		}
		added, err := l.store.AddScoredPosts(ctx, scored)
		if err != nil {
			return fmt.Errorf("failed to store posts: %w", err)
		}
		if l.metrics != nil {
			l.metrics.ObserveScored(scored)
		}
		total += added

		newest := l.lastFetch
		for _, p := range scored {
			if p.Post.Timestamp.After(newest) {
				newest = p.Post.Timestamp
			}
		}
		advanced := newest.After(l.lastFetch)
		l.lastFetch = newest

		if len(inputs) < l.feed.Limit() {
			break
		}
		if !advanced {
			logger.Warn("Feed page of %d posts did not advance past %s, stopping", len(inputs), l.lastFetch.Format(time.RFC3339Nano))
			break
		}
	}

	if total > 0 {
		logger.Info("Ingested %d new posts from the feed", total)
	} else {
		logger.Debug("Feed returned no new posts")
	}
	return nil
}

// runCycle ingests new feed posts, detects warnings over the lookback window
// ending at cycleTime, suppresses those inside the cooldown, delivers and
// persists the rest.
func (l *monitorLoop) runCycle(ctx context.Context, cycleTime time.Time) error {
	startTime := time.Now()

	if l.feed != nil {
		if err := l.ingest(ctx, cycleTime); err != nil {
			return err
		}
	}

	posts, err := l.store.PostsInWindow(ctx, cycleTime.Add(-l.cfg.Lookback), cycleTime)
	if err != nil {
		return fmt.Errorf("failed to load posts: %w", err)
	}
	logger.Debug("Loaded %d posts from the last %v", len(posts), l.cfg.Lookback)

	warnings := l.mon.Detect(posts)
	fresh := l.mon.FilterRecentlySent(warnings, l.cfg.Cooldown)
	if l.metrics != nil {
		l.metrics.ObserveWarnings(warnings)
	}
	if len(fresh) == 0 {
		logger.Info("No new warnings this cycle (%d detected, %d in cooldown)", len(warnings), len(warnings)-len(fresh))
		return nil
	}

	for _, w := range fresh {
		logger.WithFields(logger.Fields{"type": w.Type, "severity": w.Severity}).Warn(w.Message)
	}

	if l.notifier != nil {
		if err := l.notifier.SendWarnings(ctx, fresh); err != nil {
			logger.Error("Failed to send Telegram notification: %v", err)
		} else {
			logger.Info("Sent Telegram notification with %d warnings", len(fresh))
			l.mon.RecordNotified(fresh)
			if l.metrics != nil {
				l.metrics.ObserveSent(len(fresh))
			}
		}
	} else {
		l.mon.RecordNotified(fresh)
	}

	if err := l.store.AddWarnings(ctx, fresh); err != nil {
		return fmt.Errorf("failed to store warnings: %w", err)
	}

	logger.Info("Monitoring cycle completed in %v", time.Since(startTime))
	return nil
}
