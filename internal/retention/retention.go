// Package retention schedules the orphan sweep: message rows and upload
// directories left behind by compensating channel deletes.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatterly/pkg/config"
	"chatterly/pkg/logger"
)

// Sweeper is the sweep entry point (implemented by platform/local).
type Sweeper interface {
	SweepOrphans(ctx context.Context) (int, error)
}

// Start launches the retention scheduler if enabled. Returns a cancel
// func; a no-op one when retention is off.
func Start(ctx context.Context, cfg *config.Config, sw Sweeper) (context.CancelFunc, error) {
	if !cfg.Retention.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Retention.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, sw)
	logger.Info("retention_enabled", "cron", cronExpr)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until it.
func runScheduler(ctx context.Context, cronExpr string, sw Sweeper) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			runOnce(ctx, sw)
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

func runOnce(ctx context.Context, sw Sweeper) {
	started := time.Now()
	n, err := sw.SweepOrphans(ctx)
	if err != nil {
		logger.Error("retention_run_error", "error", err)
		return
	}
	logger.Info("retention_run_done", "messages_removed", n, "took", time.Since(started).String())
}
