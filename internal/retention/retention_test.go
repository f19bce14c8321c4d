package retention

import (
	"context"
	"testing"

	"chatterly/pkg/config"
)

type countingSweeper struct{ runs int }

func (c *countingSweeper) SweepOrphans(ctx context.Context) (int, error) {
	c.runs++
	return 0, nil
}

func TestStartDisabled(t *testing.T) {
	cfg := &config.Config{}
	cancel, err := Start(context.Background(), cfg, &countingSweeper{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
}

func TestStartRejectsBadCron(t *testing.T) {
	cfg := &config.Config{}
	cfg.Retention.Enabled = true
	cfg.Retention.Cron = "not a cron"
	if _, err := Start(context.Background(), cfg, &countingSweeper{}); err == nil {
		t.Fatal("expected invalid cron to be rejected")
	}
}

func TestStartValidCronStops(t *testing.T) {
	cfg := &config.Config{}
	cfg.Retention.Enabled = true
	cfg.Retention.Cron = "0 3 * * *"
	cancel, err := Start(context.Background(), cfg, &countingSweeper{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
}

func TestRunOnce(t *testing.T) {
	sw := &countingSweeper{}
	runOnce(context.Background(), sw)
	if sw.runs != 1 {
		t.Fatalf("runs = %d, want 1", sw.runs)
	}
}
