// Package summary keeps each channel's denormalized last-message fields in
// step with whichever of the send pipeline or the live feed most recently
// advanced that channel.
package summary

import (
	"context"
	"time"

	"chatterly/pkg/logger"
	"chatterly/pkg/platform"
	"chatterly/pkg/store"
	"chatterly/pkg/telemetry"
)

// Updater applies summary changes locally first, then persists them
// best-effort.
type Updater struct {
	store    *store.Store
	platform platform.Platform
}

// New returns an updater writing through st and pf.
func New(st *store.Store, pf platform.Platform) *Updater {
	return &Updater{store: st, platform: pf}
}

// OnChannelAdvanced records a new newest message for channelID. The local
// list is updated immediately so sidebar ordering reflects the latest
// activity without added latency; the backing persistence is fire-and-
// forget and a failure does not roll the local view back (it converges on
// the next full channel list reload).
func (u *Updater) OnChannelAdvanced(ctx context.Context, channelID, text string, at time.Time) {
	u.store.UpsertChannelSummary(channelID, text, at)
	if err := u.platform.UpdateChannelSummary(ctx, channelID, text, at); err != nil {
		telemetry.SummaryUpdatesTotal.WithLabelValues("failed").Inc()
		logger.Error("summary_persist_failed", "channel", channelID, "error", err)
		return
	}
	telemetry.SummaryUpdatesTotal.WithLabelValues("ok").Inc()
}
