// Package ingest consumes the per-channel insert feed and merges each
// notification into the conversation store exactly once, whatever the
// origin (this client's own send or another participant's). The feed gives
// no ordering guarantee relative to the send pipeline's acknowledgment;
// the store's merge rule makes both interleavings converge.
package ingest

import (
	"context"
	"sync"

	"chatterly/pkg/logger"
	"chatterly/pkg/platform"
	"chatterly/pkg/store"
	"chatterly/pkg/summary"
	"chatterly/pkg/telemetry"
)

// Ingestor owns at most one live subscription, scoped to the open channel.
type Ingestor struct {
	store     *store.Store
	platform  platform.Platform
	summaries *summary.Updater

	mu        sync.Mutex
	channelID string
	sub       platform.Subscription
	cancel    context.CancelFunc
}

// New returns an ingestor without an active subscription.
func New(st *store.Store, pf platform.Platform, su *summary.Updater) *Ingestor {
	return &Ingestor{store: st, platform: pf, summaries: su}
}

// Open switches the live feed to channelID: the previous subscription is
// torn down first so merges can no longer land in a store that represents
// a different conversation.
func (g *Ingestor) Open(ctx context.Context, channelID string) error {
	g.Close()

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := g.platform.SubscribeToInserts(subCtx, channelID, func(ev platform.InsertEvent) {
		g.onNotified(subCtx, channelID, ev)
	})
	if err != nil {
		cancel()
		return err
	}

	g.mu.Lock()
	g.channelID = channelID
	g.sub = sub
	g.cancel = cancel
	g.mu.Unlock()
	logger.Info("live_feed_opened", "channel", channelID)
	return nil
}

// Close tears down the active subscription, if any.
func (g *Ingestor) Close() {
	g.mu.Lock()
	sub, cancel, ch := g.sub, g.cancel, g.channelID
	g.sub, g.cancel, g.channelID = nil, nil, ""
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			logger.Warn("live_feed_close_failed", "channel", ch, "error", err)
		}
		logger.Info("live_feed_closed", "channel", ch)
	}
}

// onNotified reconciles one raw insert notification. The transport does
// not join profile data, so missing sender metadata is fetched here; a
// failed fetch drops the notification rather than appending an entry with
// an unknown sender (logged, not retried).
func (g *Ingestor) onNotified(ctx context.Context, channelID string, ev platform.InsertEvent) {
	msg := ev.Message

	// early out for deliveries that are already stale; the authoritative
	// check is inside MergeIncoming, under the store lock, because the
	// profile fetch below can suspend across a channel switch
	if open := g.store.OpenChannelID(); open != channelID || msg.ChannelID != open {
		telemetry.MergesTotal.WithLabelValues("dropped").Inc()
		logger.Debug("ingest_stale_channel", "channel", msg.ChannelID, "open", open)
		return
	}

	if msg.SenderProfile == nil {
		prof, err := g.platform.GetProfile(ctx, msg.SenderID)
		if err != nil {
			telemetry.MergesTotal.WithLabelValues("dropped").Inc()
			logger.Warn("ingest_profile_fetch_failed", "sender", msg.SenderID, "id", msg.ID, "error", err)
			return
		}
		msg.SenderProfile = &prof
	}

	res := g.store.MergeIncoming(msg)
	switch res.Op {
	case store.MergeStale:
		telemetry.MergesTotal.WithLabelValues("dropped").Inc()
		logger.Debug("ingest_stale_channel", "channel", msg.ChannelID, "open", g.store.OpenChannelID())
		return
	case store.MergeDuplicate:
		telemetry.MergesTotal.WithLabelValues("duplicate").Inc()
		return
	case store.MergePromoted:
		telemetry.MergesTotal.WithLabelValues("promoted").Inc()
	case store.MergeAppended:
		telemetry.MergesTotal.WithLabelValues("appended").Inc()
	}

	if res.Newest {
		g.summaries.OnChannelAdvanced(ctx, channelID, msg.Content.Value, msg.CreatedAt)
	}
}
