// Package directory covers finding people and opening conversations with
// them: name search (never returning the searcher) and the two-step
// direct-channel creation with its compensating delete.
package directory

import (
	"context"
	"fmt"
	"strings"

	"chatterly/pkg/logger"
	"chatterly/pkg/models"
	"chatterly/pkg/platform"
	"chatterly/pkg/session"
	"chatterly/pkg/store"
)

// SearchLimit caps name search results.
const SearchLimit = 20

// Directory resolves accounts and direct channels.
type Directory struct {
	platform platform.Platform
	store    *store.Store
}

// New returns a directory over pf and st.
func New(pf platform.Platform, st *store.Store) *Directory {
	return &Directory{platform: pf, store: st}
}

// Search returns accounts whose display name contains query, excluding the
// requesting account. An empty query returns no results.
func (d *Directory) Search(ctx context.Context, sess session.Session, query string) ([]models.Account, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	res, err := d.platform.SearchAccountsByName(ctx, query, sess.AccountID, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("account search: %w", err)
	}
	// the exclusion also holds locally in case the platform ignored it
	out := res[:0]
	for _, a := range res {
		if a.ID != sess.AccountID {
			out = append(out, a)
		}
	}
	return out, nil
}

// OpenDirect returns the direct channel between the session's account and
// target, creating it when none exists. Creation is two-step (channel,
// then both memberships); when the membership insert fails the orphaned
// channel is deleted. The compensating delete is idempotent, and its own
// failure is an unrecovered inconsistency that is only logged.
func (d *Directory) OpenDirect(ctx context.Context, sess session.Session, target models.Account) (models.Channel, error) {
	if sess.AccountID == "" || target.ID == "" || target.ID == sess.AccountID {
		return models.Channel{}, fmt.Errorf("invalid direct channel pair")
	}

	for _, ch := range d.store.Channels() {
		if ch.Direct() && ch.HasMembers(sess.AccountID, target.ID) {
			return ch, nil
		}
	}

	id, err := d.platform.CreateChannel(ctx)
	if err != nil {
		return models.Channel{}, fmt.Errorf("create channel: %w", err)
	}
	if err := d.platform.AddMemberships(ctx, id, []string{sess.AccountID, target.ID}); err != nil {
		if derr := d.platform.DeleteChannel(ctx, id); derr != nil {
			logger.Error("channel_compensate_failed", "channel", id, "error", derr)
		} else {
			logger.Warn("channel_compensated", "channel", id)
		}
		return models.Channel{}, fmt.Errorf("add memberships: %w", err)
	}

	self := sess.Account()
	ch := models.Channel{
		ID: id,
		Members: []models.Membership{
			{UserID: sess.AccountID, Profile: &self},
			{UserID: target.ID, Profile: &target},
		},
	}
	d.store.AddChannel(ch)
	logger.Info("channel_created", "channel", id, "peer", target.ID)
	return ch, nil
}

// Refresh reloads the account's channel list from the platform into the
// store. A background load failure degrades to the previous list.
func (d *Directory) Refresh(ctx context.Context, sess session.Session) ([]models.Channel, error) {
	ids, err := d.platform.ListMembershipsForAccount(ctx, sess.AccountID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	if len(ids) == 0 {
		d.store.ReplaceChannels(nil)
		return nil, nil
	}
	chs, err := d.platform.ListChannelsWithMembers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	d.store.ReplaceChannels(chs)
	return d.store.Channels(), nil
}
