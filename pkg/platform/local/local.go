// Package local is an embedded implementation of platform.Platform: a
// Pebble database for channels, messages, memberships and profiles, a NATS
// subject per channel for the insert change feed (with an in-process bus
// as fallback when no NATS URL is configured), and a disk bucket for file
// uploads. It exists so the daemon can run self-hosted and so the
// reconciliation core can be exercised against a real store in tests.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"chatterly/pkg/logger"
	"chatterly/pkg/models"
	"chatterly/pkg/platform"
)

// Options configure the embedded platform.
type Options struct {
	// DBPath is the Pebble directory.
	DBPath string
	// UploadDir is the disk bucket for uploaded objects.
	UploadDir string
	// PublicBaseURL prefixes upload URLs, e.g. "http://localhost:8080".
	PublicBaseURL string
	// NatsURL selects the change-feed transport. Empty uses the
	// in-process bus.
	NatsURL string
}

// Local implements platform.Platform.
type Local struct {
	db   *pebble.DB
	opts Options
	feed feed

	// seq reduces key collisions when messages share a nanosecond.
	seq uint64
}

var _ platform.Platform = (*Local)(nil)

// Open opens (or creates) the embedded platform at opts.DBPath.
func Open(opts Options) (*Local, error) {
	db, err := pebble.Open(opts.DBPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", opts.DBPath, err)
	}
	l := &Local{db: db, opts: opts}
	if opts.NatsURL != "" {
		f, err := dialNATS(opts.NatsURL)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		l.feed = f
	} else {
		l.feed = newBus()
	}
	logger.Info("local_platform_opened", "db", opts.DBPath, "nats", opts.NatsURL != "")
	return l, nil
}

// Close releases the database and the feed transport.
func (l *Local) Close() error {
	l.feed.close()
	if err := l.db.Close(); err != nil {
		return err
	}
	logger.Info("local_platform_closed")
	return nil
}

// Key layout, one record per key, iterated by prefix:
//   channel:<id>                          channel record (no members)
//   channel:<id>:msg:<padded-ts>-<seq>    message, ordered by timestamp
//   member:channel:<channelID>:<userID>   membership row
//   member:account:<userID>:<channelID>   reverse index for listing
//   profile:<id>                          account metadata

func channelKey(id string) []byte { return []byte("channel:" + id) }

func msgKey(channelID string, ts int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("channel:%s:msg:%020d-%06d", channelID, ts, seq))
}

func msgPrefix(channelID string) []byte {
	return []byte("channel:" + channelID + ":msg:")
}

func memberChannelKey(channelID, userID string) []byte {
	return []byte("member:channel:" + channelID + ":" + userID)
}

func memberAccountKey(userID, channelID string) []byte {
	return []byte("member:account:" + userID + ":" + channelID)
}

func profileKey(id string) []byte { return []byte("profile:" + id) }

func (l *Local) getJSON(key []byte, out any) error {
	v, closer, err := l.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return platform.ErrNotFound
		}
		return err
	}
	defer closer.Close()
	return json.Unmarshal(v, out)
}

func (l *Local) setJSON(key []byte, in any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return l.db.Set(key, b, pebble.Sync)
}

// iterPrefix calls fn for each key/value under prefix; fn returns false to
// stop early.
func (l *Local) iterPrefix(prefix []byte, fn func(k, v []byte) bool) error {
	iter, err := l.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		if !fn(iter.Key(), v) {
			break
		}
	}
	return iter.Error()
}

// ListMembershipsForAccount returns the channel ids accountID belongs to.
func (l *Local) ListMembershipsForAccount(ctx context.Context, accountID string) ([]string, error) {
	prefix := []byte("member:account:" + accountID + ":")
	var out []string
	err := l.iterPrefix(prefix, func(k, _ []byte) bool {
		out = append(out, string(k[len(prefix):]))
		return true
	})
	return out, err
}

// ListChannelsWithMembers loads the named channels with joined member
// profiles, ordered by last-message time descending, empty channels last.
func (l *Local) ListChannelsWithMembers(ctx context.Context, channelIDs []string) ([]models.Channel, error) {
	out := make([]models.Channel, 0, len(channelIDs))
	for _, id := range channelIDs {
		var ch models.Channel
		if err := l.getJSON(channelKey(id), &ch); err != nil {
			if err == platform.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("load channel %s: %w", id, err)
		}
		members, err := l.channelMembers(id)
		if err != nil {
			return nil, err
		}
		ch.Members = members
		out = append(out, ch)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].LastMessageAt, out[j].LastMessageAt
		if ti.IsZero() != tj.IsZero() {
			return !ti.IsZero()
		}
		return ti.After(tj)
	})
	return out, nil
}

func (l *Local) channelMembers(channelID string) ([]models.Membership, error) {
	prefix := []byte("member:channel:" + channelID + ":")
	var members []models.Membership
	err := l.iterPrefix(prefix, func(k, _ []byte) bool {
		userID := string(k[len(prefix):])
		m := models.Membership{UserID: userID}
		var acct models.Account
		if err := l.getJSON(profileKey(userID), &acct); err == nil {
			m.Profile = &acct
		}
		members = append(members, m)
		return true
	})
	return members, err
}

// ListMessages returns the channel's history ordered by CreatedAt
// ascending (key order equals timestamp order).
func (l *Local) ListMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	var out []models.Message
	err := l.iterPrefix(msgPrefix(channelID), func(_, v []byte) bool {
		var m models.Message
		if jerr := json.Unmarshal(v, &m); jerr != nil {
			logger.Error("list_messages_bad_record", "channel", channelID, "error", jerr)
			return true
		}
		out = append(out, m)
		return true
	})
	return out, err
}

// InsertMessage persists the message under a server-issued id and
// timestamp, then publishes the raw row (profile stripped, ClientKey
// echoed) to the channel's insert feed.
func (l *Local) InsertMessage(ctx context.Context, msg models.Message) (platform.InsertAck, error) {
	if msg.ChannelID == "" || msg.SenderID == "" {
		return platform.InsertAck{}, fmt.Errorf("insert message: missing channel or sender")
	}
	if err := l.getJSON(channelKey(msg.ChannelID), &models.Channel{}); err != nil {
		return platform.InsertAck{}, fmt.Errorf("insert message: %w", err)
	}

	ack := platform.InsertAck{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	row := msg
	row.ID = ack.ID
	row.CreatedAt = ack.CreatedAt
	row.SenderProfile = nil

	ts := ack.CreatedAt.UnixNano()
	seq := atomic.AddUint64(&l.seq, 1)
	b, err := json.Marshal(row)
	if err != nil {
		return platform.InsertAck{}, err
	}
	if err := l.db.Set(msgKey(msg.ChannelID, ts, seq), b, pebble.Sync); err != nil {
		logger.Error("insert_message_failed", "channel", msg.ChannelID, "error", err)
		return platform.InsertAck{}, err
	}
	logger.Debug("message_inserted", "channel", msg.ChannelID, "id", ack.ID)

	l.feed.publish(subjectFor(msg.ChannelID), platform.InsertEvent{Message: row})
	return ack, nil
}

// UpdateChannelSummary persists the denormalized last-message fields.
func (l *Local) UpdateChannelSummary(ctx context.Context, channelID, lastMessageText string, lastMessageAt time.Time) error {
	var ch models.Channel
	if err := l.getJSON(channelKey(channelID), &ch); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	ch.LastMessageText = lastMessageText
	ch.LastMessageAt = lastMessageAt
	ch.Members = nil
	return l.setJSON(channelKey(channelID), ch)
}

// SearchAccountsByName scans profiles for a case-insensitive substring
// match, excluding excludeID.
func (l *Local) SearchAccountsByName(ctx context.Context, query, excludeID string, limit int) ([]models.Account, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var out []models.Account
	err := l.iterPrefix([]byte("profile:"), func(_, v []byte) bool {
		var a models.Account
		if json.Unmarshal(v, &a) != nil {
			return true
		}
		if a.ID == excludeID {
			return true
		}
		if strings.Contains(strings.ToLower(a.DisplayName), q) {
			out = append(out, a)
		}
		return len(out) < limit
	})
	return out, err
}

// CreateChannel creates an empty channel record and returns its id.
func (l *Local) CreateChannel(ctx context.Context) (string, error) {
	ch := models.Channel{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	if err := l.setJSON(channelKey(ch.ID), ch); err != nil {
		return "", fmt.Errorf("create channel: %w", err)
	}
	return ch.ID, nil
}

// AddMemberships links the accounts to the channel, both directions.
func (l *Local) AddMemberships(ctx context.Context, channelID string, accountIDs []string) error {
	if err := l.getJSON(channelKey(channelID), &models.Channel{}); err != nil {
		return fmt.Errorf("add memberships: %w", err)
	}
	wb := l.db.NewBatch()
	for _, id := range accountIDs {
		if id == "" {
			return fmt.Errorf("add memberships: empty account id")
		}
		if err := wb.Set(memberChannelKey(channelID, id), []byte("{}"), nil); err != nil {
			return err
		}
		if err := wb.Set(memberAccountKey(id, channelID), []byte("{}"), nil); err != nil {
			return err
		}
	}
	return l.db.Apply(wb, pebble.Sync)
}

// DeleteChannel removes the channel record and its membership rows.
// Deleting a missing channel is not an error, which keeps the directory's
// compensating delete idempotent. Message rows are left for the retention
// job to sweep.
func (l *Local) DeleteChannel(ctx context.Context, channelID string) error {
	members, err := l.channelMembers(channelID)
	if err != nil {
		return err
	}
	wb := l.db.NewBatch()
	_ = wb.Delete(channelKey(channelID), nil)
	for _, m := range members {
		_ = wb.Delete(memberChannelKey(channelID, m.UserID), nil)
		_ = wb.Delete(memberAccountKey(m.UserID, channelID), nil)
	}
	if err := l.db.Apply(wb, pebble.Sync); err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	logger.Info("channel_deleted", "channel", channelID)
	return nil
}

// SubscribeToInserts delivers insert events for channelID until Close.
func (l *Local) SubscribeToInserts(ctx context.Context, channelID string, onEvent func(platform.InsertEvent)) (platform.Subscription, error) {
	return l.feed.subscribe(ctx, subjectFor(channelID), onEvent)
}

// GetProfile returns the stored account metadata for id.
func (l *Local) GetProfile(ctx context.Context, id string) (models.Account, error) {
	var a models.Account
	if err := l.getJSON(profileKey(id), &a); err != nil {
		return models.Account{}, err
	}
	return a, nil
}

// UpsertProfile stores account metadata.
func (l *Local) UpsertProfile(ctx context.Context, acct models.Account) error {
	if acct.ID == "" {
		return fmt.Errorf("upsert profile: missing id")
	}
	return l.setJSON(profileKey(acct.ID), acct)
}

// HasChannel reports whether a channel record exists. Used by retention to
// find orphaned message rows.
func (l *Local) HasChannel(id string) bool {
	err := l.getJSON(channelKey(id), &models.Channel{})
	return err == nil
}

func subjectFor(channelID string) string {
	return "chat.inserts." + channelID
}
