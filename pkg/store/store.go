// Package store holds the ordered message list for the open channel and
// the channel summary list for the signed-in account. It is the single
// source of truth for what the client renders; mutation happens only
// through the operations below, each applied atomically under one lock so
// interleaved completions from the send pipeline and the live feed cannot
// lose updates.
package store

import (
	"sort"
	"sync"
	"time"

	"chatterly/pkg/models"
)

// MergeOp describes what MergeIncoming did with an incoming message.
type MergeOp int

const (
	// MergeDuplicate means the server id was already present; no change.
	MergeDuplicate MergeOp = iota
	// MergePromoted means a provisional entry was promoted in place.
	MergePromoted
	// MergeAppended means the message was inserted as a new entry.
	MergeAppended
	// MergeStale means the message targets a channel that is not open;
	// dropped without touching the list.
	MergeStale
)

// MergeResult reports the merge decision and whether the merged message is
// now the chronologically newest entry in the open channel (which drives
// the channel summary update).
type MergeResult struct {
	Op     MergeOp
	Newest bool
}

// Store owns the in-memory conversation state. All exported methods are
// safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	channelID string
	messages  []models.Message
	channels  []models.Channel

	watchers map[int]chan Event
	nextID   int
}

// New returns an empty store.
func New() *Store {
	return &Store{watchers: map[int]chan Event{}}
}

// OpenChannelID returns the id of the currently open channel, or "".
func (s *Store) OpenChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// Messages returns a copy of the open channel's message list.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Channels returns a copy of the channel summary list.
func (s *Store) Channels() []models.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// ReplaceMessages makes the store's message list exactly msgs, ordered by
// CreatedAt ascending. Used when switching the open channel or on explicit
// refetch; an empty input is valid and clears the view.
func (s *Store) ReplaceMessages(channelID string, msgs []models.Message) {
	s.mu.Lock()
	s.channelID = channelID
	s.messages = make([]models.Message, len(msgs))
	copy(s.messages, msgs)
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
	s.mu.Unlock()
	s.emit(Event{Kind: EventReplaced, ChannelID: channelID})
}

// ReplaceChannels makes the channel list exactly chs, sorted by
// LastMessageAt descending with message-less channels last.
func (s *Store) ReplaceChannels(chs []models.Channel) {
	s.mu.Lock()
	s.channels = make([]models.Channel, len(chs))
	copy(s.channels, chs)
	sortChannels(s.channels)
	s.mu.Unlock()
}

// AppendProvisional inserts a provisional message at the end of the open
// channel's list. The caller has already validated content and target.
func (s *Store) AppendProvisional(msg models.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.emit(Event{Kind: EventAppended, Message: &msg})
}

// Promote mutates the entry with id provisionalID in place to carry the
// server-issued id and timestamp, preserving its position. A missing
// provisional entry (already promoted by the live feed, or withdrawn) is a
// no-op, not an error.
func (s *Store) Promote(provisionalID, serverID string, serverCreatedAt time.Time) bool {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == provisionalID {
			s.messages[i].ID = serverID
			s.messages[i].CreatedAt = serverCreatedAt
			m := s.messages[i]
			s.mu.Unlock()
			s.emit(Event{Kind: EventPromoted, ProvisionalID: provisionalID, Message: &m})
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// Withdraw removes the entry with id provisionalID; no-op if absent.
func (s *Store) Withdraw(provisionalID string) bool {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == provisionalID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.mu.Unlock()
			s.emit(Event{Kind: EventWithdrawn, ProvisionalID: provisionalID})
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// MergeIncoming reconciles an incoming authoritative message with the
// current list: duplicate server ids are dropped, a matching provisional
// entry is promoted in place, and anything else is inserted in CreatedAt
// order. The decision is a pure function of (current list, incoming), so
// promote-before-ingest and ingest-before-promote converge to the same
// final state. The channel check happens here, under the same lock as the
// mutation: a caller that observed the right open channel earlier may have
// been suspended across a channel switch, and only this check closes that
// window.
func (s *Store) MergeIncoming(msg models.Message) MergeResult {
	s.mu.Lock()
	if msg.ChannelID != s.channelID {
		s.mu.Unlock()
		return MergeResult{Op: MergeStale}
	}
	op, idx := decideMerge(s.messages, msg)
	var res MergeResult
	var emitted Event
	switch op {
	case MergeDuplicate:
		s.mu.Unlock()
		return MergeResult{Op: MergeDuplicate}
	case MergePromoted:
		prov := s.messages[idx].ID
		s.messages[idx].ID = msg.ID
		s.messages[idx].CreatedAt = msg.CreatedAt
		if msg.SenderProfile != nil {
			s.messages[idx].SenderProfile = msg.SenderProfile
		}
		m := s.messages[idx]
		res = MergeResult{Op: MergePromoted, Newest: s.newestLocked(idx)}
		emitted = Event{Kind: EventPromoted, ProvisionalID: prov, Message: &m}
	case MergeAppended:
		s.messages = append(s.messages, models.Message{})
		copy(s.messages[idx+1:], s.messages[idx:])
		s.messages[idx] = msg
		res = MergeResult{Op: MergeAppended, Newest: s.newestLocked(idx)}
		emitted = Event{Kind: EventAppended, Message: &msg}
	}
	s.mu.Unlock()
	s.emit(emitted)
	return res
}

// newestLocked reports whether the entry at idx carries the greatest
// CreatedAt in the list. Caller holds the lock.
func (s *Store) newestLocked(idx int) bool {
	for i := range s.messages {
		if i != idx && s.messages[i].CreatedAt.After(s.messages[idx].CreatedAt) {
			return false
		}
	}
	return true
}

// decideMerge picks the merge action for incoming against msgs. Exact
// matches first: same server id means duplicate, same ClientKey means the
// provisional twin of this very insert. The same-minute heuristic (same
// sender, same content, CreatedAt within the same minute) remains as a
// fallback for feeds that lost the key.
func decideMerge(msgs []models.Message, incoming models.Message) (MergeOp, int) {
	for i := range msgs {
		if msgs[i].ID == incoming.ID {
			return MergeDuplicate, i
		}
	}
	if incoming.ClientKey != "" {
		for i := range msgs {
			if msgs[i].Provisional() && msgs[i].ClientKey == incoming.ClientKey {
				return MergePromoted, i
			}
		}
	}
	for i := range msgs {
		if msgs[i].Provisional() &&
			msgs[i].SenderID == incoming.SenderID &&
			msgs[i].Content == incoming.Content &&
			sameMinute(msgs[i].CreatedAt, incoming.CreatedAt) {
			return MergePromoted, i
		}
	}
	// insertion point: after every entry not newer than incoming, so ties
	// keep arrival order
	pos := len(msgs)
	for pos > 0 && msgs[pos-1].CreatedAt.After(incoming.CreatedAt) {
		pos--
	}
	return MergeAppended, pos
}

func sameMinute(a, b time.Time) bool {
	return a.UTC().Truncate(time.Minute).Equal(b.UTC().Truncate(time.Minute))
}

// UpsertChannelSummary updates or inserts the named channel's last-message
// fields and reorders the channel list by LastMessageAt descending,
// message-less channels last.
func (s *Store) UpsertChannelSummary(channelID, lastMessageText string, lastMessageAt time.Time) {
	s.mu.Lock()
	found := false
	for i := range s.channels {
		if s.channels[i].ID == channelID {
			s.channels[i].LastMessageText = lastMessageText
			s.channels[i].LastMessageAt = lastMessageAt
			found = true
			break
		}
	}
	if !found {
		s.channels = append(s.channels, models.Channel{
			ID:              channelID,
			LastMessageText: lastMessageText,
			LastMessageAt:   lastMessageAt,
		})
	}
	sortChannels(s.channels)
	s.mu.Unlock()
	s.emit(Event{Kind: EventSummary, ChannelID: channelID})
}

// AddChannel inserts or replaces a full channel record, keeping the list
// ordered. Used when a freshly created channel joins the sidebar.
func (s *Store) AddChannel(ch models.Channel) {
	s.mu.Lock()
	replaced := false
	for i := range s.channels {
		if s.channels[i].ID == ch.ID {
			s.channels[i] = ch
			replaced = true
			break
		}
	}
	if !replaced {
		s.channels = append(s.channels, ch)
	}
	sortChannels(s.channels)
	s.mu.Unlock()
	s.emit(Event{Kind: EventSummary, ChannelID: ch.ID})
}

func sortChannels(chs []models.Channel) {
	sort.SliceStable(chs, func(i, j int) bool {
		ti, tj := chs[i].LastMessageAt, chs[j].LastMessageAt
		if ti.IsZero() != tj.IsZero() {
			return !ti.IsZero()
		}
		return ti.After(tj)
	})
}
