// Package platformtest provides an in-memory platform.Platform with
// per-call hooks, for exercising the reconciliation pipelines without a
// database or a feed transport.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatterly/pkg/models"
	"chatterly/pkg/platform"
)

// SummaryCall records one UpdateChannelSummary invocation.
type SummaryCall struct {
	ChannelID string
	Text      string
	At        time.Time
}

// Fake is a hookable in-memory platform. The zero value is usable; hooks
// override individual calls.
type Fake struct {
	mu sync.Mutex

	InsertFn      func(msg models.Message) (platform.InsertAck, error)
	ProfileFn     func(id string) (models.Account, error)
	UploadErr     error
	ProfileErr    error
	SummaryErr    error
	MembershipErr error

	Profiles map[string]models.Account
	Channels map[string]*models.Channel
	Messages map[string][]models.Message

	Inserted     []models.Message
	SummaryCalls []SummaryCall
	Deleted      []string
	Uploaded     []string

	subs map[string][]func(platform.InsertEvent)
}

var _ platform.Platform = (*Fake)(nil)

func (f *Fake) init() {
	if f.Profiles == nil {
		f.Profiles = map[string]models.Account{}
	}
	if f.Channels == nil {
		f.Channels = map[string]*models.Channel{}
	}
	if f.Messages == nil {
		f.Messages = map[string][]models.Message{}
	}
	if f.subs == nil {
		f.subs = map[string][]func(platform.InsertEvent){}
	}
}

// Notify delivers a raw insert event to every subscriber of the channel,
// synchronously, as if the change feed pushed it.
func (f *Fake) Notify(channelID string, ev platform.InsertEvent) {
	f.mu.Lock()
	f.init()
	handlers := append([]func(platform.InsertEvent){}, f.subs[channelID]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (f *Fake) ListMembershipsForAccount(ctx context.Context, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	var out []string
	for id, ch := range f.Channels {
		for _, m := range ch.Members {
			if m.UserID == accountID {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (f *Fake) ListChannelsWithMembers(ctx context.Context, channelIDs []string) ([]models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	var out []models.Channel
	for _, id := range channelIDs {
		if ch, ok := f.Channels[id]; ok {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (f *Fake) ListMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	return append([]models.Message{}, f.Messages[channelID]...), nil
}

func (f *Fake) InsertMessage(ctx context.Context, msg models.Message) (platform.InsertAck, error) {
	f.mu.Lock()
	f.init()
	f.Inserted = append(f.Inserted, msg)
	fn := f.InsertFn
	f.mu.Unlock()
	if fn != nil {
		return fn(msg)
	}
	ack := platform.InsertAck{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	row := msg
	row.ID = ack.ID
	row.CreatedAt = ack.CreatedAt
	row.SenderProfile = nil
	f.mu.Lock()
	f.Messages[msg.ChannelID] = append(f.Messages[msg.ChannelID], row)
	f.mu.Unlock()
	return ack, nil
}

func (f *Fake) UpdateChannelSummary(ctx context.Context, channelID, text string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.SummaryCalls = append(f.SummaryCalls, SummaryCall{ChannelID: channelID, Text: text, At: at})
	if f.SummaryErr != nil {
		return f.SummaryErr
	}
	if ch, ok := f.Channels[channelID]; ok {
		ch.LastMessageText = text
		ch.LastMessageAt = at
	}
	return nil
}

func (f *Fake) SearchAccountsByName(ctx context.Context, query, excludeID string, limit int) ([]models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	var out []models.Account
	for _, a := range f.Profiles {
		if a.ID == excludeID {
			continue
		}
		out = append(out, a)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) CreateChannel(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	id := uuid.NewString()
	f.Channels[id] = &models.Channel{ID: id, CreatedAt: time.Now().UTC()}
	return id, nil
}

func (f *Fake) AddMemberships(ctx context.Context, channelID string, accountIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if f.MembershipErr != nil {
		return f.MembershipErr
	}
	ch, ok := f.Channels[channelID]
	if !ok {
		return platform.ErrNotFound
	}
	for _, id := range accountIDs {
		ch.Members = append(ch.Members, models.Membership{UserID: id})
	}
	return nil
}

func (f *Fake) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	delete(f.Channels, channelID)
	f.Deleted = append(f.Deleted, channelID)
	return nil
}

func (f *Fake) SubscribeToInserts(ctx context.Context, channelID string, onEvent func(platform.InsertEvent)) (platform.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.subs[channelID] = append(f.subs[channelID], onEvent)
	return fakeSub{}, nil
}

func (f *Fake) UploadFile(ctx context.Context, path string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UploadErr != nil {
		return "", f.UploadErr
	}
	f.Uploaded = append(f.Uploaded, path)
	return "http://files.test/" + path, nil
}

func (f *Fake) GetProfile(ctx context.Context, id string) (models.Account, error) {
	f.mu.Lock()
	fn := f.ProfileFn
	f.mu.Unlock()
	if fn != nil {
		return fn(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if f.ProfileErr != nil {
		return models.Account{}, f.ProfileErr
	}
	a, ok := f.Profiles[id]
	if !ok {
		return models.Account{}, fmt.Errorf("profile %s: %w", id, platform.ErrNotFound)
	}
	return a, nil
}

func (f *Fake) UpsertProfile(ctx context.Context, acct models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.Profiles[acct.ID] = acct
	return nil
}

type fakeSub struct{}

func (fakeSub) Close() error { return nil }
