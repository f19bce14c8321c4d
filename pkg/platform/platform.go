// Package platform defines the contract with the backing platform: the
// external service that owns the database, object storage and the insert
// change feed. The daemon's reconciliation core is written against this
// interface; platform/local provides an embedded implementation.
package platform

import (
	"context"
	"errors"
	"time"

	"chatterly/pkg/models"
)

// ErrNotFound is returned when a channel, message or profile does not
// exist in the backing store.
var ErrNotFound = errors.New("platform: not found")

// InsertAck is the authoritative result of a message insert: the
// server-issued id and timestamp the provisional entry is promoted to.
type InsertAck struct {
	ID        string
	CreatedAt time.Time
}

// InsertEvent is the raw change-feed payload for one newly persisted
// message. The feed does not join profile data; SenderProfile is nil and
// consumers fetch it separately. ClientKey is echoed from the insert when
// the sender supplied one.
type InsertEvent struct {
	Message models.Message
}

// Subscription is a live insert feed scoped to a single channel. Close
// tears the feed down; no events are delivered afterwards.
type Subscription interface {
	Close() error
}

// Platform is the backing service surface used by the client. All calls
// are remote and honor ctx cancellation.
type Platform interface {
	// ListMembershipsForAccount returns the ids of channels the account
	// participates in.
	ListMembershipsForAccount(ctx context.Context, accountID string) ([]string, error)

	// ListChannelsWithMembers returns the named channels with joined
	// member profiles, ordered by last-message time descending, channels
	// without messages last.
	ListChannelsWithMembers(ctx context.Context, channelIDs []string) ([]models.Channel, error)

	// ListMessages returns a channel's full history ordered by CreatedAt
	// ascending.
	ListMessages(ctx context.Context, channelID string) ([]models.Message, error)

	// InsertMessage persists a message and returns the server-issued id
	// and timestamp. The message's ClientKey, when set, is stored and
	// echoed in the change-feed payload.
	InsertMessage(ctx context.Context, msg models.Message) (InsertAck, error)

	// UpdateChannelSummary persists the denormalized last-message fields.
	UpdateChannelSummary(ctx context.Context, channelID, lastMessageText string, lastMessageAt time.Time) error

	// SearchAccountsByName returns up to limit accounts whose display name
	// contains query (case-insensitive), excluding excludeID.
	SearchAccountsByName(ctx context.Context, query, excludeID string, limit int) ([]models.Account, error)

	// CreateChannel creates an empty channel and returns its id. Adding
	// members is a separate step; DeleteChannel compensates when that
	// step fails.
	CreateChannel(ctx context.Context) (string, error)
	AddMemberships(ctx context.Context, channelID string, accountIDs []string) error
	DeleteChannel(ctx context.Context, channelID string) error

	// SubscribeToInserts delivers insert events for one channel until the
	// subscription is closed. onEvent may be called from the transport's
	// own goroutine.
	SubscribeToInserts(ctx context.Context, channelID string, onEvent func(InsertEvent)) (Subscription, error)

	// UploadFile stores bytes under path in the object store and returns
	// a publicly resolvable URL.
	UploadFile(ctx context.Context, path string, data []byte) (string, error)

	// GetProfile returns the account metadata for id.
	GetProfile(ctx context.Context, id string) (models.Account, error)

	// UpsertProfile stores account metadata, making it joinable by the
	// list and search queries.
	UpsertProfile(ctx context.Context, acct models.Account) error
}
