// Package send turns a user intent ("send this text", "send this file")
// into a persisted message while keeping the client responsive: an
// optimistic provisional entry appears immediately, and the explicit
// promote/withdraw pair guarantees that failure leaves no phantom entry
// and success leaves exactly one authoritative one.
package send

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatterly/pkg/logger"
	"chatterly/pkg/models"
	"chatterly/pkg/platform"
	"chatterly/pkg/session"
	"chatterly/pkg/store"
	"chatterly/pkg/summary"
	"chatterly/pkg/telemetry"
	"chatterly/pkg/validation"
)

// Notifier surfaces a user-visible send failure. UI feedback otherwise
// flows through store state, not return values.
type Notifier func(channelID string, err error)

// Pipeline is the send path for the signed-in account.
type Pipeline struct {
	store     *store.Store
	platform  platform.Platform
	summaries *summary.Updater
	notify    Notifier
}

// New returns a pipeline. notify may be nil; failures are then only logged.
func New(st *store.Store, pf platform.Platform, su *summary.Updater, notify Notifier) *Pipeline {
	if notify == nil {
		notify = func(string, error) {}
	}
	return &Pipeline{store: st, platform: pf, summaries: su, notify: notify}
}

// SendText sends a text message to channelID. Empty or whitespace text and
// a missing channel or session are silent no-ops.
func (p *Pipeline) SendText(ctx context.Context, sess session.Session, channelID, text string) {
	if channelID == "" || sess.AccountID == "" {
		telemetry.SendsTotal.WithLabelValues("rejected").Inc()
		return
	}
	if why := validation.RejectText(text); why != "" {
		telemetry.SendsTotal.WithLabelValues("rejected").Inc()
		logger.Debug("send_rejected", "channel", channelID, "reason", why)
		return
	}
	p.persist(ctx, sess, channelID, models.TextContent(strings.TrimSpace(text)))
}

// SendFile uploads the file to the object store under a collision-resistant
// path and sends the resulting URL as an attachment message. An upload
// failure aborts the whole send before any provisional entry exists.
func (p *Pipeline) SendFile(ctx context.Context, sess session.Session, channelID, name, mimeHint string, data []byte) {
	if channelID == "" || sess.AccountID == "" || len(data) == 0 {
		telemetry.SendsTotal.WithLabelValues("rejected").Inc()
		return
	}
	objPath := uploadPath(channelID, name)
	url, err := p.platform.UploadFile(ctx, objPath, data)
	if err != nil {
		telemetry.UploadsTotal.WithLabelValues("failed").Inc()
		logger.Error("upload_failed", "channel", channelID, "path", objPath, "error", err)
		p.notify(channelID, fmt.Errorf("upload failed: %w", err))
		return
	}
	telemetry.UploadsTotal.WithLabelValues("ok").Inc()
	p.persist(ctx, sess, channelID, models.AttachmentContent(url, mimeHint))
}

// persist runs the optimistic insert: provisional entry, authoritative
// insert, then promote (and summary update) or withdraw. No automatic
// retries; a failure is surfaced once for the user to retry manually.
func (p *Pipeline) persist(ctx context.Context, sess session.Session, channelID string, content models.Content) {
	provID := models.ProvisionalPrefix + uuid.NewString()
	self := sess.Account()
	msg := models.Message{
		ID:            provID,
		ChannelID:     channelID,
		SenderID:      sess.AccountID,
		Content:       content,
		CreatedAt:     time.Now().UTC(),
		ClientKey:     provID,
		SenderProfile: &self,
	}
	if err := validation.ValidateOutgoing(msg); err != nil {
		telemetry.SendsTotal.WithLabelValues("rejected").Inc()
		logger.Debug("send_rejected", "channel", channelID, "reason", err)
		return
	}

	p.store.AppendProvisional(msg)

	started := time.Now()
	ack, err := p.platform.InsertMessage(ctx, msg)
	if err != nil {
		telemetry.SendsTotal.WithLabelValues("failed").Inc()
		logger.Error("message_insert_failed", "channel", channelID, "provisional", provID, "error", err)
		p.store.Withdraw(provID)
		p.notify(channelID, fmt.Errorf("send failed: %w", err))
		return
	}
	telemetry.SendLatency.Observe(time.Since(started).Seconds())
	telemetry.SendsTotal.WithLabelValues("sent").Inc()

	// The live feed may have promoted the provisional entry already; a
	// missed promote here is fine.
	if !p.store.Promote(provID, ack.ID, ack.CreatedAt) {
		logger.Debug("promote_noop", "provisional", provID, "id", ack.ID)
	}
	p.summaries.OnChannelAdvanced(ctx, channelID, content.Value, ack.CreatedAt)
}

// uploadPath builds a collision-resistant object path preserving the
// original extension.
func uploadPath(channelID, name string) string {
	ext := strings.ToLower(path.Ext(name))
	return fmt.Sprintf("uploads/%s/%s%s", channelID, uuid.NewString(), ext)
}
