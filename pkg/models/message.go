package models

import (
	"strings"
	"time"
)

// ProvisionalPrefix marks client-generated message ids awaiting the
// server-issued replacement. Server ids are UUIDs and never carry it.
const ProvisionalPrefix = "local-"

// ContentKind tags message content so rendering needs no heuristic.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentAttachment ContentKind = "attachment"
)

// Content is the tagged message payload: literal text, or the URL of an
// uploaded object plus an optional mime hint.
type Content struct {
	Kind     ContentKind `json:"kind"`
	Value    string      `json:"value"`
	MimeHint string      `json:"mime_hint,omitempty"`
}

// TextContent builds a text payload.
func TextContent(s string) Content {
	return Content{Kind: ContentText, Value: s}
}

// AttachmentContent builds an attachment payload pointing at an uploaded
// object URL.
func AttachmentContent(url, mimeHint string) Content {
	return Content{Kind: ContentAttachment, Value: url, MimeHint: mimeHint}
}

// Message is one entry in a channel's history. ID is either a server-issued
// UUID or a provisional id (see ProvisionalPrefix). ClientKey is the
// client-generated idempotency key carried through the insert and echoed in
// the change feed so reconciliation can match exactly.
type Message struct {
	ID            string    `json:"id"`
	ChannelID     string    `json:"channel_id"`
	SenderID      string    `json:"sender_id"`
	Content       Content   `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	ClientKey     string    `json:"client_key,omitempty"`
	SenderProfile *Account  `json:"sender_profile,omitempty"`
}

// Provisional reports whether the message still carries a client-generated
// placeholder id.
func (m Message) Provisional() bool {
	return strings.HasPrefix(m.ID, ProvisionalPrefix)
}
