// Package validation holds the send-side message rules. Rejections are
// silent no-ops at the pipeline level; these helpers only decide.
package validation

import (
	"fmt"
	"strings"

	"chatterly/pkg/models"
)

// MaxContentLen bounds message text; the platform enforces its own limit,
// this one just fails fast locally.
const MaxContentLen = 8192

// RejectText reports why text cannot be sent, or "" when it can.
func RejectText(text string) string {
	if strings.TrimSpace(text) == "" {
		return "empty content"
	}
	if len(text) > MaxContentLen {
		return fmt.Sprintf("content exceeds %d bytes", MaxContentLen)
	}
	return ""
}

// ValidateOutgoing checks the fields every persisted message must carry.
func ValidateOutgoing(m models.Message) error {
	if m.ChannelID == "" {
		return fmt.Errorf("missing channel id")
	}
	if m.SenderID == "" {
		return fmt.Errorf("missing sender id")
	}
	if m.Content.Kind == "" {
		return fmt.Errorf("missing content kind")
	}
	if m.Content.Kind == models.ContentText && strings.TrimSpace(m.Content.Value) == "" {
		return fmt.Errorf("empty text content")
	}
	if m.Content.Kind == models.ContentAttachment && m.Content.Value == "" {
		return fmt.Errorf("attachment without url")
	}
	return nil
}
