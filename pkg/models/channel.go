package models

import "time"

// Membership links an account to a channel it participates in. Profile is
// joined metadata and may be absent when the platform returned bare rows.
type Membership struct {
	UserID  string   `json:"user_id"`
	Profile *Account `json:"profile,omitempty"`
}

// Channel is one direct conversation. LastMessageText/LastMessageAt are a
// denormalized cache of the newest message, kept eventually consistent by
// the summary updater; a zero LastMessageAt means no messages yet.
type Channel struct {
	ID              string       `json:"id"`
	CreatedAt       time.Time    `json:"created_at"`
	LastMessageText string       `json:"last_message,omitempty"`
	LastMessageAt   time.Time    `json:"last_message_at,omitzero"`
	Members         []Membership `json:"members,omitempty"`
}

// Direct reports whether the channel has exactly two members. Group
// channels are tolerated when listing but direct-message lookup assumes
// the two-member case.
func (c Channel) Direct() bool {
	return len(c.Members) == 2
}

// OtherMember returns the first membership that is not selfID, or nil.
// Used for naming a DM channel after the peer.
func (c Channel) OtherMember(selfID string) *Membership {
	for i := range c.Members {
		if c.Members[i].UserID != selfID {
			return &c.Members[i]
		}
	}
	return nil
}

// HasMembers reports whether the channel's member set is exactly ids,
// order-irrelevant.
func (c Channel) HasMembers(ids ...string) bool {
	if len(c.Members) != len(ids) {
		return false
	}
	for _, id := range ids {
		found := false
		for _, m := range c.Members {
			if m.UserID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
