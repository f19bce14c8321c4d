package models

// Account identifies a signed-in party or a conversation participant.
// Sourced from the external identity provider; immutable for the session.
type Account struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}
