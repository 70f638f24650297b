package domain

// Identity is the resolved visitor identity for one chat session.
// Exactly one variant is active: authenticated identities carry an email
// (and optionally a display name), anonymous ones carry an ephemeral
// numeric session ID. The identity never changes after resolution; a
// sign-in or sign-out produces a new session with a new identity.
type Identity struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// Authenticated reports whether this identity is backed by an email.
func (id Identity) Authenticated() bool {
	return id.Email != ""
}
