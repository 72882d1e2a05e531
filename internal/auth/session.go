package auth

import "time"

// ProviderKind names the sign-in method that authenticated a user.
type ProviderKind string

const (
	Google   ProviderKind = "google"
	Apple    ProviderKind = "apple"
	Phone    ProviderKind = "phone"
	Password ProviderKind = "password"
)

// Federated reports whether the kind signs in through an OAuth popup or
// redirect. Phone and password sign-ins never reach AttemptSignIn.
func (k ProviderKind) Federated() bool {
	return k == Google || k == Apple
}

func ParseProviderKind(s string) (ProviderKind, bool) {
	switch k := ProviderKind(s); k {
	case Google, Apple, Phone, Password:
		return k, true
	}
	return "", false
}

// Identity is what an identity provider hands back after a completed sign-in.
type Identity struct {
	SubjectID     string       `json:"subject_id"`
	DisplayName   string       `json:"display_name"`
	Email         string       `json:"email"`
	EmailVerified bool         `json:"email_verified"`
	AvatarURL     string       `json:"avatar_url,omitempty"`
	Provider      ProviderKind `json:"provider"`
}

// Session is the local session record. It is overwritten on every successful
// sign-in and removed on sign-out.
type Session struct {
	ID          string       `json:"id"`
	SubjectID   string       `json:"subject_id"`
	DisplayName string       `json:"display_name"`
	Email       string       `json:"email"`
	AvatarURL   string       `json:"avatar_url,omitempty"`
	Provider    ProviderKind `json:"provider"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// NewSession builds an unsaved record for id. ID and ExpiresAt are filled in
// by whoever persists it.
func NewSession(id *Identity, now time.Time) *Session {
	name := id.DisplayName
	if name == "" {
		name = "User"
	}
	return &Session{
		SubjectID:   id.SubjectID,
		DisplayName: name,
		Email:       id.Email,
		AvatarURL:   id.AvatarURL,
		Provider:    id.Provider,
		CreatedAt:   now,
	}
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
