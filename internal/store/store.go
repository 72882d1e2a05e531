// Package store holds the user records the ride app reads its profiles from.
// The gateway only ever creates a record or bumps its last-active time; the
// accumulated profile fields belong to the app.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcogenualdo/ridegate/internal/config"
)

var (
	ErrNotFound = errors.New("user record not found")
	ErrExists   = errors.New("user record already exists")
)

type PrivacySettings struct {
	ProfilePublic   bool `json:"profile_public" firestore:"profilePublic"`
	HideJoinedRides bool `json:"hide_joined_rides" firestore:"hideJoinedRides"`
}

type Stats struct {
	RidesHosted int `json:"rides_hosted" firestore:"ridesHosted"`
	RidesJoined int `json:"rides_joined" firestore:"ridesJoined"`
}

type User struct {
	ID          string          `json:"id" firestore:"id"`
	Email       string          `json:"email" firestore:"email"`
	Username    string          `json:"username" firestore:"username"`
	DisplayName string          `json:"display_name" firestore:"displayName"`
	PhotoURL    string          `json:"photo_url,omitempty" firestore:"photoURL"`
	Provider    string          `json:"provider" firestore:"provider"`
	Bio         string          `json:"bio" firestore:"bio"`
	Bike        string          `json:"bike" firestore:"bike"`
	City        string          `json:"city" firestore:"city"`
	Privacy     PrivacySettings `json:"privacy" firestore:"privacySettings"`
	Stats       Stats           `json:"stats" firestore:"stats"`
	Following   []string        `json:"following" firestore:"following"`
	CreatedAt   time.Time       `json:"created_at" firestore:"createdAt"`
	LastActive  time.Time       `json:"last_active" firestore:"lastActive"`
}

// Profile is the identity data a new record is seeded from.
type Profile struct {
	Email       string
	DisplayName string
	PhotoURL    string
	Provider    string
}

// NewUser returns a first-sign-in record with default privacy, zeroed stats
// and an empty following list.
func NewUser(subjectID, username string, p Profile, now time.Time) *User {
	name := p.DisplayName
	if name == "" {
		name = "User"
	}
	return &User{
		ID:          subjectID,
		Email:       p.Email,
		Username:    username,
		DisplayName: name,
		PhotoURL:    p.PhotoURL,
		Provider:    p.Provider,
		Privacy:     PrivacySettings{ProfilePublic: true},
		Following:   []string{},
		CreatedAt:   now,
		LastActive:  now,
	}
}

type UserStore interface {
	// ReadUserRecord returns nil, nil when no record exists.
	ReadUserRecord(ctx context.Context, subjectID string) (*User, error)

	// CreateUserRecord fails with ErrExists when a record is already present.
	// Callers create only after ReadUserRecord returned nil.
	CreateUserRecord(ctx context.Context, u *User) error

	// TouchLastSeen updates LastActive and nothing else.
	TouchLastSeen(ctx context.Context, subjectID string, at time.Time) error

	UsernameTaken(ctx context.Context, username string) (bool, error)

	Close() error
}

func New(ctx context.Context, cfg config.StoreConfig) (UserStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "firestore":
		if cfg.Firestore == nil {
			return nil, errors.New("firestore config is required for firestore store type")
		}
		return NewFirestoreStore(ctx, *cfg.Firestore)
	case "postgres":
		if cfg.Postgres == nil {
			return nil, errors.New("postgres config is required for postgres store type")
		}
		return NewPostgresStore(ctx, *cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
