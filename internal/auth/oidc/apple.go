package oidc

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/marcogenualdo/ridegate/internal/config"
	"golang.org/x/sync/singleflight"
)

const appleAudience = "https://appleid.apple.com"

// appleSecret mints the ES256 client secret Sign in with Apple expects in
// place of a static one. A minted secret is reused until it is within
// refreshWindow of expiring.
type appleSecret struct {
	teamID   string
	keyID    string
	clientID string
	key      *ecdsa.PrivateKey
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	current string
	expires time.Time

	group singleflight.Group
	mints atomic.Int64
}

const refreshWindow = 5 * time.Minute

func newAppleSecretFromFile(cfg config.AppleConfig, clientID string) (*appleSecret, error) {
	data, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key: %w", err)
	}

	return newAppleSecret(cfg, clientID, key), nil
}

func newAppleSecret(cfg config.AppleConfig, clientID string, key *ecdsa.PrivateKey) *appleSecret {
	ttl := cfg.SecretTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &appleSecret{
		teamID:   cfg.TeamID,
		keyID:    cfg.KeyID,
		clientID: clientID,
		key:      key,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a valid client secret. Concurrent callers that find the cached
// secret stale share a single mint.
func (a *appleSecret) Get(ctx context.Context) (string, error) {
	if s, ok := a.cached(); ok {
		return s, nil
	}

	v, err, _ := a.group.Do("secret", func() (any, error) {
		if s, ok := a.cached(); ok {
			return s, nil
		}
		return a.mint()
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (a *appleSecret) cached() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != "" && a.now().Add(refreshWindow).Before(a.expires) {
		return a.current, true
	}
	return "", false
}

func (a *appleSecret) mint() (string, error) {
	now := a.now()
	expires := now.Add(a.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    a.teamID,
		Subject:   a.clientID,
		Audience:  jwt.ClaimStrings{appleAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	token.Header["kid"] = a.keyID

	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign client secret: %w", err)
	}
	a.mints.Add(1)

	a.mu.Lock()
	a.current = signed
	a.expires = expires
	a.mu.Unlock()

	return signed, nil
}
