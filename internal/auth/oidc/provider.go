// Package oidc signs users in with Google and Apple through the
// authorization code flow with PKCE.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/config"
	"golang.org/x/oauth2"
)

type Provider struct {
	kind auth.ProviderKind
	name string
	cfg  config.ProviderConfig

	provider     *oidc.Provider
	oauth2Config oauth2.Config
	verifier     *oidc.IDTokenVerifier
	secret       func(ctx context.Context) (string, error)
}

// NewProvider runs discovery against the provider's issuer. callbackURL is
// the absolute URL the provider returns to.
func NewProvider(ctx context.Context, providerCfg config.ProviderConfig, callbackURL string) (*Provider, error) {
	kind, ok := auth.ParseProviderKind(providerCfg.ID)
	if !ok || !kind.Federated() {
		return nil, fmt.Errorf("unsupported provider: %s", providerCfg.ID)
	}

	provider, err := oidc.NewProvider(ctx, providerCfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	endpoint := provider.Endpoint()
	if kind == auth.Apple {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	p := &Provider{
		kind:     kind,
		name:     providerCfg.Name,
		cfg:      providerCfg,
		provider: provider,
		oauth2Config: oauth2.Config{
			ClientID:     providerCfg.ClientID,
			ClientSecret: providerCfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  callbackURL,
			Scopes:       providerCfg.Scopes,
		},
		verifier: provider.Verifier(&oidc.Config{
			ClientID: providerCfg.ClientID,
		}),
	}

	if providerCfg.Apple != nil {
		minter, err := newAppleSecretFromFile(*providerCfg.Apple, providerCfg.ClientID)
		if err != nil {
			return nil, fmt.Errorf("failed to load Apple signing key: %w", err)
		}
		p.secret = minter.Get
	} else {
		static := providerCfg.ClientSecret
		p.secret = func(context.Context) (string, error) { return static, nil }
	}

	return p, nil
}

func (p *Provider) Kind() auth.ProviderKind {
	return p.kind
}

func (p *Provider) Name() string {
	return p.name
}

// UsesFormPost reports whether the provider answers the callback with a POST.
// Apple does whenever name or email is requested.
func (p *Provider) UsesFormPost() bool {
	if p.kind != auth.Apple {
		return false
	}
	for _, s := range p.cfg.Scopes {
		if s == "name" || s == "email" {
			return true
		}
	}
	return false
}

// AuthRequest is the per-attempt secret material bound to one state value.
type AuthRequest struct {
	State    string
	Nonce    string
	Verifier string
}

// AuthCodeURL is where the browser goes to sign in. verifier is empty when
// PKCE is disabled for the provider.
func (p *Provider) AuthCodeURL(req AuthRequest) string {
	opts := []oauth2.AuthCodeOption{oidc.Nonce(req.Nonce)}
	if req.Verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(req.Verifier))
	}

	switch p.kind {
	case auth.Google:
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "select_account"))
	case auth.Apple:
		if p.UsesFormPost() {
			opts = append(opts, oauth2.SetAuthURLParam("response_mode", "form_post"))
		}
	}

	return p.oauth2Config.AuthCodeURL(req.State, opts...)
}

// NewAuthRequest draws fresh state, nonce and, when enabled, a PKCE verifier.
func (p *Provider) NewAuthRequest(state, nonce string) AuthRequest {
	req := AuthRequest{State: state, Nonce: nonce}
	if p.cfg.UsesPKCE() {
		req.Verifier = oauth2.GenerateVerifier()
	}
	return req
}

// Callback is what the provider sent back to the callback URL.
type Callback struct {
	Code string
	// User is Apple's one-time user JSON, present on the first sign-in only.
	User string
}

func (p *Provider) Exchange(ctx context.Context, req AuthRequest, cb Callback) (*auth.Identity, error) {
	if cb.Code == "" {
		return nil, auth.NewError(auth.ProviderMisconfigured, "missing_code", errors.New("missing code parameter"))
	}

	secret, err := p.secret(ctx)
	if err != nil {
		return nil, auth.NewError(auth.ProviderMisconfigured, "client_secret", err)
	}

	cfg := p.oauth2Config
	cfg.ClientSecret = secret

	var opts []oauth2.AuthCodeOption
	if req.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(req.Verifier))
	}

	oauth2Token, err := cfg.Exchange(ctx, cb.Code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, auth.NewError(auth.ProviderMisconfigured, "missing_id_token", errors.New("no id_token in token response"))
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, auth.NewError(auth.ProviderMisconfigured, "invalid_id_token", fmt.Errorf("failed to verify ID token: %w", err))
	}
	if idToken.Nonce != req.Nonce {
		return nil, auth.NewError(auth.Unknown, "nonce_mismatch", errors.New("ID token nonce does not match"))
	}

	var c claims
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	id := &auth.Identity{
		SubjectID:     string(p.kind) + ":" + idToken.Subject,
		DisplayName:   c.Name,
		Email:         c.Email,
		EmailVerified: bool(c.EmailVerified),
		AvatarURL:     c.Picture,
		Provider:      p.kind,
	}

	if cb.User != "" {
		if u, err := parseAppleUser(cb.User); err == nil {
			if id.DisplayName == "" {
				id.DisplayName = u.fullName()
			}
			if id.Email == "" {
				id.Email = u.Email
			}
		}
	}

	return id, nil
}

type claims struct {
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
}

// flexBool accepts Apple's "true"/"false" strings as well as JSON booleans.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*b = flexBool(s == "true")
	return nil
}

type appleUser struct {
	Name struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"name"`
	Email string `json:"email"`
}

func (u appleUser) fullName() string {
	return strings.TrimSpace(u.Name.FirstName + " " + u.Name.LastName)
}

func parseAppleUser(raw string) (appleUser, error) {
	var u appleUser
	err := json.Unmarshal([]byte(raw), &u)
	return u, err
}
