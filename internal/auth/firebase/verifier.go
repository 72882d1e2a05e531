// Package firebase accepts ID tokens from the Firebase web SDK, which the
// login page uses for email/password and phone OTP sign-in.
package firebase

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/config"
	"google.golang.org/api/option"
)

// TokenVerifier is the part of the Admin SDK auth client used here.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

type Verifier struct {
	client TokenVerifier
}

func New(ctx context.Context, cfg config.FirebaseConfig) (*Verifier, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firebase auth client: %w", err)
	}

	return &Verifier{client: client}, nil
}

func NewWithClient(client TokenVerifier) *Verifier {
	return &Verifier{client: client}
}

// Identity verifies idToken and maps it to an identity. Tokens minted for a
// federated provider are accepted too and keep that provider kind.
func (v *Verifier) Identity(ctx context.Context, idToken string) (*auth.Identity, error) {
	if idToken == "" {
		return nil, auth.NewError(auth.Unknown, "auth/missing-id-token", errors.New("empty ID token"))
	}

	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, auth.NewError(auth.Unknown, "auth/invalid-id-token", err)
	}

	kind, ok := signInKind(tok.Firebase.SignInProvider)
	if !ok {
		return nil, auth.Errorf(auth.ProviderMisconfigured, "auth/operation-not-allowed",
			"sign-in provider %q is not accepted", tok.Firebase.SignInProvider)
	}

	id := &auth.Identity{
		SubjectID: tok.UID,
		Provider:  kind,
	}
	id.Email, _ = tok.Claims["email"].(string)
	id.EmailVerified, _ = tok.Claims["email_verified"].(bool)
	id.DisplayName, _ = tok.Claims["name"].(string)
	id.AvatarURL, _ = tok.Claims["picture"].(string)

	if id.DisplayName == "" && kind == auth.Phone {
		id.DisplayName, _ = tok.Claims["phone_number"].(string)
	}

	return id, nil
}

func signInKind(provider string) (auth.ProviderKind, bool) {
	switch provider {
	case "password":
		return auth.Password, true
	case "phone":
		return auth.Phone, true
	case "google.com":
		return auth.Google, true
	case "apple.com":
		return auth.Apple, true
	}
	return "", false
}
