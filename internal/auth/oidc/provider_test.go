package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIssuer struct {
	srv    *httptest.Server
	key    *rsa.PrivateKey
	claims jwt.MapClaims
	// lastForm is the most recent token request body.
	lastForm url.Values
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fi := &fakeIssuer{key: key, claims: jwt.MapClaims{}}
	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                fi.srv.URL,
			"authorization_endpoint":                fi.srv.URL + "/authorize",
			"token_endpoint":                        fi.srv.URL + "/token",
			"jwks_uri":                              fi.srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})

	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "k1",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		fi.lastForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
			return
		}

		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, fi.claims)
		tok.Header["kid"] = "k1"
		signed, err := tok.SignedString(key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     signed,
		})
	})

	fi.srv = httptest.NewServer(mux)
	t.Cleanup(fi.srv.Close)
	return fi
}

func (fi *fakeIssuer) setClaims(nonce string, extra map[string]any) {
	now := time.Now()
	fi.claims = jwt.MapClaims{
		"iss":   fi.srv.URL,
		"aud":   "client-id",
		"sub":   "123",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"nonce": nonce,
	}
	for k, v := range extra {
		fi.claims[k] = v
	}
}

func newTestProvider(t *testing.T, fi *fakeIssuer, id string, scopes ...string) *Provider {
	t.Helper()
	p, err := NewProvider(context.Background(), config.ProviderConfig{
		ID:           id,
		Name:         "Test",
		Issuer:       fi.srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       scopes,
	}, "https://rides.example.com/auth/"+id+"/callback")
	require.NoError(t, err)
	return p
}

func TestAuthCodeURL(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi, "google", "openid", "email", "profile")

	req := p.NewAuthRequest("state-1", "nonce-1")
	require.NotEmpty(t, req.Verifier)

	u, err := url.Parse(p.AuthCodeURL(req))
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "nonce-1", q.Get("nonce"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "select_account", q.Get("prompt"))
	assert.Equal(t, "https://rides.example.com/auth/google/callback", q.Get("redirect_uri"))
	assert.Empty(t, q.Get("response_mode"))
}

func TestExchange(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi, "google", "openid", "email", "profile")
	req := p.NewAuthRequest("state", "nonce-1")
	fi.setClaims("nonce-1", map[string]any{
		"email":          "rider@example.com",
		"email_verified": true,
		"name":           "Road Rider",
		"picture":        "https://example.com/a.png",
	})

	id, err := p.Exchange(context.Background(), req, Callback{Code: "good-code"})
	require.NoError(t, err)

	assert.Equal(t, "google:123", id.SubjectID)
	assert.Equal(t, "Road Rider", id.DisplayName)
	assert.Equal(t, "rider@example.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "https://example.com/a.png", id.AvatarURL)
	assert.Equal(t, auth.Google, id.Provider)
	assert.Equal(t, req.Verifier, fi.lastForm.Get("code_verifier"))
}

func TestExchangeNonceMismatch(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi, "google")
	fi.setClaims("someone-else", nil)

	_, err := p.Exchange(context.Background(), p.NewAuthRequest("s", "mine"), Callback{Code: "good-code"})
	require.Error(t, err)
	assert.Equal(t, "nonce_mismatch", auth.CodeOf(err))
}

func TestExchangeProviderRejectsClient(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi, "google")

	_, err := p.Exchange(context.Background(), p.NewAuthRequest("s", "n"), Callback{Code: "bad-code"})
	require.Error(t, err)
	assert.Equal(t, auth.ProviderMisconfigured, auth.KindOf(err))
}

func TestExchangeMissingCode(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi, "google")

	_, err := p.Exchange(context.Background(), p.NewAuthRequest("s", "n"), Callback{})
	assert.Equal(t, auth.ProviderMisconfigured, auth.KindOf(err))
}

func TestAppleFormPostAndUserPayload(t *testing.T) {
	fi := newFakeIssuer(t)
	p := newTestProvider(t, fi, "apple", "openid", "email", "name")
	require.True(t, p.UsesFormPost())

	req := p.NewAuthRequest("state", "n")
	u, err := url.Parse(p.AuthCodeURL(req))
	require.NoError(t, err)
	assert.Equal(t, "form_post", u.Query().Get("response_mode"))
	assert.Empty(t, u.Query().Get("prompt"))

	fi.setClaims("n", map[string]any{"email_verified": "true"})
	id, err := p.Exchange(context.Background(), req, Callback{
		Code: "good-code",
		User: `{"name":{"firstName":"Ada","lastName":"Lovelace"},"email":"ada@privaterelay.appleid.com"}`,
	})
	require.NoError(t, err)

	assert.Equal(t, "apple:123", id.SubjectID)
	assert.Equal(t, "Ada Lovelace", id.DisplayName)
	assert.Equal(t, "ada@privaterelay.appleid.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "client-secret", fi.lastForm.Get("client_secret"))
}

func TestNewProviderRejectsUnknownKind(t *testing.T) {
	_, err := NewProvider(context.Background(), config.ProviderConfig{ID: "phone"}, "")
	assert.Error(t, err)
}
