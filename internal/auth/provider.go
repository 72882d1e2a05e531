package auth

import (
	"context"

	"github.com/marcogenualdo/ridegate/internal/diag"
)

// IdentityProvider is the sign-in backend as seen from one page context.
type IdentityProvider interface {
	// BeginPopupSignIn runs the popup flow to completion. It fails with
	// PopupBlocked when the popup window never opened.
	BeginPopupSignIn(ctx context.Context, kind ProviderKind) (*Identity, error)

	// BeginRedirectSignIn prepares a full-page redirect. A nil error means the
	// page is about to navigate away; no result is returned here.
	BeginRedirectSignIn(ctx context.Context, kind ProviderKind) error

	// QueryPendingRedirectResult consumes the completed redirect result, if
	// any. A second call after a result was returned yields nil.
	QueryPendingRedirectResult(ctx context.Context) (*Identity, error)

	// CurrentSubjectID is the signed-in subject, or "" when signed out.
	CurrentSubjectID() string
}

// Control is the sign-in button handle. TryDisable returns false when the
// button is already disabled by an in-flight attempt.
type Control interface {
	TryDisable() bool
	Enable()
}

// SessionWriter persists the local session record. It assigns s.ID and
// s.ExpiresAt.
type SessionWriter interface {
	Establish(ctx context.Context, s *Session) error
}

// Recorder receives classification and strategy decisions for the
// diagnostic ring.
type Recorder interface {
	Record(ctx context.Context, e diag.Entry)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, diag.Entry) {}
