package auth

import (
	"context"
	"fmt"

	"github.com/marcogenualdo/ridegate/internal/diag"
	"github.com/marcogenualdo/ridegate/internal/envdetect"
	"github.com/marcogenualdo/ridegate/internal/store"
)

const (
	WarningProfileIncomplete = "profile sync incomplete"
	WarningSessionNotSaved   = "session could not be saved"
)

// SessionResult is a completed sign-in. Success is true whenever the identity
// provider authenticated the user; store failures only set Warning.
type SessionResult struct {
	Success bool     `json:"success"`
	Session *Session `json:"session"`
	Warning string   `json:"warning,omitempty"`
}

// CompletePendingRedirectOnLoad consumes a redirect result waiting for this
// page context. With nothing pending it returns nil, nil and touches nothing
// else. The provider is queried exactly once per call.
func (f *Flow) CompletePendingRedirectOnLoad(ctx context.Context) (*SessionResult, error) {
	id, err := f.idp.QueryPendingRedirectResult(ctx)
	if err != nil {
		return nil, f.fail(ctx, envdetect.Classify(f.probe), "", StrategyRedirect, err)
	}
	if id == nil {
		return nil, nil
	}

	f.recorder.Record(ctx, diag.Entry{
		Event:    diag.EventRedirectCompleted,
		Provider: string(id.Provider),
		Strategy: string(StrategyRedirect),
	})

	return f.CompleteSignIn(ctx, id), nil
}

// CompleteSignIn syncs the user record and writes the local session for an
// authenticated identity. It never fails. Signing in as a different subject
// than the one currently signed in replaces that session.
func (f *Flow) CompleteSignIn(ctx context.Context, id *Identity) *SessionResult {
	res := &SessionResult{Success: true}

	if previous := f.idp.CurrentSubjectID(); previous != "" && previous != id.SubjectID {
		f.logger.Info("switching account", "provider", id.Provider, "previous", previous, "subject", id.SubjectID)
		f.recorder.Record(ctx, diag.Entry{Event: diag.EventAccountSwitched, Provider: string(id.Provider)})
	}

	if err := f.syncProfile(ctx, id); err != nil {
		f.logger.Warn("profile sync failed", "provider", id.Provider, "subject", id.SubjectID, "error", err)
		f.recorder.Record(ctx, diag.Entry{
			Event:    diag.EventProfileSyncFailed,
			Provider: string(id.Provider),
			Message:  err.Error(),
		})
		res.Warning = WarningProfileIncomplete
	}

	s := NewSession(id, f.now())
	if err := f.sessions.Establish(ctx, s); err != nil {
		f.logger.Error("failed to persist session", "provider", id.Provider, "subject", id.SubjectID, "error", err)
		if res.Warning == "" {
			res.Warning = WarningSessionNotSaved
		}
	}
	res.Session = s

	f.recorder.Record(ctx, diag.Entry{Event: diag.EventSignedIn, Provider: string(id.Provider)})
	f.logger.Info("signed in", "provider", id.Provider, "subject", id.SubjectID, "warning", res.Warning)

	return res
}

// syncProfile creates the user record on first sign-in and otherwise only
// bumps its last-active time.
func (f *Flow) syncProfile(ctx context.Context, id *Identity) error {
	existing, err := f.users.ReadUserRecord(ctx, id.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to read user record: %w", err)
	}

	if existing != nil {
		if err := f.users.TouchLastSeen(ctx, id.SubjectID, f.now()); err != nil {
			return fmt.Errorf("failed to update last seen: %w", err)
		}
		return nil
	}

	username, err := store.UniqueUsername(ctx, f.users, id.Email)
	if err != nil {
		return fmt.Errorf("failed to pick username: %w", err)
	}

	u := store.NewUser(id.SubjectID, username, store.Profile{
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PhotoURL:    id.AvatarURL,
		Provider:    string(id.Provider),
	}, f.now())
	if err := f.users.CreateUserRecord(ctx, u); err != nil {
		return fmt.Errorf("failed to create user record: %w", err)
	}
	return nil
}
