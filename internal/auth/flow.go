package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/marcogenualdo/ridegate/internal/diag"
	"github.com/marcogenualdo/ridegate/internal/envdetect"
	"github.com/marcogenualdo/ridegate/internal/store"
)

// Flow runs sign-in for one page context. It is the only place that decides
// between popup and redirect and the only place allowed to retry.
type Flow struct {
	probe    envdetect.Probe
	idp      IdentityProvider
	users    store.UserStore
	sessions SessionWriter
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewFlow(probe envdetect.Probe, idp IdentityProvider, users store.UserStore, sessions SessionWriter, recorder Recorder, logger *slog.Logger) *Flow {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Flow{
		probe:    probe,
		idp:      idp,
		users:    users,
		sessions: sessions,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// AttemptResult is the settled outcome of a successful attempt. When
// Redirecting is set the page is navigating away and Session is nil.
type AttemptResult struct {
	Success     bool     `json:"success"`
	Redirecting bool     `json:"redirecting,omitempty"`
	Strategy    Strategy `json:"strategy"`
	Session     *Session `json:"session,omitempty"`
	Warning     string   `json:"warning,omitempty"`
}

// Environment classifies the page context and returns its capability.
func (f *Flow) Environment(kind ProviderKind) (envdetect.Signature, Capability) {
	sig := envdetect.Classify(f.probe)
	return sig, SelectStrategy(sig, kind)
}

func (f *Flow) EnvironmentSummary() string {
	return envdetect.Summary(envdetect.Classify(f.probe))
}

// AttemptSignIn is the sign-in button's handler. A blocked popup falls back
// to the redirect flow once; every other failure is returned as an *Error.
// ctl stays disabled while the attempt is in flight and after a redirect has
// been initiated.
func (f *Flow) AttemptSignIn(ctx context.Context, kind ProviderKind, ctl Control) (*AttemptResult, error) {
	if !kind.Federated() {
		return nil, Errorf(ProviderMisconfigured, "auth/operation-not-allowed", "%s does not sign in through a provider flow", kind)
	}
	if ctl != nil && !ctl.TryDisable() {
		return nil, ErrAttemptInFlight
	}

	navigating := false
	defer func() {
		if ctl != nil && !navigating {
			ctl.Enable()
		}
	}()

	sig, capability := f.Environment(kind)
	f.recorder.Record(ctx, diag.Entry{
		Event:     diag.EventClassified,
		Category:  string(sig.Category),
		Summary:   envdetect.Summary(sig),
		UserAgent: sig.RawUserAgent,
		Signals:   sig.Signals,
	})
	f.recorder.Record(ctx, diag.Entry{
		Event:    diag.EventStrategy,
		Category: string(sig.Category),
		Provider: string(kind),
		Strategy: string(capability.Recommended),
	})
	f.logger.Info("sign-in attempt",
		"provider", kind,
		"category", sig.Category,
		"strategy", capability.Recommended,
	)

	if capability.Recommended == StrategyPopup {
		id, err := f.idp.BeginPopupSignIn(ctx, kind)
		if err == nil {
			res := f.CompleteSignIn(ctx, id)
			return &AttemptResult{
				Success:  true,
				Strategy: StrategyPopup,
				Session:  res.Session,
				Warning:  res.Warning,
			}, nil
		}
		if KindOf(err) != PopupBlocked {
			return nil, f.fail(ctx, sig, kind, StrategyPopup, err)
		}

		f.recorder.Record(ctx, diag.Entry{
			Event:     diag.EventPopupFallback,
			Category:  string(sig.Category),
			Provider:  string(kind),
			Strategy:  string(StrategyRedirect),
			ErrorKind: string(PopupBlocked),
			Code:      CodeOf(err),
		})
		f.logger.Info("popup blocked, falling back to redirect", "provider", kind)
	}

	if !capability.CanUseRedirect {
		return nil, f.fail(ctx, sig, kind, StrategyRedirect,
			NewError(EnvironmentUnsupported, "", errors.New("no sign-in flow available in "+envdetect.Summary(sig))))
	}

	if err := f.idp.BeginRedirectSignIn(ctx, kind); err != nil {
		return nil, f.fail(ctx, sig, kind, StrategyRedirect, err)
	}

	navigating = true
	f.recorder.Record(ctx, diag.Entry{
		Event:    diag.EventRedirectStarted,
		Category: string(sig.Category),
		Provider: string(kind),
		Strategy: string(StrategyRedirect),
	})

	return &AttemptResult{Success: true, Redirecting: true, Strategy: StrategyRedirect}, nil
}

func (f *Flow) fail(ctx context.Context, sig envdetect.Signature, kind ProviderKind, strategy Strategy, err error) *Error {
	authErr := AsError(err)

	if authErr.Kind == UserCancelled {
		f.logger.Info("sign-in cancelled", "provider", kind, "strategy", strategy)
		return authErr
	}

	f.logger.Error("sign-in failed",
		"provider", kind,
		"category", sig.Category,
		"strategy", strategy,
		"error_kind", authErr.Kind,
		"code", authErr.Code,
		"error", err,
	)
	f.recorder.Record(ctx, diag.Entry{
		Event:     diag.EventAttemptFailed,
		Category:  string(sig.Category),
		Summary:   envdetect.Summary(sig),
		Provider:  string(kind),
		Strategy:  string(strategy),
		ErrorKind: string(authErr.Kind),
		Code:      authErr.Code,
		Message:   err.Error(),
		UserAgent: sig.RawUserAgent,
	})
	return authErr
}
