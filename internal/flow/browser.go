package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/auth/oidc"
	"github.com/marcogenualdo/ridegate/internal/cache"
	"github.com/marcogenualdo/ridegate/internal/config"
	"github.com/marcogenualdo/ridegate/pkg/security"
)

// Authorizer is a federated provider as seen by the sign-in flow.
type Authorizer interface {
	Kind() auth.ProviderKind
	Name() string
	NewAuthRequest(state, nonce string) oidc.AuthRequest
	AuthCodeURL(req oidc.AuthRequest) string
	Exchange(ctx context.Context, req oidc.AuthRequest, cb oidc.Callback) (*auth.Identity, error)
}

// Service owns the cross-request sign-in state shared by every page.
type Service struct {
	cfg       config.SignInConfig
	order     []Authorizer
	providers map[auth.ProviderKind]Authorizer
	hub       *Hub
	states    *StateStore
	pending   *Pending
	logger    *slog.Logger
}

func NewService(cfg config.SignInConfig, c cache.Cache, providers []Authorizer, logger *slog.Logger) *Service {
	s := &Service{
		cfg:       cfg,
		order:     providers,
		providers: make(map[auth.ProviderKind]Authorizer, len(providers)),
		hub:       NewHub(c, cfg.PopupTimeout+time.Minute),
		states:    NewStateStore(c, cfg.StateTTL),
		pending:   NewPending(c, cfg.PendingTTL),
		logger:    logger,
	}
	for _, p := range providers {
		s.providers[p.Kind()] = p
	}
	return s
}

// Providers returns the configured federated providers in display order.
func (s *Service) Providers() []Authorizer {
	return s.order
}

func (s *Service) Provider(kind auth.ProviderKind) (Authorizer, bool) {
	p, ok := s.providers[kind]
	return p, ok
}

// ValidAttempt reports whether id looks like an attempt id minted by the
// login page.
func ValidAttempt(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Service) begin(ctx context.Context, kind auth.ProviderKind, mode Mode, device, attempt string) (string, error) {
	p, ok := s.providers[kind]
	if !ok {
		return "", auth.Errorf(auth.ProviderMisconfigured, "auth/operation-not-allowed", "provider %q is not configured", kind)
	}

	state, err := security.GenerateRandomString(32)
	if err != nil {
		return "", auth.NewError(auth.Unknown, "", err)
	}
	nonce, err := security.GenerateRandomString(32)
	if err != nil {
		return "", auth.NewError(auth.Unknown, "", err)
	}

	req := p.NewAuthRequest(state, nonce)
	st := &State{
		State:     req.State,
		Nonce:     req.Nonce,
		Verifier:  req.Verifier,
		Provider:  kind,
		Mode:      mode,
		Attempt:   attempt,
		Device:    device,
		CreatedAt: time.Now(),
	}
	if err := s.states.Save(ctx, st); err != nil {
		return "", auth.NewError(auth.Unknown, "state_unavailable", err)
	}

	return p.AuthCodeURL(req), nil
}

// claim binds attempt to device, mapping a refused claim to a sign-in error.
func (s *Service) claim(ctx context.Context, attempt, device string) error {
	err := s.hub.Claim(ctx, attempt, device)
	if errors.Is(err, ErrForeignAttempt) {
		return auth.NewError(auth.Unknown, "foreign_attempt", err)
	}
	if err != nil {
		return auth.NewError(auth.Unknown, "attempt_unavailable", err)
	}
	return nil
}

// StartPopup records a popup-mode authorization request for attempt and
// returns the provider URL the popup window should load. The attempt must
// belong to device.
func (s *Service) StartPopup(ctx context.Context, kind auth.ProviderKind, device, attempt string) (string, error) {
	if !ValidAttempt(attempt) {
		return "", auth.Errorf(auth.Unknown, "invalid_attempt", "invalid attempt id %q", attempt)
	}
	if err := s.claim(ctx, attempt, device); err != nil {
		return "", err
	}
	return s.begin(ctx, kind, ModePopup, device, attempt)
}

// CancelPopup settles attempt as cancelled, for a popup the user closed.
// A result that already arrived is kept.
func (s *Service) CancelPopup(ctx context.Context, device, attempt string) error {
	return s.FailPopup(ctx, device, attempt, auth.CodeError("auth/popup-closed-by-user", errors.New("popup closed")))
}

// FailPopup settles attempt with err unless a result already arrived. Only
// the device that owns attempt may settle it.
func (s *Service) FailPopup(ctx context.Context, device, attempt string, err error) error {
	if !ValidAttempt(attempt) {
		return fmt.Errorf("invalid attempt id %q", attempt)
	}
	if err := s.hub.Claim(ctx, attempt, device); err != nil {
		return err
	}
	return s.hub.Deliver(ctx, attempt, Failure(err))
}

// CallbackParams is the provider's response as received on the callback URL.
type CallbackParams struct {
	State            string
	Code             string
	User             string
	Error            string
	ErrorDescription string
}

// Complete finishes the authorization request named by params.State on
// device and routes the outcome: popup attempts are settled on the hub,
// redirects are parked for the device's next page load. A state started on
// another device is consumed and fails with ErrForeignState; nothing is
// routed for it. Any other error only reports that the outcome could not be
// routed.
func (s *Service) Complete(ctx context.Context, kind auth.ProviderKind, device string, params CallbackParams) (*State, error) {
	st, err := s.states.Take(ctx, params.State)
	if err != nil {
		return nil, err
	}
	if device == "" || st.Device != device {
		s.logger.Warn("callback from another device",
			"provider", st.Provider,
			"mode", st.Mode,
		)
		return st, ErrForeignState
	}

	outcome := s.exchange(ctx, kind, st, params)
	if outcome.Kind != "" {
		s.logger.Info("provider callback failed",
			"provider", st.Provider,
			"mode", st.Mode,
			"error_kind", outcome.Kind,
			"code", outcome.Code,
		)
	}

	switch st.Mode {
	case ModePopup:
		err = s.hub.Deliver(ctx, st.Attempt, outcome)
	default:
		err = s.pending.Put(ctx, st.Device, outcome)
	}
	if err != nil {
		return st, fmt.Errorf("failed to route %s result: %w", st.Mode, err)
	}
	return st, nil
}

func (s *Service) exchange(ctx context.Context, kind auth.ProviderKind, st *State, params CallbackParams) Outcome {
	if kind != st.Provider {
		return Failure(auth.Errorf(auth.Unknown, "provider_mismatch", "callback for %s carried a %s state", kind, st.Provider))
	}

	if params.Error != "" {
		desc := params.ErrorDescription
		if desc == "" {
			desc = params.Error
		}
		return Failure(auth.CodeError(params.Error, errors.New(desc)))
	}

	p, ok := s.providers[st.Provider]
	if !ok {
		return Failure(auth.Errorf(auth.ProviderMisconfigured, "auth/operation-not-allowed", "provider %q is not configured", st.Provider))
	}

	id, err := p.Exchange(ctx, st.AuthRequest(), oidc.Callback{Code: params.Code, User: params.User})
	if err != nil {
		return Failure(err)
	}
	return Outcome{Identity: id}
}

// HasPending reports whether a redirect result is waiting for device.
func (s *Service) HasPending(ctx context.Context, device string) bool {
	ok, err := s.pending.Exists(ctx, device)
	if err != nil {
		s.logger.Warn("failed to check pending redirect", "error", err)
		return false
	}
	return ok
}

// PageReport is what the login page tells the gateway about its popup when
// starting an attempt.
type PageReport struct {
	// Attempt is the id of the popup window the page opened. It is empty
	// when the page could not open one.
	Attempt      string
	PopupBlocked bool
}

// Browser is the identity provider for one request on one device.
type Browser struct {
	svc         *Service
	device      string
	subject     string
	page        PageReport
	redirectURL string
}

func (s *Service) Browser(device, subject string, page PageReport) *Browser {
	return &Browser{svc: s, device: device, subject: subject, page: page}
}

// RedirectURL is where the page must navigate after a successful
// BeginRedirectSignIn.
func (b *Browser) RedirectURL() string {
	return b.redirectURL
}

func (b *Browser) BeginPopupSignIn(ctx context.Context, kind auth.ProviderKind) (*auth.Identity, error) {
	if b.page.PopupBlocked || b.page.Attempt == "" {
		return nil, auth.CodeError("auth/popup-blocked", errors.New("sign-in window could not be opened"))
	}
	if !ValidAttempt(b.page.Attempt) {
		return nil, auth.Errorf(auth.Unknown, "invalid_attempt", "invalid attempt id %q", b.page.Attempt)
	}
	if _, ok := b.svc.providers[kind]; !ok {
		return nil, auth.Errorf(auth.ProviderMisconfigured, "auth/operation-not-allowed", "provider %q is not configured", kind)
	}
	if err := b.svc.claim(ctx, b.page.Attempt, b.device); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.svc.cfg.PopupTimeout)
	defer cancel()

	outcome, err := b.svc.hub.Wait(ctx, b.page.Attempt)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return nil, auth.NewError(auth.UserCancelled, "popup_timeout", err)
	case errors.Is(err, context.Canceled):
		return nil, auth.NewError(auth.UserCancelled, "auth/cancelled-popup-request", err)
	case err != nil:
		return nil, auth.NewError(auth.Unknown, "", err)
	}

	if err := outcome.Err(); err != nil {
		return nil, err
	}
	if outcome.Identity == nil || outcome.Identity.Provider != kind {
		return nil, auth.Errorf(auth.Unknown, "provider_mismatch", "popup returned no %s identity", kind)
	}
	return outcome.Identity, nil
}

func (b *Browser) BeginRedirectSignIn(ctx context.Context, kind auth.ProviderKind) error {
	u, err := b.svc.begin(ctx, kind, ModeRedirect, b.device, "")
	if err != nil {
		return err
	}
	b.redirectURL = u
	return nil
}

func (b *Browser) QueryPendingRedirectResult(ctx context.Context) (*auth.Identity, error) {
	o, err := b.svc.pending.Take(ctx, b.device)
	if err != nil {
		return nil, auth.NewError(auth.NetworkFailure, "pending_unavailable", err)
	}
	if o == nil {
		return nil, nil
	}
	if err := o.Err(); err != nil {
		return nil, err
	}
	return o.Identity, nil
}

func (b *Browser) CurrentSubjectID() string {
	return b.subject
}
