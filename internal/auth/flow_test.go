package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/marcogenualdo/ridegate/internal/diag"
	"github.com/marcogenualdo/ridegate/internal/envdetect"
	"github.com/marcogenualdo/ridegate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	desktopChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	androidWV     = "Mozilla/5.0 (Linux; Android 13; SM-S911B Build/TP1A.220624.014; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/119.0.6045.163 Mobile Safari/537.36"
)

type fakeIDP struct {
	popupID     *Identity
	popupErr    error
	redirectErr error
	pending     *Identity
	pendingErr  error
	onPopup     func()
	subject     string

	popupCalls    int
	redirectCalls int
	queryCalls    int
}

func (p *fakeIDP) BeginPopupSignIn(ctx context.Context, kind ProviderKind) (*Identity, error) {
	p.popupCalls++
	if p.onPopup != nil {
		p.onPopup()
	}
	return p.popupID, p.popupErr
}

func (p *fakeIDP) BeginRedirectSignIn(ctx context.Context, kind ProviderKind) error {
	p.redirectCalls++
	return p.redirectErr
}

func (p *fakeIDP) QueryPendingRedirectResult(ctx context.Context) (*Identity, error) {
	p.queryCalls++
	id := p.pending
	p.pending = nil
	return id, p.pendingErr
}

func (p *fakeIDP) CurrentSubjectID() string { return p.subject }

type countingStore struct {
	*store.MemoryStore
	readErr   error
	createErr error

	reads, creates, touches int
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *countingStore) calls() int { return s.reads + s.creates + s.touches }

func (s *countingStore) ReadUserRecord(ctx context.Context, id string) (*store.User, error) {
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.MemoryStore.ReadUserRecord(ctx, id)
}

func (s *countingStore) CreateUserRecord(ctx context.Context, u *store.User) error {
	s.creates++
	if s.createErr != nil {
		return s.createErr
	}
	return s.MemoryStore.CreateUserRecord(ctx, u)
}

func (s *countingStore) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	s.touches++
	return s.MemoryStore.TouchLastSeen(ctx, id, at)
}

type fakeSessions struct {
	err   error
	saved []*Session
}

func (f *fakeSessions) Establish(ctx context.Context, s *Session) error {
	if f.err != nil {
		return f.err
	}
	s.ID = "sess-1"
	f.saved = append(f.saved, s)
	return nil
}

type fakeControl struct {
	mu       sync.Mutex
	disabled bool
	enables  int
}

func (c *fakeControl) TryDisable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return false
	}
	c.disabled = true
	return true
}

func (c *fakeControl) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = false
	c.enables++
}

type memRecorder struct{ entries []diag.Entry }

func (r *memRecorder) Record(_ context.Context, e diag.Entry) { r.entries = append(r.entries, e) }

func (r *memRecorder) events() []string {
	var out []string
	for _, e := range r.entries {
		out = append(out, e.Event)
	}
	return out
}

type harness struct {
	idp      *fakeIDP
	users    *countingStore
	sessions *fakeSessions
	recorder *memRecorder
	flow     *Flow
}

func newHarness(ua string) *harness {
	h := &harness{
		idp:      &fakeIDP{},
		users:    newCountingStore(),
		sessions: &fakeSessions{},
		recorder: &memRecorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.flow = NewFlow(envdetect.Static{UA: ua}, h.idp, h.users, h.sessions, h.recorder, logger)
	return h
}

var rider = &Identity{
	SubjectID:   "google-123",
	DisplayName: "Road Rider",
	Email:       "road.rider@example.com",
	Provider:    Google,
}

func TestSelectStrategy(t *testing.T) {
	for _, cat := range envdetect.Categories {
		c := SelectStrategy(envdetect.Signature{Category: cat}, Google)
		assert.Equal(t, cat == envdetect.PlainBrowser, c.CanUsePopup, cat)
		assert.True(t, c.CanUseRedirect, cat)
		if c.CanUsePopup {
			assert.Equal(t, StrategyPopup, c.Recommended)
		} else {
			assert.Equal(t, StrategyRedirect, c.Recommended)
		}
	}
}

func TestStrategyScenarios(t *testing.T) {
	android := envdetect.Classify(envdetect.Static{UA: androidWV})
	assert.Equal(t, StrategyRedirect, SelectStrategy(android, Google).Recommended)

	desktop := envdetect.Classify(envdetect.Static{UA: desktopChrome})
	assert.Equal(t, StrategyPopup, SelectStrategy(desktop, Google).Recommended)

	standalone := envdetect.Classify(envdetect.Static{UA: desktopChrome, Display: "standalone"})
	assert.Equal(t, StrategyRedirect, SelectStrategy(standalone, Apple).Recommended)
}

func TestAttemptPopupSuccess(t *testing.T) {
	h := newHarness(desktopChrome)
	h.idp.popupID = rider
	ctl := &fakeControl{}

	res, err := h.flow.AttemptSignIn(context.Background(), Google, ctl)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Redirecting)
	assert.Equal(t, StrategyPopup, res.Strategy)
	require.NotNil(t, res.Session)
	assert.Equal(t, "google-123", res.Session.SubjectID)
	assert.Empty(t, res.Warning)
	assert.Equal(t, 0, h.idp.redirectCalls)
	assert.False(t, ctl.disabled)
	assert.Len(t, h.sessions.saved, 1)
	assert.Equal(t, []string{diag.EventClassified, diag.EventStrategy, diag.EventSignedIn}, h.recorder.events())
}

func TestAttemptPopupBlockedFallsBackOnce(t *testing.T) {
	h := newHarness(desktopChrome)
	h.idp.popupErr = CodeError("auth/popup-blocked", nil)
	h.idp.redirectErr = nil
	ctl := &fakeControl{}

	res, err := h.flow.AttemptSignIn(context.Background(), Google, ctl)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Redirecting)
	assert.Nil(t, res.Session)
	assert.Equal(t, 1, h.idp.popupCalls)
	assert.Equal(t, 1, h.idp.redirectCalls)
	assert.True(t, ctl.disabled, "control stays disabled while navigating away")
	assert.Equal(t, 0, ctl.enables)
}

func TestAttemptPopupBlockedRedirectFailsIsNotRetried(t *testing.T) {
	h := newHarness(desktopChrome)
	h.idp.popupErr = NewError(PopupBlocked, "", nil)
	h.idp.redirectErr = NewError(PopupBlocked, "", nil)
	ctl := &fakeControl{}

	res, err := h.flow.AttemptSignIn(context.Background(), Google, ctl)
	assert.Nil(t, res)
	assert.Equal(t, PopupBlocked, KindOf(err))
	assert.Equal(t, 1, h.idp.popupCalls)
	assert.Equal(t, 1, h.idp.redirectCalls)
	assert.False(t, ctl.disabled)
}

func TestAttemptOtherPopupErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"closed by user", CodeError("auth/popup-closed-by-user", nil), UserCancelled},
		{"network", CodeError("auth/network-request-failed", nil), NetworkFailure},
		{"misconfigured", CodeError("invalid_client", nil), ProviderMisconfigured},
		{"deadline", context.DeadlineExceeded, NetworkFailure},
		{"opaque", errors.New("boom"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(desktopChrome)
			h.idp.popupErr = tt.err

			res, err := h.flow.AttemptSignIn(context.Background(), Apple, &fakeControl{})
			assert.Nil(t, res)
			assert.Equal(t, tt.want, KindOf(err))
			assert.Equal(t, 0, h.idp.redirectCalls)
			assert.Equal(t, 0, h.users.calls())
		})
	}
}

func TestAttemptCancellationIsNotRecordedAsFailure(t *testing.T) {
	h := newHarness(desktopChrome)
	h.idp.popupErr = NewError(UserCancelled, "popup_closed", nil)

	_, err := h.flow.AttemptSignIn(context.Background(), Google, nil)
	require.Error(t, err)
	assert.NotContains(t, h.recorder.events(), diag.EventAttemptFailed)
}

func TestAttemptWrapperGoesStraightToRedirect(t *testing.T) {
	h := newHarness(androidWV)

	res, err := h.flow.AttemptSignIn(context.Background(), Google, &fakeControl{})
	require.NoError(t, err)

	assert.True(t, res.Redirecting)
	assert.Equal(t, StrategyRedirect, res.Strategy)
	assert.Equal(t, 0, h.idp.popupCalls)
	assert.Equal(t, 1, h.idp.redirectCalls)
}

func TestAttemptRedirectRejected(t *testing.T) {
	h := newHarness(androidWV)
	h.idp.redirectErr = CodeError("auth/operation-not-supported-in-this-environment", nil)
	ctl := &fakeControl{}

	_, err := h.flow.AttemptSignIn(context.Background(), Google, ctl)
	assert.Equal(t, EnvironmentUnsupported, KindOf(err))
	assert.False(t, ctl.disabled)
	assert.Contains(t, h.recorder.events(), diag.EventAttemptFailed)
}

func TestAttemptDoubleClick(t *testing.T) {
	h := newHarness(desktopChrome)
	h.idp.popupID = rider
	ctl := &fakeControl{}

	var second error
	h.idp.onPopup = func() {
		_, second = h.flow.AttemptSignIn(context.Background(), Google, ctl)
	}

	res, err := h.flow.AttemptSignIn(context.Background(), Google, ctl)
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.ErrorIs(t, second, ErrAttemptInFlight)
	assert.Equal(t, 1, h.idp.popupCalls)
	assert.Equal(t, 1, ctl.enables)
}

func TestAttemptRejectsNonFederatedKinds(t *testing.T) {
	h := newHarness(desktopChrome)
	ctl := &fakeControl{}

	_, err := h.flow.AttemptSignIn(context.Background(), Phone, ctl)
	assert.Equal(t, ProviderMisconfigured, KindOf(err))
	assert.False(t, ctl.disabled)
	assert.Equal(t, 0, h.idp.popupCalls)
}

func TestCompletePendingRedirectNoop(t *testing.T) {
	h := newHarness(androidWV)

	res, err := h.flow.CompletePendingRedirectOnLoad(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, h.idp.queryCalls)
	assert.Equal(t, 0, h.users.calls())
	assert.Empty(t, h.sessions.saved)
}

func TestCompletePendingRedirectCreatesRecord(t *testing.T) {
	h := newHarness(androidWV)
	h.idp.pending = rider

	res, err := h.flow.CompletePendingRedirectOnLoad(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Success)
	assert.Empty(t, res.Warning)
	require.NotNil(t, res.Session)
	assert.Equal(t, "Road Rider", res.Session.DisplayName)
	assert.Equal(t, 1, h.users.creates)
	assert.Equal(t, 0, h.users.touches)

	u, err := h.users.MemoryStore.ReadUserRecord(context.Background(), "google-123")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "roadrider", u.Username)
	assert.Equal(t, "google", u.Provider)

	again, err := h.flow.CompletePendingRedirectOnLoad(context.Background())
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestCompletePendingRedirectExistingUserOnlyTouches(t *testing.T) {
	h := newHarness(androidWV)
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	existing := store.NewUser("google-123", "roadie", store.Profile{DisplayName: "Old Name"}, created)
	existing.Bio = "weekend climbs"
	require.NoError(t, h.users.MemoryStore.CreateUserRecord(context.Background(), existing))
	h.idp.pending = rider

	res, err := h.flow.CompletePendingRedirectOnLoad(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	assert.Equal(t, 0, h.users.creates)
	assert.Equal(t, 1, h.users.touches)

	u, err := h.users.MemoryStore.ReadUserRecord(context.Background(), "google-123")
	require.NoError(t, err)
	assert.Equal(t, "Old Name", u.DisplayName)
	assert.Equal(t, "weekend climbs", u.Bio)
	assert.True(t, u.LastActive.After(created))
}

func TestCompletePendingRedirectDegradesOnStoreFailure(t *testing.T) {
	h := newHarness(androidWV)
	h.idp.pending = rider
	h.users.createErr = errors.New("network unreachable")

	res, err := h.flow.CompletePendingRedirectOnLoad(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Success)
	assert.Equal(t, WarningProfileIncomplete, res.Warning)
	require.NotNil(t, res.Session)
	assert.Equal(t, 1, h.users.creates)
	assert.Len(t, h.sessions.saved, 1)
	assert.Contains(t, h.recorder.events(), diag.EventProfileSyncFailed)
}

func TestCompleteSignInDegradesOnSessionFailure(t *testing.T) {
	h := newHarness(desktopChrome)
	h.sessions.err = errors.New("cache down")

	res := h.flow.CompleteSignIn(context.Background(), rider)
	assert.True(t, res.Success)
	assert.Equal(t, WarningSessionNotSaved, res.Warning)
	assert.NotNil(t, res.Session)
}

func TestCompleteSignInRecordsAccountSwitch(t *testing.T) {
	h := newHarness(desktopChrome)
	h.idp.subject = "apple-456"

	res := h.flow.CompleteSignIn(context.Background(), rider)
	assert.True(t, res.Success)
	assert.Contains(t, h.recorder.events(), diag.EventAccountSwitched)

	h = newHarness(desktopChrome)
	h.idp.subject = rider.SubjectID
	h.flow.CompleteSignIn(context.Background(), rider)
	assert.NotContains(t, h.recorder.events(), diag.EventAccountSwitched)
}

func TestCompletePendingRedirectQueryFailure(t *testing.T) {
	h := newHarness(androidWV)
	h.idp.pendingErr = CodeError("invalid_client", nil)

	res, err := h.flow.CompletePendingRedirectOnLoad(context.Background())
	assert.Nil(t, res)
	assert.Equal(t, ProviderMisconfigured, KindOf(err))
	assert.Equal(t, 0, h.users.calls())
}

func TestEnvironmentSummary(t *testing.T) {
	assert.Equal(t, "Android WebView", newHarness(androidWV).flow.EnvironmentSummary())
	assert.Equal(t, "Desktop/Mobile Browser", newHarness(desktopChrome).flow.EnvironmentSummary())
}
