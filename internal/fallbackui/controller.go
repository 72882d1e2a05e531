// Package fallbackui decides what the login page shows for an environment:
// which provider buttons are usable, which single notice is displayed and
// whether the email/phone alternatives are brought forward.
package fallbackui

import (
	"fmt"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/envdetect"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Notice struct {
	Level   Level
	Title   string
	Message string
	Hint    string
}

// Surface is the rendered login page.
type Surface interface {
	SetProviderEnabled(kind auth.ProviderKind, enabled bool)
	ClearNotices()
	InsertNotice(n Notice)
	EmphasizeFallback(on bool)
	// OfferExternalBrowser shows a link to url; an empty url removes it.
	OfferExternalBrowser(url string)
}

// federated are the buttons whose availability depends on the environment.
var federated = []auth.ProviderKind{auth.Google, auth.Apple}

// Setup configures s for the environment. It resets whatever an earlier
// Setup or ShowError left behind, so the page reflects only c and carries a
// single notice.
func Setup(s Surface, sig envdetect.Signature, c auth.Capability, pageURL string) {
	s.ClearNotices()
	s.EmphasizeFallback(false)
	s.OfferExternalBrowser("")

	switch {
	case c.CanUsePopup:
		for _, kind := range federated {
			s.SetProviderEnabled(kind, true)
		}

	case c.CanUseRedirect:
		for _, kind := range federated {
			s.SetProviderEnabled(kind, true)
		}
		s.InsertNotice(Notice{
			Level:   LevelInfo,
			Message: "Signing in with Google or Apple will briefly leave the app and bring you back when you're done.",
		})

	default:
		for _, kind := range federated {
			s.SetProviderEnabled(kind, false)
		}
		s.InsertNotice(Notice{
			Level:   LevelWarning,
			Title:   "Google and Apple Sign-In are unavailable",
			Message: fmt.Sprintf("They can't run inside %s. Use Email or Phone Sign-In instead.", envdetect.Summary(sig)),
			Hint:    "You can also open this page in your device's browser.",
		})
		s.EmphasizeFallback(true)
		s.OfferExternalBrowser(envdetect.ExternalBrowserURL(sig, pageURL))
	}
}

// ShowError replaces any notice with the one message for a failed attempt.
func ShowError(s Surface, sig envdetect.Signature, kind auth.ErrorKind, code, pageURL string) {
	s.ClearNotices()

	n := Notice{
		Level:   LevelError,
		Message: auth.UserMessage(kind, code),
	}

	switch kind {
	case auth.UserCancelled:
		n.Level = LevelInfo
	case auth.PopupBlocked:
		n.Hint = "Look for a blocked-popup icon in the address bar."
	case auth.EnvironmentUnsupported:
		n.Title = "Not available in " + envdetect.Summary(sig)
		s.EmphasizeFallback(true)
		s.OfferExternalBrowser(envdetect.ExternalBrowserURL(sig, pageURL))
	case auth.NetworkFailure, auth.Unknown:
		if sig.Category.IsWrapper() {
			n.Hint = "If this keeps happening, open this page in your device's browser or use Email/Phone Sign-In."
			s.OfferExternalBrowser(envdetect.ExternalBrowserURL(sig, pageURL))
		}
	}

	s.InsertNotice(n)
}
