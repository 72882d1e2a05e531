package auth

import "github.com/marcogenualdo/ridegate/internal/envdetect"

type Strategy string

const (
	StrategyPopup    Strategy = "popup"
	StrategyRedirect Strategy = "redirect"
)

// Capability is what the current page context can do for a federated
// sign-in. It is recomputed on every query.
type Capability struct {
	CanUsePopup    bool     `json:"can_use_popup"`
	CanUseRedirect bool     `json:"can_use_redirect"`
	Recommended    Strategy `json:"recommended"`
}

// SelectStrategy maps a classification to a capability. Only a plain browser
// may open popups. Redirect is assumed to work everywhere, unknown wrappers
// included; a wrapper that rejects the navigation surfaces
// EnvironmentUnsupported instead of having sign-in hidden up front.
func SelectStrategy(sig envdetect.Signature, _ ProviderKind) Capability {
	c := Capability{
		CanUsePopup:    sig.Category == envdetect.PlainBrowser,
		CanUseRedirect: canOpenExternalBrowser(sig.Category),
	}
	if c.CanUsePopup {
		c.Recommended = StrategyPopup
	} else {
		c.Recommended = StrategyRedirect
	}
	return c
}

func canOpenExternalBrowser(envdetect.Category) bool {
	return true
}
