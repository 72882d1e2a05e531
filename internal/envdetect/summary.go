package envdetect

import (
	"net/url"
	"strings"
)

// Summary is a short human-readable label for diagnostics and messages.
func Summary(sig Signature) string {
	switch sig.Category {
	case PlainBrowser:
		return "Desktop/Mobile Browser"
	case AndroidWebView:
		return "Android WebView"
	case IOSWebView:
		if sig.Matched(SignalIOSStandalone) && !sig.Matched(SignalIOSUA) &&
			!sig.Matched(SignalWebKitHandlers) && !sig.Matched(SignalUIWebView) {
			return "iOS Home Screen App"
		}
		return "iOS WebView"
	case CordovaCapacitor:
		return "Cordova/Capacitor App"
	case MedianWrapper:
		return "Median.co Wrapper"
	case WebViewGold:
		return "WebViewGold Wrapper"
	default:
		if !sig.Matched(SignalWrapperGlobal) &&
			(sig.Matched(SignalDisplayStandalone) || sig.Matched(SignalTWAReferrer)) {
			return "Installed Web App"
		}
		return "Unknown Wrapper"
	}
}

// ExternalBrowserURL returns a link that asks the device to reopen pageURL in
// its default browser. Android WebViews honour intent:// URLs; elsewhere the
// page URL itself is opened with a "_system" target.
func ExternalBrowserURL(sig Signature, pageURL string) string {
	if sig.Category != AndroidWebView {
		return pageURL
	}

	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return pageURL
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}

	var b strings.Builder
	b.WriteString("intent://")
	b.WriteString(u.Host)
	b.WriteString(u.EscapedPath())
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	b.WriteString("#Intent;scheme=")
	b.WriteString(scheme)
	b.WriteString(";end")
	return b.String()
}
