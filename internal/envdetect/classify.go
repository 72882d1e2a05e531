package envdetect

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Category is the single environment bucket a page context falls into.
type Category string

const (
	PlainBrowser     Category = "plain-browser"
	AndroidWebView   Category = "android-webview"
	IOSWebView       Category = "ios-webview"
	CordovaCapacitor Category = "cordova-capacitor"
	MedianWrapper    Category = "median-wrapper"
	WebViewGold      Category = "webviewgold-wrapper"
	UnknownWrapper   Category = "unknown-wrapper"
)

// Categories lists every category in classification order.
var Categories = []Category{
	AndroidWebView,
	IOSWebView,
	CordovaCapacitor,
	MedianWrapper,
	WebViewGold,
	UnknownWrapper,
	PlainBrowser,
}

// IsWrapper reports whether c is anything other than a plain browser.
func (c Category) IsWrapper() bool {
	return c != PlainBrowser
}

// Signal names recorded in Signature.Signals.
const (
	SignalAndroidUA         = "ua.android-webview"
	SignalIOSUA             = "ua.ios-webview"
	SignalCordovaUA         = "ua.cordova"
	SignalMedianUA          = "ua.median"
	SignalWebViewGoldUA     = "ua.webviewgold"
	SignalCordovaGlobal     = "window.cordova"
	SignalWebKitHandlers    = "window.webkit.messageHandlers"
	SignalUIWebView         = "window.uiwebview"
	SignalMedianGlobal      = "window.median"
	SignalWrapperGlobal     = "window.wrapper-bridge"
	SignalIOSStandalone     = "feature.ios-standalone"
	SignalDisplayStandalone = "feature.display-standalone"
	SignalTWAReferrer       = "feature.twa-referrer"
)

const maxUserAgent = 200

// Signature is the result of one classification. It is a value; nothing in
// it survives a page reload.
type Signature struct {
	Category     Category `json:"category"`
	RawUserAgent string   `json:"user_agent,omitempty"`
	Signals      []string `json:"signals,omitempty"`
}

// Matched reports whether the named signal fired.
func (s Signature) Matched(signal string) bool {
	return slices.Contains(s.Signals, signal)
}

var (
	reWVMarker        = regexp.MustCompile(`;\s*wv\s*\)|wv\)`)
	reChromeToken     = regexp.MustCompile(`chrome/[\d.]+`)
	reLegacyWebView   = regexp.MustCompile(`version/[\d.]+\s+webview`)
	reIOSDevice       = regexp.MustCompile(`iphone|ipad|ipod`)
	reIOSEngine       = regexp.MustCompile(`applewebkit|wkwebview|uiwebview`)
	reHybridFramework = regexp.MustCompile(`cordova|capacitor|phonegap`)
)

// Classify evaluates the probe. Rules are ordered and the first match wins;
// a Median app on Android matches both the Android rule and the Median rule
// and lands in android-webview.
func Classify(p Probe) Signature {
	rawUA, ok := p.UserAgent()
	if !ok {
		return Signature{Category: PlainBrowser}
	}

	ua := strings.ToLower(rawUA)
	sig := Signature{RawUserAgent: truncate(rawUA, maxUserAgent)}
	signals := make(map[string]bool)
	mark := func(name string, fired bool) bool {
		if fired {
			signals[name] = true
		}
		return fired
	}

	androidUA := mark(SignalAndroidUA, isAndroidWebView(ua))
	iosUA := mark(SignalIOSUA, isIOSWebView(ua))
	webkitBridge := mark(SignalWebKitHandlers, p.HasGlobal(GlobalWebKitHandlers))
	uiWebView := mark(SignalUIWebView, p.HasGlobal(GlobalUIWebView))
	cordovaUA := mark(SignalCordovaUA, reHybridFramework.MatchString(ua))
	cordovaGlobal := mark(SignalCordovaGlobal, p.HasGlobal(GlobalCordova) || p.HasGlobal(GlobalCapacitor))
	medianUA := mark(SignalMedianUA, strings.Contains(ua, "median"))
	medianGlobal := mark(SignalMedianGlobal, p.HasGlobal(GlobalMedian) || p.HasGlobal(GlobalMedianLegacy))
	goldUA := mark(SignalWebViewGoldUA, strings.Contains(ua, "webviewgold"))
	wrapperGlobal := mark(SignalWrapperGlobal, p.HasGlobal(GlobalInAppWebView) ||
		p.HasGlobal(GlobalWrapper) ||
		p.HasGlobal(GlobalWebView) ||
		p.HasGlobal(GlobalExternalNotify))
	iosStandalone := mark(SignalIOSStandalone, p.IOSStandalone())
	displayStandalone := mark(SignalDisplayStandalone, isStandaloneDisplay(p.DisplayMode()))
	twa := mark(SignalTWAReferrer, strings.HasPrefix(p.Referrer(), trustedWebActivityHint))

	switch {
	case androidUA:
		sig.Category = AndroidWebView
	case iosUA || webkitBridge || uiWebView:
		sig.Category = IOSWebView
	case cordovaUA || cordovaGlobal:
		sig.Category = CordovaCapacitor
	case medianUA || medianGlobal:
		sig.Category = MedianWrapper
	case goldUA:
		sig.Category = WebViewGold
	case wrapperGlobal:
		sig.Category = UnknownWrapper
	case iosStandalone:
		sig.Category = IOSWebView
	case displayStandalone || twa:
		sig.Category = UnknownWrapper
	default:
		sig.Category = PlainBrowser
	}

	for name := range signals {
		sig.Signals = append(sig.Signals, name)
	}
	slices.Sort(sig.Signals)

	return sig
}

func isAndroidWebView(ua string) bool {
	if !strings.Contains(ua, "android") {
		return false
	}
	return reWVMarker.MatchString(ua) ||
		(strings.Contains(ua, "webkit") && !reChromeToken.MatchString(ua)) ||
		reLegacyWebView.MatchString(ua) ||
		strings.Contains(ua, "webview")
}

func isIOSWebView(ua string) bool {
	if !reIOSDevice.MatchString(ua) {
		return false
	}
	if strings.Contains(ua, "safari") && !strings.Contains(ua, "webview") {
		return false
	}
	return reIOSEngine.MatchString(ua)
}

func isStandaloneDisplay(mode string) bool {
	mode = strings.ToLower(strings.TrimSpace(mode))
	return mode == DisplayModeStandalone || mode == DisplayModeFullscreen
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
