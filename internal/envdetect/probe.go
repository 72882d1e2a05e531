// Package envdetect classifies the runtime a sign-in page is running in: a
// plain browser, a raw Android or iOS WebView, or one of the app wrappers the
// ride client ships inside.
//
// The classifier never reads ambient state directly. Everything it needs comes
// through a Probe, so the same rules run against an incoming HTTP request, a
// recorded fixture, or a test table.
package envdetect

// Probe exposes the ambient signals of one page context.
type Probe interface {
	// UserAgent returns the navigator user-agent. ok is false when there is no
	// navigator at all (non-browser execution).
	UserAgent() (ua string, ok bool)

	// HasGlobal reports whether the host injected the named window global.
	// Dotted names address nested members, e.g. "webkit.messageHandlers".
	HasGlobal(name string) bool

	// DisplayMode is the matched display-mode media feature: "browser",
	// "standalone", "fullscreen", "minimal-ui" or "" when unknown.
	DisplayMode() string

	// IOSStandalone is navigator.standalone on iOS home-screen launches.
	IOSStandalone() bool

	// Referrer is document.referrer.
	Referrer() string
}

// Well-known host globals.
const (
	GlobalCordova          = "cordova"
	GlobalCapacitor        = "Capacitor"
	GlobalWebKitHandlers   = "webkit.messageHandlers"
	GlobalUIWebView        = "documentElement._uiwebview"
	GlobalMedian           = "median"
	GlobalMedianLegacy     = "__MEDIAN__"
	GlobalInAppWebView     = "_isInAppWebView"
	GlobalWrapper          = "__wrapper__"
	GlobalWebView          = "__WEBVIEW__"
	GlobalExternalNotify   = "external.notify"
	DisplayModeStandalone  = "standalone"
	DisplayModeFullscreen  = "fullscreen"
	trustedWebActivityHint = "android-app://"
)

// KnownGlobals lists every global the page script is expected to probe for.
var KnownGlobals = []string{
	GlobalCordova,
	GlobalCapacitor,
	GlobalWebKitHandlers,
	GlobalUIWebView,
	GlobalMedian,
	GlobalMedianLegacy,
	GlobalInAppWebView,
	GlobalWrapper,
	GlobalWebView,
	GlobalExternalNotify,
}

// Static is a fixed Probe.
type Static struct {
	UA          string
	NoNavigator bool
	Globals     []string
	Display     string
	Standalone  bool
	Referer     string
}

var _ Probe = Static{}

func (s Static) UserAgent() (string, bool) {
	if s.NoNavigator {
		return "", false
	}
	return s.UA, true
}

func (s Static) HasGlobal(name string) bool {
	for _, g := range s.Globals {
		if g == name {
			return true
		}
	}
	return false
}

func (s Static) DisplayMode() string { return s.Display }

func (s Static) IOSStandalone() bool { return s.Standalone }

func (s Static) Referrer() string { return s.Referer }
