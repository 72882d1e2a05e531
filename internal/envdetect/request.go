package envdetect

import (
	"net/http"
	"net/url"
	"strings"
)

// EnvHeader carries the page-reported signals on XHR requests. The same
// encoding is stored in the env cookie so full page loads see it too.
const EnvHeader = "X-Ridegate-Env"

// Report is what the page script can observe and the server cannot: injected
// globals and display-mode features.
type Report struct {
	Globals       []string
	DisplayMode   string
	IOSStandalone bool
}

// Encode renders the report in the header/cookie wire form
// "b=<g1>,<g2>&dm=<mode>&ios=1".
func (r Report) Encode() string {
	v := url.Values{}
	if len(r.Globals) > 0 {
		v.Set("b", strings.Join(r.Globals, ","))
	}
	if r.DisplayMode != "" {
		v.Set("dm", r.DisplayMode)
	}
	if r.IOSStandalone {
		v.Set("ios", "1")
	}
	return v.Encode()
}

// ParseReport decodes the wire form. Unknown globals are dropped so a page
// cannot smuggle arbitrary names into diagnostics.
func ParseReport(raw string) Report {
	v, err := url.ParseQuery(raw)
	if err != nil {
		return Report{}
	}

	var r Report
	for _, name := range strings.Split(v.Get("b"), ",") {
		name = strings.TrimSpace(name)
		for _, known := range KnownGlobals {
			if name == known {
				r.Globals = append(r.Globals, name)
				break
			}
		}
	}
	r.DisplayMode = strings.ToLower(strings.TrimSpace(v.Get("dm")))
	r.IOSStandalone = v.Get("ios") == "1"
	return r
}

type requestProbe struct {
	ua      string
	hasUA   bool
	report  Report
	referer string
}

// FromRequest builds the probe for the page context that issued r. The
// header wins over the cookie because XHRs are issued after the page script
// has re-probed the globals. A request with no User-Agent header is treated
// as having no navigator.
func FromRequest(r *http.Request, cookieName string) Probe {
	p := requestProbe{
		ua:      r.Header.Get("User-Agent"),
		referer: r.Header.Get("Referer"),
	}
	p.hasUA = p.ua != ""

	raw := r.Header.Get(EnvHeader)
	if raw == "" && cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			raw = c.Value
			if unescaped, err := url.QueryUnescape(raw); err == nil {
				raw = unescaped
			}
		}
	}
	if raw != "" {
		p.report = ParseReport(raw)
	}

	return p
}

func (p requestProbe) UserAgent() (string, bool) { return p.ua, p.hasUA }

func (p requestProbe) HasGlobal(name string) bool {
	for _, g := range p.report.Globals {
		if g == name {
			return true
		}
	}
	return false
}

func (p requestProbe) DisplayMode() string { return p.report.DisplayMode }

func (p requestProbe) IOSStandalone() bool { return p.report.IOSStandalone }

// Referrer prefers the page-side document.referrer semantics; a Trusted Web
// Activity launch shows up as an android-app:// Referer on the first load.
func (p requestProbe) Referrer() string { return p.referer }

// Reported tells whether the page script has already delivered a report for
// this request, by header or cookie.
func Reported(r *http.Request, cookieName string) bool {
	if r.Header.Get(EnvHeader) != "" {
		return true
	}
	if cookieName == "" {
		return false
	}
	_, err := r.Cookie(cookieName)
	return err == nil
}
