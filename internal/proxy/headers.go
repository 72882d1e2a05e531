package proxy

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/marcogenualdo/ridegate/internal/auth"
)

const (
	HeaderSubject   = "X-Auth-Subject"
	HeaderName      = "X-Auth-Name"
	HeaderEmail     = "X-Auth-Email"
	HeaderProvider  = "X-Auth-Provider"
	HeaderAvatar    = "X-Auth-Avatar"
	HeaderSessionID = "X-Auth-Session-ID"

	headerPrefix   = "X-Auth-"
	maxHeaderValue = 1024
)

// InjectHeaders tells the ride app who is signed in. Inbound X-Auth-*
// headers are always removed so a client cannot assert an identity; with a
// nil session none are set.
func InjectHeaders(req *http.Request, session *auth.Session) {
	for name := range req.Header {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), headerPrefix) {
			req.Header.Del(name)
		}
	}

	if session == nil {
		return
	}

	set := func(header, value string) {
		if v := formatHeaderValue(value); v != "" {
			req.Header.Set(header, v)
		}
	}
	set(HeaderSubject, session.SubjectID)
	set(HeaderName, session.DisplayName)
	set(HeaderEmail, session.Email)
	set(HeaderProvider, string(session.Provider))
	set(HeaderAvatar, session.AvatarURL)
	set(HeaderSessionID, session.ID)
}

// formatHeaderValue drops control characters, so a display name can never
// split the header block, and caps the length.
func formatHeaderValue(value string) string {
	v := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	v = strings.TrimSpace(v)
	if len(v) > maxHeaderValue {
		v = v[:maxHeaderValue]
	}
	return v
}
