package auth

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/oauth2"
)

// ErrorKind is the caller-facing classification of a failed sign-in. Raw
// provider codes never leave this package unclassified.
type ErrorKind string

const (
	PopupBlocked           ErrorKind = "popup_blocked"
	UserCancelled          ErrorKind = "user_cancelled"
	NetworkFailure         ErrorKind = "network_failure"
	ProviderMisconfigured  ErrorKind = "provider_misconfigured"
	EnvironmentUnsupported ErrorKind = "environment_unsupported"
	Unknown                ErrorKind = "unknown"
)

// ErrAttemptInFlight is returned when the sign-in control is already
// disabled by an attempt that has not settled.
var ErrAttemptInFlight = errors.New("sign-in attempt already in flight")

// Error is a classified sign-in failure. Code keeps the provider's own code
// for diagnostics.
type Error struct {
	Kind ErrorKind
	Code string
	Err  error
}

func NewError(kind ErrorKind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// CodeError classifies a provider code.
func CodeError(code string, err error) *Error {
	return &Error{Kind: ClassifyCode(code), Code: code, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies any error returned while signing in.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}

	if errors.Is(err, context.Canceled) {
		return UserCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkFailure
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode != "" {
			return ClassifyCode(retrieveErr.ErrorCode)
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return NetworkFailure
		}
		return ProviderMisconfigured
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NetworkFailure
	}

	return Unknown
}

// CodeOf returns the provider code carried by err, if any.
func CodeOf(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.ErrorCode
	}
	return ""
}

// AsError returns err as a classified *Error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}
	return &Error{Kind: KindOf(err), Code: CodeOf(err), Err: err}
}

var codeKinds = map[string]ErrorKind{
	"auth/popup-blocked": PopupBlocked,
	"popup_blocked":      PopupBlocked,

	"auth/popup-closed-by-user":    UserCancelled,
	"auth/cancelled-popup-request": UserCancelled,
	"auth/user-cancelled":          UserCancelled,
	"access_denied":                UserCancelled,
	"user_cancelled_authorize":     UserCancelled,
	"popup_closed":                 UserCancelled,

	"auth/network-request-failed": NetworkFailure,
	"auth/too-many-requests":      NetworkFailure,
	"auth/timeout":                NetworkFailure,
	"temporarily_unavailable":     NetworkFailure,
	"server_error":                NetworkFailure,

	"auth/auth-domain-config-required": ProviderMisconfigured,
	"auth/invalid-api-key":             ProviderMisconfigured,
	"auth/invalid-client-id":           ProviderMisconfigured,
	"auth/missing-required-parameter":  ProviderMisconfigured,
	"auth/invalid-credentials":         ProviderMisconfigured,
	"auth/unauthorized-domain":         ProviderMisconfigured,
	"auth/operation-not-allowed":       ProviderMisconfigured,
	"invalid_client":                   ProviderMisconfigured,
	"unauthorized_client":              ProviderMisconfigured,
	"invalid_request":                  ProviderMisconfigured,
	"invalid_scope":                    ProviderMisconfigured,
	"unsupported_response_type":        ProviderMisconfigured,
	"redirect_uri_mismatch":            ProviderMisconfigured,

	"auth/operation-not-supported-in-this-environment": EnvironmentUnsupported,
	"auth/disallowed-useragent":                        EnvironmentUnsupported,
	"auth/web-storage-unsupported":                     EnvironmentUnsupported,
	"disallowed_useragent":                             EnvironmentUnsupported,
}

// ClassifyCode maps a Firebase-style auth/* code or an OAuth error= code to
// its kind. Unrecognized codes are Unknown.
func ClassifyCode(code string) ErrorKind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return Unknown
}

var codeMessages = map[string]string{
	"auth/too-many-requests":   "Too many sign-in attempts. Please wait a moment and try again.",
	"auth/user-disabled":       "This account has been disabled. Please contact support.",
	"auth/user-not-found":      "This account doesn't exist. Create a new account or try another sign-in method.",
	"auth/cors-not-allowed":    "The sign-in request was blocked by the browser. Try again from your device browser.",
	"auth/invalid-api-key":     "Sign-in is misconfigured (invalid API key). Please contact support.",
	"auth/invalid-client-id":   "Sign-in is misconfigured (invalid client ID). Please contact support.",
	"auth/unauthorized-domain": "Sign-in is not configured for this domain. Please contact support.",
}

// UserMessage is the single message shown for a failed attempt.
func UserMessage(kind ErrorKind, code string) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}

	switch kind {
	case PopupBlocked:
		return "Your browser blocked the sign-in window. Allow popups and try again, or use Email/Phone Sign-In."
	case UserCancelled:
		return "Sign-in was cancelled. Please try again."
	case NetworkFailure:
		return "Network error. Check your internet connection and try again."
	case ProviderMisconfigured:
		return "Sign-in is not configured correctly. Please contact support."
	case EnvironmentUnsupported:
		return "This sign-in method isn't supported here. Try Email or Phone Sign-In."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind ErrorKind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Err: fmt.Errorf(format, args...)}
}
