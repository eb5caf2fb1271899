package flow

import "github.com/guilherme-hl1ma/project-library-oauth/internal/serviceerr"

// RetryTarget names where the user should be sent after a failed callback.
type RetryTarget string

const (
	// RetryLogin restarts at the login page: the failure indicates a broken
	// or tampered request that re-authorizing alone cannot fix.
	RetryLogin RetryTarget = "login"
	// RetryAuthorize restarts the authorization request with an existing
	// authentication session.
	RetryAuthorize RetryTarget = "authorize"
)

const (
	// CountdownValidation applies to failures detected before contacting the
	// token endpoint.
	CountdownValidation = 3
	// CountdownExchange applies to errors returned by the authorization
	// server, on the callback or during code exchange.
	CountdownExchange = 5
)

// ClassifyAuthorizeError maps an error code returned on the callback redirect
// to a retry target. Request-construction errors restart from login; user and
// server-side conditions only need a fresh authorization request. Codes
// outside RFC 6749 restart from login.
func ClassifyAuthorizeError(code serviceerr.Code) RetryTarget {
	switch code {
	case serviceerr.CodeAccessDenied,
		serviceerr.CodeServerError,
		serviceerr.CodeTemporarilyUnavailable:
		return RetryAuthorize
	default:
		return RetryLogin
	}
}

// ClassifyTokenError maps a token endpoint error to a retry target. An
// invalid_grant means the code was spent or expired, which a new
// authorization request resolves.
func ClassifyTokenError(code serviceerr.Code) RetryTarget {
	if code == serviceerr.CodeInvalidGrant {
		return RetryAuthorize
	}
	return RetryLogin
}
