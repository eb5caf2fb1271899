// Package serviceerr defines the error codes shared by the flow controller,
// the authorization-server client, and the HTTP handlers. The OAuth codes
// mirror RFC 6749 §4.1.2.1 and §5.2; the remaining codes are local to this
// application.
package serviceerr

import "net/http"

type Code string

// RFC6749 authorization endpoint error codes.
const (
	CodeInvalidRequest          Code = "invalid_request"
	CodeUnauthorizedClient      Code = "unauthorized_client"
	CodeAccessDenied            Code = "access_denied"
	CodeUnsupportedResponseType Code = "unsupported_response_type"
	CodeInvalidScope            Code = "invalid_scope"
	CodeServerError             Code = "server_error"
	CodeTemporarilyUnavailable  Code = "temporarily_unavailable"
)

// RFC6749 token endpoint error codes.
const (
	CodeInvalidClient        Code = "invalid_client"
	CodeInvalidGrant         Code = "invalid_grant"
	CodeUnsupportedGrantType Code = "unsupported_grant_type"
)

// Application error codes.
const (
	CodeUnknown             Code = "unknown"
	CodeConflict            Code = "conflict"
	CodeNotFound            Code = "not_found"
	CodeConfig              Code = "config_error"
	CodeStateMismatch       Code = "state_mismatch"
	CodeMissingCode         Code = "missing_code"
	CodeMissingVerifier     Code = "missing_verifier"
	CodeFingerprintMismatch Code = "fingerprint_mismatch"
	CodeStateExpired        Code = "state_expired"
	CodeSessionExpired      Code = "session_expired"
	CodeInvalidOIDCProvider Code = "invalid_oidc_provider"
	CodeInvalidCSRFToken    Code = "invalid_csrf_token"
)

type Error struct {
	Err         Code
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeInvalidScope, CodeUnsupportedResponseType,
		CodeInvalidClient, CodeInvalidGrant, CodeUnsupportedGrantType,
		CodeMissingCode, CodeConfig:
		return http.StatusBadRequest
	case CodeUnauthorizedClient, CodeSessionExpired:
		return http.StatusUnauthorized
	case CodeAccessDenied, CodeFingerprintMismatch, CodeStateMismatch, CodeMissingVerifier:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeStateExpired:
		return http.StatusGone
	case CodeInvalidOIDCProvider:
		return http.StatusPreconditionFailed
	case CodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrInvalidRequest          = &Error{Err: CodeInvalidRequest}
	ErrUnauthorizedClient      = &Error{Err: CodeUnauthorizedClient}
	ErrAccessDenied            = &Error{Err: CodeAccessDenied}
	ErrUnsupportedResponseType = &Error{Err: CodeUnsupportedResponseType}
	ErrInvalidScope            = &Error{Err: CodeInvalidScope}
	ErrServerError             = &Error{Err: CodeServerError}
	ErrTemporarilyUnavailable  = &Error{Err: CodeTemporarilyUnavailable}

	ErrInvalidClient        = &Error{Err: CodeInvalidClient}
	ErrInvalidGrant         = &Error{Err: CodeInvalidGrant}
	ErrUnsupportedGrantType = &Error{Err: CodeUnsupportedGrantType}

	ErrUnknown             = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrConflict            = &Error{Err: CodeConflict, Description: "already exists"}
	ErrNotFound            = &Error{Err: CodeNotFound, Description: "not found"}
	ErrConfig              = &Error{Err: CodeConfig, Description: "missing client configuration"}
	ErrStateMismatch       = &Error{Err: CodeStateMismatch, Description: "state parameter does not match the stored state"}
	ErrMissingCode         = &Error{Err: CodeMissingCode, Description: "callback carries neither code nor error"}
	ErrMissingVerifier     = &Error{Err: CodeMissingVerifier, Description: "PKCE verifier is not in the store"}
	ErrFingerprintMismatch = &Error{Err: CodeFingerprintMismatch, Description: "fingerprint mismatch"}
	ErrStateExpired        = &Error{Err: CodeStateExpired, Description: "state expired"}
	ErrSessionExpired      = &Error{Err: CodeSessionExpired, Description: "session expired"}
	ErrInvalidOIDCProvider = &Error{Err: CodeInvalidOIDCProvider, Description: "authorization server metadata does not match the configured issuer"}
	ErrInvalidCSRFToken    = &Error{Err: CodeInvalidCSRFToken, Description: "invalid CSRF token"}
)
