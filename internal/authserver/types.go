package authserver

import (
	"fmt"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/serviceerr"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"

	ResponseTypeCode  = "code"
	CodeChallengeS256 = "S256"
	TokenTypeBearer   = "Bearer"

	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	IDTokenCookie      = "id_token"
)

const (
	defaultAuthorizePath = "/authorize"
	defaultTokenPath     = "/token"
	consentDataPath      = "/authorize/consent-data"
	consentDecisionPath  = "/authorize/consent"
	tokenRevokePath      = "/token/revoke"
	consentRevokePath    = "/token/revoke-consent"
)

// TokenResponse is the token endpoint's success payload for both the
// authorization_code and refresh_token grants.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// OAuthError is the RFC 6749 error payload. It doubles as the Go error for
// any non-2xx response from the authorization server.
type OAuthError struct {
	Code        serviceerr.Code `json:"error"`
	Description string          `json:"error_description,omitempty"`
	Status      int             `json:"-"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// ConsentData describes a pending consent request for rendering.
type ConsentData struct {
	ClientName string   `json:"client_name"`
	Scopes     []string `json:"scopes"`
	UserEmail  string   `json:"user_email"`
}

// ConsentDecision is the user's approve/deny submission. ApprovedScopes may
// be a subset of the requested scopes; a denial carries an empty list. The
// field is always on the wire, the endpoint requires it.
type ConsentDecision struct {
	ConsentID      string   `json:"consent_id"`
	Approved       bool     `json:"approved"`
	ApprovedScopes []string `json:"approved_scopes"`
}

type consentRedirect struct {
	RedirectURL string `json:"redirect_url"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginError struct {
	Detail string `json:"detail"`
}

// Identity is the identity endpoint's view of the authenticated user.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Role    string `json:"role,omitempty"`
}

// Endpoints are the resolved authorize and token endpoint URLs.
type Endpoints struct {
	Authorize string
	Token     string
}
