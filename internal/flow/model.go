// Package flow implements the client side of the OAuth 2.0 authorization
// code flow with PKCE: beginning an authorization, validating the callback,
// exchanging the code for tokens, and tracking the resulting session.
package flow

import (
	"time"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/identity"
)

// State is the cross-redirect record created before navigating to the
// authorization server. It is keyed by the state parameter and consumed
// exactly once by the callback handler.
type State struct {
	ID           string    `json:"id"`
	PKCEVerifier string    `json:"pkce_verifier"`
	ReturnTo     string    `json:"return_to,omitempty"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// Session is the authenticated state of one relying-party session. The
// granted scopes are authoritative; the scopes requested at Begin time are
// not retained.
type Session struct {
	ID                string          `json:"id"`
	TokenType         string          `json:"token_type"`
	AccessToken       string          `json:"access_token"`
	RefreshToken      string          `json:"refresh_token,omitempty"`
	IDToken           string          `json:"id_token,omitempty"`
	GrantedScopes     []string        `json:"granted_scopes"`
	AccessTokenExpiry time.Time       `json:"access_token_expiry"`
	Expiry            time.Time       `json:"expiry"`
	Fingerprint       string          `json:"fingerprint,omitempty"`
	Claims            identity.Claims `json:"claims"`
}

// Status is the callback handler's state machine position.
type Status string

const (
	StatusInit       Status = "init"
	StatusValidating Status = "validating"
	StatusExchanging Status = "exchanging"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)
