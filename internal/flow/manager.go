package flow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/authserver"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/config"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/identity"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/pkce"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/serviceerr"
)

// Result is the callback handler's outcome: either a stored session plus a
// navigation target, or a Failure to render.
type Result struct {
	Status     Status
	Session    Session
	RedirectTo string
	Failure    *Failure
}

// Failure describes a failed callback for the error page: what went wrong,
// where retrying should restart, and how long the page counts down before
// navigating there.
type Failure struct {
	Code      serviceerr.Code
	Message   string
	Retry     RetryTarget
	Countdown int
}

type Manager struct {
	authServer *authserver.Client
	store      Repository
	pkce       pkce.Source

	clientID        string
	redirectURI     string
	scopes          []string
	postLoginPath   string
	flowTTL         time.Duration
	sessionDuration time.Duration
}

func NewManager(cfg *config.Client, authServer *authserver.Client, store Repository) (*Manager, error) {
	if _, err := url.Parse(cfg.RedirectURI); err != nil {
		return nil, fmt.Errorf("parsing redirect URI: %w", err)
	}

	return &Manager{
		authServer:      authServer,
		store:           store,
		clientID:        cfg.ClientID,
		redirectURI:     cfg.RedirectURI,
		scopes:          cfg.Scopes,
		postLoginPath:   cfg.PostLoginPath,
		flowTTL:         cfg.FlowTTL,
		sessionDuration: cfg.SessionDuration,
	}, nil
}

// Begin starts an authorization flow: it stores the state record first, then
// returns the authorization URL to redirect the browser to. returnTo is where
// the user lands after a successful callback.
func (m *Manager) Begin(ctx context.Context, returnTo, fingerprint string) (string, error) {
	if m.clientID == "" || m.redirectURI == "" {
		return "", serviceerr.ErrConfig
	}

	endpoints, err := m.authServer.Endpoints(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving authorization endpoint: %w", err)
	}

	stateID := m.pkce.State()
	pk := m.pkce.PKCE()

	state := State{
		ID:           stateID,
		PKCEVerifier: pk.Verifier,
		ReturnTo:     returnTo,
		Fingerprint:  fingerprint,
		Expiry:       time.Now().Add(m.flowTTL),
	}

	// the record must be durable before the browser leaves this origin
	if err := m.store.StoreState(ctx, state); err != nil {
		return "", fmt.Errorf("storing state: %w", err)
	}

	u, err := m.authURI(endpoints.Authorize, state, pk)
	if err != nil {
		return "", fmt.Errorf("generating auth uri: %w", err)
	}

	return u, nil
}

func (m *Manager) authURI(authorizeEndpoint string, state State, pk pkce.PKCE) (string, error) {
	u, err := url.Parse(authorizeEndpoint)
	if err != nil {
		return "", fmt.Errorf("parsing authorisation endpoint url: %w", err)
	}

	q := u.Query()
	q.Set("response_type", authserver.ResponseTypeCode)
	q.Set("client_id", m.clientID)
	q.Set("redirect_uri", m.redirectURI)
	q.Set("scope", strings.Join(m.scopes, " "))
	q.Set("state", state.ID)
	q.Set("code_challenge", pk.Challenge)
	q.Set("code_challenge_method", pk.Method)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// HandleCallback validates the authorization server's redirect and, if it
// carries a usable code, exchanges it for tokens and stores the session. The
// state record is consumed before any other check, so the PKCE verifier is
// gone after the first attempt whatever the outcome.
func (m *Manager) HandleCallback(ctx context.Context, query url.Values, fingerprint string) Result {
	state, err := m.store.ConsumeState(ctx, query.Get("state"))
	if err != nil {
		slogctx.Warn(ctx, "Callback state unknown or already used", "error", err)
		return failed(serviceerr.CodeStateMismatch,
			"State mismatch. The request may have been tampered with.",
			RetryLogin, CountdownValidation)
	}

	if time.Now().After(state.Expiry) {
		return failed(serviceerr.CodeStateExpired,
			"The sign-in attempt expired. Please start again.",
			RetryLogin, CountdownValidation)
	}

	if state.Fingerprint != "" && state.Fingerprint != fingerprint {
		slogctx.Warn(ctx, "Callback fingerprint mismatch")
		return failed(serviceerr.CodeFingerprintMismatch,
			"This sign-in attempt was started from a different browser.",
			RetryLogin, CountdownValidation)
	}

	if errCode := query.Get("error"); errCode != "" {
		code := serviceerr.Code(errCode)
		message := query.Get("error_description")
		if message == "" {
			message = authorizeErrorMessage(code)
		}
		return failed(code, message, ClassifyAuthorizeError(code), CountdownExchange)
	}

	code := query.Get("code")
	if code == "" {
		return failed(serviceerr.CodeMissingCode,
			"The authorization server returned neither a code nor an error.",
			RetryLogin, CountdownValidation)
	}

	if state.PKCEVerifier == "" {
		return failed(serviceerr.CodeMissingVerifier,
			"PKCE verification data is missing. Please authorize again.",
			RetryAuthorize, CountdownValidation)
	}

	tokens, err := m.authServer.ExchangeCode(ctx, code, state.PKCEVerifier)
	if err != nil {
		return m.exchangeFailure(ctx, err)
	}

	slogctx.Info(ctx, "Exchanged the authorization code for tokens")

	session := m.newSession(ctx, tokens, fingerprint)
	if err := m.store.StoreSession(ctx, session); err != nil {
		slogctx.Error(ctx, "Failed to store session", "error", err)
		return failed(serviceerr.CodeServerError,
			"Could not persist the session. Please try again.",
			RetryAuthorize, CountdownExchange)
	}

	redirectTo := state.ReturnTo
	if redirectTo == "" {
		redirectTo = m.postLoginPath
	}

	return Result{Status: StatusSuccess, Session: session, RedirectTo: redirectTo}
}

func (m *Manager) exchangeFailure(ctx context.Context, err error) Result {
	var oauthErr *authserver.OAuthError
	if errors.As(err, &oauthErr) {
		slogctx.Warn(ctx, "Token exchange rejected", "error", err)
		message := oauthErr.Description
		if message == "" {
			message = "The authorization server rejected the code exchange."
		}
		return failed(oauthErr.Code, message, ClassifyTokenError(oauthErr.Code), CountdownExchange)
	}

	// network failure or timeout: same handling as a server_error response
	slogctx.Error(ctx, "Token exchange failed", "error", err)
	return failed(serviceerr.CodeServerError,
		"The authorization server could not be reached.",
		RetryAuthorize, CountdownExchange)
}

func (m *Manager) newSession(ctx context.Context, tokens authserver.TokenResponse, fingerprint string) Session {
	now := time.Now()

	session := Session{
		ID:                m.pkce.SessionID(),
		TokenType:         tokens.TokenType,
		AccessToken:       tokens.AccessToken,
		RefreshToken:      tokens.RefreshToken,
		IDToken:           tokens.IDToken,
		GrantedScopes:     strings.Fields(tokens.Scope),
		AccessTokenExpiry: now.Add(time.Duration(tokens.ExpiresIn) * time.Second),
		Expiry:            now.Add(m.sessionDuration),
		Fingerprint:       fingerprint,
	}

	if tokens.IDToken != "" {
		claims, err := identity.Decode(tokens.IDToken)
		if err != nil {
			slogctx.Warn(ctx, "Failed to decode id token claims", "error", err)
		} else {
			session.Claims = claims
		}
	}

	return session
}

// Refresh replaces the session's tokens with a fresh set from the
// authorization server and persists the updated record.
func (m *Manager) Refresh(ctx context.Context, session Session) (Session, error) {
	if session.RefreshToken == "" {
		return Session{}, serviceerr.ErrSessionExpired
	}

	tokens, err := m.authServer.Refresh(ctx, session.RefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("refreshing session tokens: %w", err)
	}

	now := time.Now()
	session.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		session.RefreshToken = tokens.RefreshToken
	}
	if tokens.IDToken != "" {
		session.IDToken = tokens.IDToken
		if claims, err := identity.Decode(tokens.IDToken); err == nil {
			session.Claims = claims
		}
	}
	if tokens.Scope != "" {
		session.GrantedScopes = strings.Fields(tokens.Scope)
	}
	session.AccessTokenExpiry = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)

	if err := m.store.StoreSession(ctx, session); err != nil {
		return Session{}, fmt.Errorf("storing refreshed session: %w", err)
	}
	return session, nil
}

// Logout removes the local session. Revocation at the authorization server is
// best effort; when revokeConsent is set the user's consent for this client
// is withdrawn as well, so the next flow shows the consent dialog again.
func (m *Manager) Logout(ctx context.Context, sessionID string, revokeConsent bool) error {
	session, err := m.store.LoadSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("loading session: %w", err)
	}

	if err := m.authServer.RevokeTokens(ctx, session.AccessToken, session.RefreshToken); err != nil {
		slogctx.Warn(ctx, "Failed to revoke tokens", "error", err)
	}
	if revokeConsent {
		if err := m.authServer.RevokeConsent(ctx, session.AccessToken, session.RefreshToken); err != nil {
			slogctx.Warn(ctx, "Failed to revoke consent", "error", err)
		}
	}

	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Session loads a session and enforces its expiry; expired records are
// removed from the store.
func (m *Manager) Session(ctx context.Context, sessionID string) (Session, error) {
	session, err := m.store.LoadSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if time.Now().After(session.Expiry) {
		if err := m.store.DeleteSession(ctx, sessionID); err != nil {
			slogctx.Warn(ctx, "Failed to delete expired session", "error", err)
		}
		return Session{}, serviceerr.ErrSessionExpired
	}
	return session, nil
}

func failed(code serviceerr.Code, message string, retry RetryTarget, countdown int) Result {
	return Result{
		Status: StatusFailed,
		Failure: &Failure{
			Code:      code,
			Message:   message,
			Retry:     retry,
			Countdown: countdown,
		},
	}
}

func authorizeErrorMessage(code serviceerr.Code) string {
	switch code {
	case serviceerr.CodeAccessDenied:
		return "You declined the authorization request."
	case serviceerr.CodeTemporarilyUnavailable:
		return "The authorization server is temporarily unavailable."
	case serviceerr.CodeServerError:
		return "The authorization server reported an internal error."
	default:
		return "The authorization request was rejected: " + string(code)
	}
}
