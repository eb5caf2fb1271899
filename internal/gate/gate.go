// Package gate guards routes that require an authenticated session. A
// request without a usable session is redirected into the authorization
// flow, carrying the original path so the user lands back where they were.
package gate

import (
	"context"
	"net/http"
	"net/url"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/authserver"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/config"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
	"github.com/guilherme-hl1ma/project-library-oauth/pkg/fingerprint"
)

type ctxKey int

const sessionKey ctxKey = iota

// SessionFromContext returns the session the gate attached to the request.
func SessionFromContext(ctx context.Context) (flow.Session, bool) {
	session, ok := ctx.Value(sessionKey).(flow.Session)
	return session, ok
}

type Gate struct {
	mode          config.GateMode
	manager       *flow.Manager
	authServer    *authserver.Client
	cookieName    string
	authorizePath string
}

func New(cfg *config.Client, manager *flow.Manager, authServer *authserver.Client, authorizePath string) *Gate {
	mode := cfg.GateMode
	if mode == "" {
		mode = config.GateModeLocal
	}
	return &Gate{
		mode:          mode,
		manager:       manager,
		authServer:    authServer,
		cookieName:    cfg.SessionCookieTemplate.Name,
		authorizePath: authorizePath,
	}
}

// Middleware gates the wrapped handler. In local mode the session record and
// its decoded ID token decide; in probe mode the authorization server's
// identity endpoint is the authority. Either way an expired access token gets
// one silent refresh before the user is sent back through authorization.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cookie, err := r.Cookie(g.cookieName)
		if err != nil || cookie.Value == "" {
			g.deny(w, r)
			return
		}

		session, err := g.manager.Session(ctx, cookie.Value)
		if err != nil {
			slogctx.Debug(ctx, "No usable session for request", "error", err)
			g.deny(w, r)
			return
		}

		if session.Fingerprint != "" {
			fp, _ := fingerprint.FromHTTPRequest(r)
			if fp != session.Fingerprint {
				slogctx.Warn(ctx, "Session fingerprint mismatch", "session_id", session.ID)
				g.deny(w, r)
				return
			}
		}

		session, ok := g.verify(ctx, session)
		if !ok {
			g.deny(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey, session)))
	})
}

func (g *Gate) verify(ctx context.Context, session flow.Session) (flow.Session, bool) {
	if g.mode == config.GateModeProbe {
		return g.probe(ctx, session)
	}
	return g.local(ctx, session)
}

func (g *Gate) local(ctx context.Context, session flow.Session) (flow.Session, bool) {
	if tokensValid(session) {
		return session, true
	}

	refreshed, err := g.manager.Refresh(ctx, session)
	if err != nil {
		slogctx.Info(ctx, "Silent refresh failed", "error", err)
		return flow.Session{}, false
	}
	if !tokensValid(refreshed) {
		return flow.Session{}, false
	}
	return refreshed, true
}

// tokensValid checks the ID token's exp claim, falling back to the access
// token expiry when the grant carried no ID token.
func tokensValid(session flow.Session) bool {
	if session.IDToken != "" {
		return !session.Claims.Expired(time.Now())
	}
	return time.Now().Before(session.AccessTokenExpiry)
}

func (g *Gate) probe(ctx context.Context, session flow.Session) (flow.Session, bool) {
	cookies := []*http.Cookie{
		{Name: authserver.AccessTokenCookie, Value: session.AccessToken},
		{Name: authserver.RefreshTokenCookie, Value: session.RefreshToken},
	}
	if _, err := g.authServer.Identity(ctx, cookies); err == nil {
		return session, true
	} else if !authserver.IsUnauthorized(err) {
		slogctx.Warn(ctx, "Identity probe failed", "error", err)
		return flow.Session{}, false
	}

	refreshed, err := g.manager.Refresh(ctx, session)
	if err != nil {
		slogctx.Info(ctx, "Silent refresh failed", "error", err)
		return flow.Session{}, false
	}

	cookies[0].Value = refreshed.AccessToken
	cookies[1].Value = refreshed.RefreshToken
	if _, err := g.authServer.Identity(ctx, cookies); err != nil {
		return flow.Session{}, false
	}
	return refreshed, true
}

// deny sends the browser into the authorization flow. Only safe requests
// carry a next target; replaying a POST after login is not meaningful.
func (g *Gate) deny(w http.ResponseWriter, r *http.Request) {
	target := g.authorizePath
	if r.Method == http.MethodGet && r.URL.Path != "" {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusFound)
}
