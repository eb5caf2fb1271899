// Package authui serves the authorization server's login and consent pages.
// It holds no user state of its own: credentials and consent decisions are
// relayed to the authorization server, and its Set-Cookie responses pass
// through to the browser.
package authui

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	slogctx "github.com/veqryn/slog-context"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/authserver"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/config"
	"github.com/guilherme-hl1ma/project-library-oauth/pkg/csrf"
)

type Handler struct {
	authServer *authserver.Client
	issuerHost string

	loginPath  string
	csrfSecret []byte
	csrfCookie config.CookieTemplate
}

func NewHandler(cfg *config.AuthUI, issuerURL string, authServer *authserver.Client) (*Handler, error) {
	csrfSecret, err := commoncfg.LoadValueFromSourceRef(cfg.CSRFSecret)
	if err != nil {
		return nil, fmt.Errorf("loading csrf secret from source ref: %w", err)
	}
	if len(csrfSecret) < 32 {
		return nil, errors.New("CSRF secret must be at least 32 bytes")
	}

	issuer, err := url.Parse(issuerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing issuer URL: %w", err)
	}

	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	csrfCookie := cfg.CSRFCookieTemplate
	if csrfCookie.Name == "" {
		csrfCookie.Name = "authui_csrf"
	}

	return &Handler{
		authServer: authServer,
		issuerHost: issuer.Host,
		loginPath:  loginPath,
		csrfSecret: csrfSecret,
		csrfCookie: csrfCookie,
	}, nil
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get(h.loginPath, h.showLogin)
	r.Post(h.loginPath, h.submitLogin)
	r.Get("/consent", h.showConsent)
	r.Post("/consent", h.submitConsent)
	return r
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.renderLogin(w, loginView{
		ReturnTo:    q.Get("return_to"),
		OAuthParams: q.Get("oauth_params"),
	}, http.StatusOK)
}

func (h *Handler) submitLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, "Invalid request", "The submitted form could not be read.", http.StatusBadRequest)
		return
	}

	view := loginView{
		Email:       strings.TrimSpace(r.FormValue("email")),
		ReturnTo:    r.FormValue("return_to"),
		OAuthParams: r.FormValue("oauth_params"),
	}

	if !h.validCSRF(r) {
		view.Error = "The form has expired. Please try again."
		h.renderLogin(w, view, http.StatusForbidden)
		return
	}

	cookies, err := h.authServer.Login(r.Context(), view.Email, r.FormValue("password"))
	if err != nil {
		var oauthErr *authserver.OAuthError
		if errors.As(err, &oauthErr) && oauthErr.Status < 500 {
			view.Error = oauthErr.Description
			h.renderLogin(w, view, http.StatusUnauthorized)
			return
		}

		// transport failures and AS 5xx are the server's fault, not bad
		// credentials
		slogctx.Error(r.Context(), "Login request failed", "error", err)
		view.Error = "Sign-in is temporarily unavailable. Please try again."
		h.renderLogin(w, view, http.StatusBadGateway)
		return
	}

	// relay the authorization server's session cookies to the browser
	for _, cookie := range cookies {
		http.SetCookie(w, cookie)
	}

	http.Redirect(w, r, h.postLoginTarget(view.ReturnTo, view.OAuthParams), http.StatusFound)
}

// postLoginTarget decides where a fresh login continues: back into a pending
// authorization flow, to an explicit return target on this origin, or home.
func (h *Handler) postLoginTarget(returnTo, oauthParams string) string {
	returnTo = h.safeReturnTo(returnTo)
	switch {
	case returnTo != "" && oauthParams != "":
		separator := "?"
		if strings.Contains(returnTo, "?") {
			separator = "&"
		}
		return returnTo + separator + oauthParams
	case returnTo != "":
		return returnTo
	default:
		return "/"
	}
}

// safeReturnTo rejects targets that would leave the authorization server's
// origin, so the login form cannot be abused as an open redirector.
func (h *Handler) safeReturnTo(returnTo string) string {
	if returnTo == "" {
		return ""
	}
	if strings.HasPrefix(returnTo, "/") && !strings.HasPrefix(returnTo, "//") {
		return returnTo
	}
	u, err := url.Parse(returnTo)
	if err != nil || u.Host != h.issuerHost {
		return ""
	}
	return returnTo
}

func (h *Handler) showConsent(w http.ResponseWriter, r *http.Request) {
	consentID := r.URL.Query().Get("consent_id")
	if consentID == "" {
		h.renderError(w, "Invalid consent request",
			"The consent request is missing its identifier. Please restart the authorization.",
			http.StatusBadRequest)
		return
	}

	data, err := h.authServer.ConsentData(r.Context(), consentID, r.Cookies())
	if err != nil {
		if authserver.IsUnauthorized(err) {
			h.redirectToLogin(w, r)
			return
		}
		slogctx.Error(r.Context(), "Failed to load consent data", "error", err)
		h.renderError(w, "Consent unavailable",
			"The consent request could not be loaded. Please restart the authorization.",
			http.StatusBadGateway)
		return
	}

	h.renderConsent(w, consentView{
		ConsentID:  consentID,
		ClientName: data.ClientName,
		UserEmail:  data.UserEmail,
		Scopes:     describeScopes(data.Scopes),
	}, http.StatusOK)
}

func (h *Handler) submitConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, "Invalid request", "The submitted form could not be read.", http.StatusBadRequest)
		return
	}

	consentID := r.FormValue("consent_id")
	approved := r.FormValue("action") == "approve"
	scopes := r.Form["scope"]

	if !h.validCSRF(r) {
		h.renderError(w, "Invalid request", "The form has expired. Please restart the authorization.",
			http.StatusForbidden)
		return
	}

	// denying never requires scopes; approving an empty grant is pointless,
	// so reject it and re-render the form
	if approved && len(scopes) == 0 {
		data, err := h.authServer.ConsentData(r.Context(), consentID, r.Cookies())
		if err != nil {
			h.renderError(w, "Consent unavailable",
				"The consent request could not be loaded. Please restart the authorization.",
				http.StatusBadGateway)
			return
		}
		views := describeScopes(data.Scopes)
		for i := range views {
			views[i].Checked = false
		}
		h.renderConsent(w, consentView{
			Error:      "Select at least one permission, or deny the request.",
			ConsentID:  consentID,
			ClientName: data.ClientName,
			UserEmail:  data.UserEmail,
			Scopes:     views,
		}, http.StatusBadRequest)
		return
	}

	// a denial still carries the field, as an empty list
	decision := authserver.ConsentDecision{
		ConsentID:      consentID,
		Approved:       approved,
		ApprovedScopes: []string{},
	}
	if approved {
		decision.ApprovedScopes = scopes
	}

	redirect, err := h.authServer.SubmitConsent(r.Context(), decision, r.Cookies())
	if err != nil {
		if authserver.IsUnauthorized(err) {
			h.redirectToLogin(w, r)
			return
		}
		slogctx.Error(r.Context(), "Failed to submit consent decision", "error", err)
		h.renderError(w, "Consent failed",
			"Your decision could not be recorded. Please restart the authorization.",
			http.StatusBadGateway)
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

// redirectToLogin sends an unauthenticated user to the login page, carrying
// the full current URL so they come straight back after signing in.
func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := h.loginPath + "?return_to=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}

// newCSRFToken binds a token to a per-form ID stored in a cookie; Validate
// on submit checks both halves.
func (h *Handler) newCSRFToken(w http.ResponseWriter) string {
	formID := uuid.NewString()
	http.SetCookie(w, h.csrfCookie.ToCookie(formID))
	return csrf.NewToken(formID, h.csrfSecret)
}

func (h *Handler) validCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(h.csrfCookie.Name)
	if err != nil || cookie.Value == "" {
		return false
	}
	return csrf.Validate(r.FormValue("csrf_token"), cookie.Value, h.csrfSecret)
}

func (h *Handler) renderLogin(w http.ResponseWriter, view loginView, status int) {
	// the cookie must go out before the status line
	view.CSRFToken = h.newCSRFToken(w)
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, "login.html", view); err != nil {
		http.Error(w, "failed to render login", http.StatusInternalServerError)
	}
}

func (h *Handler) renderConsent(w http.ResponseWriter, view consentView, status int) {
	view.CSRFToken = h.newCSRFToken(w)
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, "consent.html", view); err != nil {
		http.Error(w, "failed to render consent", http.StatusInternalServerError)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, title, message string, status int) {
	w.WriteHeader(status)
	_ = templates.ExecuteTemplate(w, "error.html", errorView{Title: title, Message: message})
}
