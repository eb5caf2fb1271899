package authui_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/authserver"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/authui"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/config"
)

const csrfCookieName = "authui_csrf"

var csrfInputPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// authServerStub fakes the authorization server's login and consent API.
type authServerStub struct {
	srv *httptest.Server

	loginDown     bool
	consentScopes []string
	submitted     *authserver.ConsentDecision
	submittedBody string
}

func newAuthServerStub(t *testing.T) *authServerStub {
	t.Helper()
	stub := &authServerStub{consentScopes: []string{"read", "create", "delete"}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if stub.loginDown {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"detail":"upstream unavailable"}`))
			return
		}

		if body["password"] != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"invalid email or password"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "as_session", Value: "s-1", HttpOnly: true, Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /authorize/consent-data", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("as_session"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(authserver.ConsentData{
			ClientName: "Library Web",
			Scopes:     stub.consentScopes,
			UserEmail:  "reader@example.com",
		})
	})
	mux.HandleFunc("POST /authorize/consent", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("as_session"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		stub.submittedBody = string(raw)

		var decision authserver.ConsentDecision
		require.NoError(t, json.Unmarshal(raw, &decision))
		stub.submitted = &decision

		redirect := "http://client.local/oauth/callback?code=c-1&state=s-1"
		if !decision.Approved {
			redirect = "http://client.local/oauth/callback?error=access_denied&state=s-1"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"redirect_url": redirect})
	})

	stub.srv = httptest.NewServer(mux)
	t.Cleanup(stub.srv.Close)
	return stub
}

func newHandler(t *testing.T, stub *authServerStub) http.Handler {
	t.Helper()

	client := authserver.NewClient(config.AuthServer{
		IssuerURL: stub.srv.URL,
		LoginPath: "/auth/login",
	}, "library-web", "http://client.local/oauth/callback")

	handler, err := authui.NewHandler(&config.AuthUI{
		LoginPath: "/login",
		CSRFSecret: commoncfg.SourceRef{
			Source: "embedded",
			Value:  "0123456789abcdef0123456789abcdef",
		},
		CSRFCookieTemplate: config.CookieTemplate{Name: csrfCookieName, Path: "/"},
	}, stub.srv.URL, client)
	require.NoError(t, err)

	return handler.Routes()
}

// fetchForm GETs a page and returns the CSRF cookie and form token.
func fetchForm(t *testing.T, handler http.Handler, path string, cookies ...*http.Cookie) (*http.Cookie, string, *httptest.ResponseRecorder) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var csrfCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName {
			csrfCookie = c
		}
	}
	match := csrfInputPattern.FindStringSubmatch(rec.Body.String())
	token := ""
	if match != nil {
		token = match[1]
	}
	return csrfCookie, token, rec
}

func postForm(handler http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestLoginPage(t *testing.T) {
	handler := newHandler(t, newAuthServerStub(t))

	csrfCookie, token, rec := fetchForm(t, handler, "/login?return_to=%2Fconsent%3Fconsent_id%3Dc-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, csrfCookie)
	require.NotEmpty(t, token)
	assert.Contains(t, rec.Body.String(), `name="return_to" value="/consent?consent_id=c-1"`)
}

func TestLoginSubmit(t *testing.T) {
	stub := newAuthServerStub(t)
	handler := newHandler(t, stub)

	t.Run("success relays cookies and continues the flow", func(t *testing.T) {
		csrfCookie, token, _ := fetchForm(t, handler, "/login")

		rec := postForm(handler, "/login", url.Values{
			"email":        {"reader@example.com"},
			"password":     {"correct"},
			"return_to":    {"/authorize"},
			"oauth_params": {"client_id=library-web&state=s-1"},
			"csrf_token":   {token},
		}, csrfCookie)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/authorize?client_id=library-web&state=s-1", rec.Header().Get("Location"))

		relayed := false
		for _, c := range rec.Result().Cookies() {
			if c.Name == "as_session" && c.Value == "s-1" {
				relayed = true
			}
		}
		assert.True(t, relayed, "authorization server cookies must reach the browser")
	})

	t.Run("return_to without oauth_params", func(t *testing.T) {
		csrfCookie, token, _ := fetchForm(t, handler, "/login")

		rec := postForm(handler, "/login", url.Values{
			"email":      {"reader@example.com"},
			"password":   {"correct"},
			"return_to":  {"/consent?consent_id=c-1"},
			"csrf_token": {token},
		}, csrfCookie)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/consent?consent_id=c-1", rec.Header().Get("Location"))
	})

	t.Run("no targets falls back to root", func(t *testing.T) {
		csrfCookie, token, _ := fetchForm(t, handler, "/login")

		rec := postForm(handler, "/login", url.Values{
			"email":      {"reader@example.com"},
			"password":   {"correct"},
			"csrf_token": {token},
		}, csrfCookie)

		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("foreign return_to is dropped", func(t *testing.T) {
		csrfCookie, token, _ := fetchForm(t, handler, "/login")

		rec := postForm(handler, "/login", url.Values{
			"email":      {"reader@example.com"},
			"password":   {"correct"},
			"return_to":  {"https://evil.example/phish"},
			"csrf_token": {token},
		}, csrfCookie)

		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("wrong password re-renders with detail", func(t *testing.T) {
		csrfCookie, token, _ := fetchForm(t, handler, "/login")

		rec := postForm(handler, "/login", url.Values{
			"email":      {"reader@example.com"},
			"password":   {"wrong"},
			"csrf_token": {token},
		}, csrfCookie)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid email or password")
		assert.Contains(t, rec.Body.String(), `value="reader@example.com"`, "email field keeps its value")
	})

	t.Run("missing csrf token is rejected", func(t *testing.T) {
		rec := postForm(handler, "/login", url.Values{
			"email":    {"reader@example.com"},
			"password": {"correct"},
		})

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("authorization server outage is not a credential failure", func(t *testing.T) {
		stub.loginDown = true
		defer func() { stub.loginDown = false }()

		csrfCookie, token, _ := fetchForm(t, handler, "/login")

		rec := postForm(handler, "/login", url.Values{
			"email":      {"reader@example.com"},
			"password":   {"correct"},
			"csrf_token": {token},
		}, csrfCookie)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "temporarily unavailable")
	})
}

func TestConsentPage(t *testing.T) {
	stub := newAuthServerStub(t)
	handler := newHandler(t, stub)
	asSession := &http.Cookie{Name: "as_session", Value: "s-1"}

	t.Run("renders scope checkboxes pre-selected", func(t *testing.T) {
		_, token, rec := fetchForm(t, handler, "/consent?consent_id=c-1", asSession)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, token)
		body := rec.Body.String()
		assert.Contains(t, body, "Library Web")
		assert.Contains(t, body, "reader@example.com")
		assert.Contains(t, body, "View your projects")
		assert.Contains(t, body, "Delete your projects")
		assert.Equal(t, 3, strings.Count(body, "checked"), "every scope starts selected")
	})

	t.Run("missing consent_id is terminal", func(t *testing.T) {
		_, _, rec := fetchForm(t, handler, "/consent", asSession)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthenticated redirects to login with return_to", func(t *testing.T) {
		_, _, rec := fetchForm(t, handler, "/consent?consent_id=c-1")

		assert.Equal(t, http.StatusFound, rec.Code)
		location := rec.Header().Get("Location")
		assert.True(t, strings.HasPrefix(location, "/login?return_to="), location)

		returnTo, err := url.QueryUnescape(strings.TrimPrefix(location, "/login?return_to="))
		require.NoError(t, err)
		assert.Equal(t, "/consent?consent_id=c-1", returnTo)
	})
}

func TestConsentSubmit(t *testing.T) {
	asSession := &http.Cookie{Name: "as_session", Value: "s-1"}

	t.Run("approving a subset submits only that subset", func(t *testing.T) {
		stub := newAuthServerStub(t)
		handler := newHandler(t, stub)
		csrfCookie, token, _ := fetchForm(t, handler, "/consent?consent_id=c-1", asSession)

		rec := postForm(handler, "/consent", url.Values{
			"consent_id": {"c-1"},
			"action":     {"approve"},
			"scope":      {"read"},
			"csrf_token": {token},
		}, csrfCookie, asSession)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "http://client.local/oauth/callback?code=c-1&state=s-1",
			rec.Header().Get("Location"))

		require.NotNil(t, stub.submitted)
		assert.True(t, stub.submitted.Approved)
		assert.Equal(t, []string{"read"}, stub.submitted.ApprovedScopes)
	})

	t.Run("deny works with nothing selected", func(t *testing.T) {
		stub := newAuthServerStub(t)
		handler := newHandler(t, stub)
		csrfCookie, token, _ := fetchForm(t, handler, "/consent?consent_id=c-1", asSession)

		rec := postForm(handler, "/consent", url.Values{
			"consent_id": {"c-1"},
			"action":     {"deny"},
			"csrf_token": {token},
		}, csrfCookie, asSession)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Location"), "error=access_denied")

		require.NotNil(t, stub.submitted)
		assert.False(t, stub.submitted.Approved)
		assert.Empty(t, stub.submitted.ApprovedScopes)
		assert.Contains(t, stub.submittedBody, `"approved_scopes":[]`,
			"a denial must still carry the scope field on the wire")
	})

	t.Run("approving nothing re-renders with an error", func(t *testing.T) {
		stub := newAuthServerStub(t)
		handler := newHandler(t, stub)
		csrfCookie, token, _ := fetchForm(t, handler, "/consent?consent_id=c-1", asSession)

		rec := postForm(handler, "/consent", url.Values{
			"consent_id": {"c-1"},
			"action":     {"approve"},
			"csrf_token": {token},
		}, csrfCookie, asSession)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Select at least one permission")
		assert.Nil(t, stub.submitted, "nothing may reach the authorization server")
	})
}
