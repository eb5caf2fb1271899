package authserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/authserver"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/config"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/serviceerr"
)

func newClient(t *testing.T, cfg config.AuthServer) *authserver.Client {
	t.Helper()
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	return authserver.NewClient(cfg, "library-web", "http://client.local/oauth/callback")
}

func TestEndpointsExplicitConfig(t *testing.T) {
	client := newClient(t, config.AuthServer{
		IssuerURL:         "http://as.local",
		AuthorizeEndpoint: "http://as.local/custom/authorize",
		TokenEndpoint:     "http://as.local/custom/token",
	})

	endpoints, err := client.Endpoints(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "http://as.local/custom/authorize", endpoints.Authorize)
	assert.Equal(t, "http://as.local/custom/token", endpoints.Token)
}

func TestEndpointsConventionalPaths(t *testing.T) {
	client := newClient(t, config.AuthServer{IssuerURL: "http://as.local/"})

	endpoints, err := client.Endpoints(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "http://as.local/authorize", endpoints.Authorize)
	assert.Equal(t, "http://as.local/token", endpoints.Token)
}

func TestEndpointsDiscoveryCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/.well-known/openid-configuration", r.URL.Path)
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 srvURL(r),
			"authorization_endpoint": srvURL(r) + "/oauth2/authorize",
			"token_endpoint":         srvURL(r) + "/oauth2/token",
		})
	}))
	defer srv.Close()

	client := newClient(t, config.AuthServer{
		IssuerURL:       srv.URL,
		Discover:        true,
		AllowHTTPScheme: true,
	})

	for range 2 {
		endpoints, err := client.Endpoints(t.Context())
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/oauth2/authorize", endpoints.Authorize)
		assert.Equal(t, srv.URL+"/oauth2/token", endpoints.Token)
	}

	assert.Equal(t, int32(1), hits.Load(), "second call must come from the cache")
}

func srvURL(r *http.Request) string {
	return "http://" + r.Host
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/token", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "authorization_code", body["grant_type"])
		assert.Equal(t, "code-123", body["code"])
		assert.Equal(t, "library-web", body["client_id"])
		assert.Equal(t, "http://client.local/oauth/callback", body["redirect_uri"])
		assert.Equal(t, "verifier-abc", body["code_verifier"])

		_ = json.NewEncoder(w).Encode(authserver.TokenResponse{
			AccessToken:  "at",
			RefreshToken: "rt",
			IDToken:      "idt",
			TokenType:    "Bearer",
			ExpiresIn:    900,
			Scope:        "read create",
		})
	}))
	defer srv.Close()

	client := newClient(t, config.AuthServer{IssuerURL: srv.URL})

	tokens, err := client.ExchangeCode(t.Context(), "code-123", "verifier-abc")
	require.NoError(t, err)

	assert.Equal(t, "at", tokens.AccessToken)
	assert.Equal(t, "rt", tokens.RefreshToken)
	assert.Equal(t, "idt", tokens.IDToken)
	assert.Equal(t, 900, tokens.ExpiresIn)
	assert.Equal(t, "read create", tokens.Scope)
}

func TestExchangeCodeInvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	client := newClient(t, config.AuthServer{IssuerURL: srv.URL})

	_, err := client.ExchangeCode(t.Context(), "stale-code", "verifier")
	require.Error(t, err)

	var oauthErr *authserver.OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, serviceerr.CodeInvalidGrant, oauthErr.Code)
	assert.Equal(t, "code expired", oauthErr.Description)
	assert.Equal(t, http.StatusBadRequest, oauthErr.Status)
}

func TestRefreshSingleFlight(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		cookie, err := r.Cookie("refresh_token")
		require.NoError(t, err)
		assert.Equal(t, "rt-1", cookie.Value)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh_token", body["grant_type"])

		time.Sleep(50 * time.Millisecond) // keep callers overlapping
		_ = json.NewEncoder(w).Encode(authserver.TokenResponse{
			AccessToken: "at-new", TokenType: "Bearer", ExpiresIn: 900,
		})
	}))
	defer srv.Close()

	client := newClient(t, config.AuthServer{IssuerURL: srv.URL})

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens, err := client.Refresh(t.Context(), "rt-1")
			assert.NoError(t, err)
			assert.Equal(t, "at-new", tokens.AccessToken)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load(), "concurrent refreshes must share one request")
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["password"] != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"invalid credentials"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "as_session", Value: "s-1", HttpOnly: true})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newClient(t, config.AuthServer{IssuerURL: srv.URL, LoginPath: "/auth/login"})

	t.Run("success relays cookies", func(t *testing.T) {
		cookies, err := client.Login(t.Context(), "reader@example.com", "correct")
		require.NoError(t, err)
		require.Len(t, cookies, 1)
		assert.Equal(t, "as_session", cookies[0].Name)
		assert.Equal(t, "s-1", cookies[0].Value)
	})

	t.Run("failure surfaces detail", func(t *testing.T) {
		_, err := client.Login(t.Context(), "reader@example.com", "wrong")
		require.Error(t, err)

		var oauthErr *authserver.OAuthError
		require.ErrorAs(t, err, &oauthErr)
		assert.Equal(t, "invalid credentials", oauthErr.Description)
		assert.True(t, authserver.IsUnauthorized(err))
	})
}

func TestConsentData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/authorize/consent-data", r.URL.Path)
		require.Equal(t, "c-42", r.URL.Query().Get("consent_id"))

		if _, err := r.Cookie("as_session"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(authserver.ConsentData{
			ClientName: "Library Web",
			Scopes:     []string{"read", "create"},
			UserEmail:  "reader@example.com",
		})
	}))
	defer srv.Close()

	client := newClient(t, config.AuthServer{IssuerURL: srv.URL})

	t.Run("authenticated", func(t *testing.T) {
		data, err := client.ConsentData(t.Context(), "c-42",
			[]*http.Cookie{{Name: "as_session", Value: "s-1"}})
		require.NoError(t, err)
		assert.Equal(t, "Library Web", data.ClientName)
		assert.Equal(t, []string{"read", "create"}, data.Scopes)
		assert.Equal(t, "reader@example.com", data.UserEmail)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := client.ConsentData(t.Context(), "c-42", nil)
		require.Error(t, err)
		assert.True(t, authserver.IsUnauthorized(err))
	})
}

func TestSubmitConsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/authorize/consent", r.URL.Path)

		var decision authserver.ConsentDecision
		require.NoError(t, json.NewDecoder(r.Body).Decode(&decision))
		assert.Equal(t, "c-42", decision.ConsentID)
		assert.True(t, decision.Approved)
		assert.Equal(t, []string{"read"}, decision.ApprovedScopes, "subset of requested scopes")

		_ = json.NewEncoder(w).Encode(map[string]string{
			"redirect_url": "http://client.local/oauth/callback?code=c&state=s",
		})
	}))
	defer srv.Close()

	client := newClient(t, config.AuthServer{IssuerURL: srv.URL})

	redirect, err := client.SubmitConsent(t.Context(), authserver.ConsentDecision{
		ConsentID:      "c-42",
		Approved:       true,
		ApprovedScopes: []string{"read"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://client.local/oauth/callback?code=c&state=s", redirect)
}

func TestRevokeTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token/revoke", r.URL.Path)

		access, err := r.Cookie("access_token")
		require.NoError(t, err)
		assert.Equal(t, "at", access.Value)
		refresh, err := r.Cookie("refresh_token")
		require.NoError(t, err)
		assert.Equal(t, "rt", refresh.Value)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newClient(t, config.AuthServer{IssuerURL: srv.URL})

	require.NoError(t, client.RevokeTokens(t.Context(), "at", "rt"))
}
