// Package authserver is the HTTP client for the authorization server: code
// exchange, token refresh, login, consent, revocation and the identity probe.
package authserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openkcm/common-sdk/pkg/oidc"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/config"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/serviceerr"
)

const wkocPrefix = "wkoc_"

// Client talks to one authorization server. It is safe for concurrent use;
// refreshes for the same refresh token are collapsed into a single request.
type Client struct {
	cfg         config.AuthServer
	clientID    string
	redirectURI string

	httpClient *http.Client
	cache      *gocache.Cache
	refreshing singleflight.Group
}

func NewClient(cfg config.AuthServer, clientID, redirectURI string) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:         cfg,
		clientID:    clientID,
		redirectURI: redirectURI,
		httpClient:  &http.Client{Timeout: timeout},
		cache:       gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Endpoints resolves the authorize and token endpoint URLs. Explicit
// configuration wins; otherwise the issuer's well-known configuration is
// fetched and cached, falling back to conventional paths when discovery is
// disabled.
func (c *Client) Endpoints(ctx context.Context) (Endpoints, error) {
	endpoints := Endpoints{
		Authorize: c.cfg.AuthorizeEndpoint,
		Token:     c.cfg.TokenEndpoint,
	}
	if endpoints.Authorize != "" && endpoints.Token != "" {
		return endpoints, nil
	}

	if c.cfg.Discover {
		conf, err := c.getOpenIDConfig(ctx)
		if err != nil {
			return Endpoints{}, fmt.Errorf("getting an openid config: %w", err)
		}
		if endpoints.Authorize == "" {
			endpoints.Authorize = conf.AuthorizationEndpoint
		}
		if endpoints.Token == "" {
			endpoints.Token = conf.TokenEndpoint
		}
		return endpoints, nil
	}

	issuer := strings.TrimSuffix(c.cfg.IssuerURL, "/")
	if endpoints.Authorize == "" {
		endpoints.Authorize = issuer + defaultAuthorizePath
	}
	if endpoints.Token == "" {
		endpoints.Token = issuer + defaultTokenPath
	}
	return endpoints, nil
}

func (c *Client) getOpenIDConfig(ctx context.Context) (*oidc.Configuration, error) {
	// first check the cache for a recent WKOC configuration for this issuer
	cacheKey := wkocPrefix + c.cfg.IssuerURL
	cached, ok := c.cache.Get(cacheKey)
	if ok {
		//nolint:forcetypeassert
		return cached.(*oidc.Configuration), nil
	}

	// otherwise, fetch the configuration and cache it
	provider, err := oidc.NewProvider(c.cfg.IssuerURL, []string{},
		oidc.WithAllowHttpScheme(c.cfg.AllowHTTPScheme))
	if err != nil {
		return nil, err
	}
	conf, err := provider.GetConfiguration(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey, conf, 0)

	return conf, nil
}

// ExchangeCode redeems an authorization code at the token endpoint. The PKCE
// verifier proves this client started the flow.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (TokenResponse, error) {
	endpoints, err := c.Endpoints(ctx)
	if err != nil {
		return TokenResponse{}, err
	}

	body := map[string]string{
		"grant_type":    GrantTypeAuthorizationCode,
		"code":          code,
		"redirect_uri":  c.redirectURI,
		"client_id":     c.clientID,
		"code_verifier": verifier,
	}

	var tokens TokenResponse
	err = c.postJSON(ctx, endpoints.Token, body, nil, &tokens)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("exchanging code for tokens: %w", err)
	}
	return tokens, nil
}

// Refresh redeems a refresh token for a new token set. Concurrent calls with
// the same refresh token share one request and one result.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	result, err, _ := c.refreshing.Do(refreshToken, func() (any, error) {
		endpoints, err := c.Endpoints(ctx)
		if err != nil {
			return TokenResponse{}, err
		}

		body := map[string]string{"grant_type": GrantTypeRefreshToken}
		cookies := []*http.Cookie{{Name: RefreshTokenCookie, Value: refreshToken}}

		var tokens TokenResponse
		err = c.postJSON(ctx, endpoints.Token, body, cookies, &tokens)
		if err != nil {
			return TokenResponse{}, fmt.Errorf("refreshing tokens: %w", err)
		}
		return tokens, nil
	})
	if err != nil {
		return TokenResponse{}, err
	}
	//nolint:forcetypeassert
	return result.(TokenResponse), nil
}

// Login authenticates a user with the authorization server and returns the
// cookies it set, for relaying back to the browser.
func (c *Client) Login(ctx context.Context, email, password string) ([]*http.Cookie, error) {
	resp, err := c.do(ctx, http.MethodPost, c.issuerURL(c.cfg.LoginPath),
		loginRequest{Email: email, Password: password}, nil)
	if err != nil {
		return nil, fmt.Errorf("executing login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}
	return resp.Cookies(), nil
}

// ConsentData loads the pending consent request identified by consentID. The
// caller's cookies carry the user's authentication with the authorization
// server.
func (c *Client) ConsentData(ctx context.Context, consentID string, cookies []*http.Cookie) (ConsentData, error) {
	u := c.issuerURL(consentDataPath) + "?consent_id=" + url.QueryEscape(consentID)

	var data ConsentData
	err := c.getJSON(ctx, u, cookies, &data)
	if err != nil {
		return ConsentData{}, fmt.Errorf("getting consent data: %w", err)
	}
	return data, nil
}

// SubmitConsent posts the user's decision and returns the URL the browser
// should be sent to. On denial the URL carries error=access_denied back to
// the client's callback.
func (c *Client) SubmitConsent(ctx context.Context, decision ConsentDecision, cookies []*http.Cookie) (string, error) {
	var redirect consentRedirect
	err := c.postJSON(ctx, c.issuerURL(consentDecisionPath), decision, cookies, &redirect)
	if err != nil {
		return "", fmt.Errorf("submitting consent decision: %w", err)
	}
	return redirect.RedirectURL, nil
}

// Identity probes the identity endpoint with the given token cookies.
func (c *Client) Identity(ctx context.Context, cookies []*http.Cookie) (Identity, error) {
	var id Identity
	err := c.getJSON(ctx, c.issuerURL(c.cfg.IdentityPath), cookies, &id)
	if err != nil {
		return Identity{}, fmt.Errorf("probing identity endpoint: %w", err)
	}
	return id, nil
}

// RevokeTokens invalidates the session's tokens on the authorization server.
func (c *Client) RevokeTokens(ctx context.Context, accessToken, refreshToken string) error {
	cookies := tokenCookies(accessToken, refreshToken)
	err := c.postJSON(ctx, c.issuerURL(tokenRevokePath), struct{}{}, cookies, nil)
	if err != nil {
		return fmt.Errorf("revoking tokens: %w", err)
	}
	return nil
}

// RevokeConsent withdraws the user's consent for this client, so the next
// authorization request shows the consent dialog again.
func (c *Client) RevokeConsent(ctx context.Context, accessToken, refreshToken string) error {
	cookies := tokenCookies(accessToken, refreshToken)
	err := c.postJSON(ctx, c.issuerURL(consentRevokePath), struct{}{}, cookies, nil)
	if err != nil {
		return fmt.Errorf("revoking consent: %w", err)
	}
	return nil
}

func tokenCookies(accessToken, refreshToken string) []*http.Cookie {
	cookies := make([]*http.Cookie, 0, 2)
	if accessToken != "" {
		cookies = append(cookies, &http.Cookie{Name: AccessTokenCookie, Value: accessToken})
	}
	if refreshToken != "" {
		cookies = append(cookies, &http.Cookie{Name: RefreshTokenCookie, Value: refreshToken})
	}
	return cookies
}

func (c *Client) issuerURL(path string) string {
	return strings.TrimSuffix(c.cfg.IssuerURL, "/") + path
}

func (c *Client) do(ctx context.Context, method, url string, body any, cookies []*http.Cookie) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	return c.httpClient.Do(req)
}

func (c *Client) getJSON(ctx context.Context, url string, cookies []*http.Cookie, out any) error {
	resp, err := c.do(ctx, http.MethodGet, url, nil, cookies)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, body any, cookies []*http.Cookie, out any) error {
	resp, err := c.do(ctx, http.MethodPost, url, body, cookies)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeError turns a non-2xx response into an *OAuthError. The server's
// payload is either RFC 6749 {error, error_description} or {detail}; anything
// else maps to the status text.
func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	oauthErr := &OAuthError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, oauthErr); err == nil && oauthErr.Code != "" {
		return oauthErr
	}

	var detail loginError
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
		return &OAuthError{
			Code:        codeForStatus(resp.StatusCode),
			Description: detail.Detail,
			Status:      resp.StatusCode,
		}
	}

	return &OAuthError{
		Code:        codeForStatus(resp.StatusCode),
		Description: http.StatusText(resp.StatusCode),
		Status:      resp.StatusCode,
	}
}

func codeForStatus(status int) serviceerr.Code {
	switch {
	case status == http.StatusUnauthorized:
		return serviceerr.CodeInvalidClient
	case status >= 500:
		return serviceerr.CodeServerError
	default:
		return serviceerr.CodeInvalidRequest
	}
}

// IsUnauthorized reports whether err is an authorization server response with
// status 401.
func IsUnauthorized(err error) bool {
	var oauthErr *OAuthError
	return errors.As(err, &oauthErr) && oauthErr.Status == http.StatusUnauthorized
}
