// Package api is the authenticated HTTP client for the resource server. It
// attaches the session's token cookies and transparently retries a request
// once after refreshing an expired access token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/authserver"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
)

// StatusError is a non-2xx resource server response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resource server returned %d", e.Status)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	manager    *flow.Manager

	// refreshing collapses concurrent refreshes for the same session into
	// one round trip to the authorization server
	refreshing singleflight.Group
}

func NewClient(baseURL string, manager *flow.Manager) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		manager:    manager,
	}
}

// Do executes an authenticated request. On a 401 it refreshes the session's
// tokens and retries exactly once; a second 401 is returned to the caller.
// The body is buffered up front so the retry replays it unchanged.
func (c *Client) Do(ctx context.Context, session flow.Session, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = encoded
	}

	resp, err := c.attempt(ctx, session, method, path, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	_ = resp.Body.Close()

	refreshed, err := c.refreshSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("refreshing session after 401: %w", err)
	}

	return c.attempt(ctx, refreshed, method, path, payload)
}

func (c *Client) attempt(ctx context.Context, session flow.Session, method, path string, payload []byte) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: authserver.AccessTokenCookie, Value: session.AccessToken})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func (c *Client) refreshSession(ctx context.Context, session flow.Session) (flow.Session, error) {
	result, err, shared := c.refreshing.Do(session.ID, func() (any, error) {
		// re-load first: another request may have refreshed already
		current, err := c.manager.Session(ctx, session.ID)
		if err != nil {
			return flow.Session{}, err
		}
		if current.AccessToken != session.AccessToken {
			return current, nil
		}
		return c.manager.Refresh(ctx, current)
	})
	if err != nil {
		return flow.Session{}, err
	}
	if shared {
		slogctx.Debug(ctx, "Shared an in-flight token refresh", "session_id", session.ID)
	}

	//nolint:forcetypeassert
	return result.(flow.Session), nil
}

// JSON executes Do and decodes a 2xx response body into out. Any other
// status comes back as a *StatusError carrying the response body.
func (c *Client) JSON(ctx context.Context, session flow.Session, method, path string, body, out any) error {
	resp, err := c.Do(ctx, session, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
