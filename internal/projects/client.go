// Package projects wraps the resource server's project endpoints, the
// protected data this application exists to show.
package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/api"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
)

// ErrScopeMissing means the session's granted scopes do not cover the
// attempted operation. The user approved a narrower grant than the client
// requested.
var ErrScopeMissing = errors.New("granted scopes do not allow this operation")

type Project struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Client struct {
	api *api.Client
}

func NewClient(apiClient *api.Client) *Client {
	return &Client{api: apiClient}
}

func (c *Client) List(ctx context.Context, session flow.Session) ([]Project, error) {
	var list []Project
	if err := c.api.JSON(ctx, session, http.MethodGet, "/projects", nil, &list); err != nil {
		return nil, wrapStatus("listing projects", err)
	}
	return list, nil
}

func (c *Client) Create(ctx context.Context, session flow.Session, project Project) (Project, error) {
	var created Project
	if err := c.api.JSON(ctx, session, http.MethodPost, "/projects", project, &created); err != nil {
		return Project{}, wrapStatus("creating project", err)
	}
	return created, nil
}

func (c *Client) Delete(ctx context.Context, session flow.Session, id int) error {
	path := fmt.Sprintf("/projects/%d", id)
	if err := c.api.JSON(ctx, session, http.MethodDelete, path, nil, nil); err != nil {
		return wrapStatus("deleting project", err)
	}
	return nil
}

// wrapStatus maps a 403 to ErrScopeMissing, keeping the server's detail
// message when it sent one.
func wrapStatus(op string, err error) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusForbidden {
		var payload struct {
			Detail string `json:"detail"`
		}
		if jsonErr := json.Unmarshal([]byte(statusErr.Body), &payload); jsonErr == nil && payload.Detail != "" {
			return fmt.Errorf("%s: %s: %w", op, payload.Detail, ErrScopeMissing)
		}
		return fmt.Errorf("%s: %w", op, ErrScopeMissing)
	}
	return fmt.Errorf("%s: %w", op, err)
}
