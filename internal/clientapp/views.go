package clientapp

import (
	"embed"
	"html/template"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/projects"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type homeView struct {
	SignedIn bool
	Email    string
}

type projectsView struct {
	Email    string
	Projects []projects.Project
	Scopes   []string
	Error    string
}

type callbackSuccessView struct {
	RedirectTo string
}

type callbackErrorView struct {
	Message   string
	Code      string
	Countdown int
	RetryURL  string
	RetryName string
}

type errorView struct {
	Title   string
	Message string
}

// retryURL maps a failure's retry target onto this application's routes.
func retryURL(target flow.RetryTarget) (url, name string) {
	if target == flow.RetryAuthorize {
		return "/oauth/authorize", "Try Again"
	}
	return "/login", "Back to Login"
}
