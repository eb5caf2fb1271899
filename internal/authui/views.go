package authui

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type loginView struct {
	Error       string
	Email       string
	ReturnTo    string
	OAuthParams string
	CSRFToken   string
}

type consentView struct {
	Error      string
	ConsentID  string
	ClientName string
	UserEmail  string
	Scopes     []scopeView
	CSRFToken  string
}

type scopeView struct {
	Name        string
	Description string
	Checked     bool
}

type errorView struct {
	Title   string
	Message string
}

// scopeDescriptions translates scope identifiers into the consent dialog's
// human wording. Unknown scopes fall back to the identifier itself so a new
// scope never renders blank.
var scopeDescriptions = map[string]string{
	"read":   "View your projects",
	"create": "Create projects on your behalf",
	"update": "Edit your existing projects",
	"delete": "Delete your projects",
}

func describeScopes(names []string) []scopeView {
	views := make([]scopeView, 0, len(names))
	for _, name := range names {
		description, ok := scopeDescriptions[name]
		if !ok {
			description = "Additional access: " + name
		}
		views = append(views, scopeView{
			Name:        name,
			Description: description,
			Checked:     true,
		})
	}
	return views
}
