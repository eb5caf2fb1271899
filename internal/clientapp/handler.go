// Package clientapp serves the relying-party web application: the public
// landing page, the authorization entry and callback routes, and the
// session-gated project pages backed by the resource server.
package clientapp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	slogctx "github.com/veqryn/slog-context"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/config"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/gate"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/projects"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/serviceerr"
	"github.com/guilherme-hl1ma/project-library-oauth/pkg/fingerprint"
)

const (
	authorizePath = "/oauth/authorize"
	callbackPath  = "/oauth/callback"
)

type Handler struct {
	manager  *flow.Manager
	projects *projects.Client
	gate     *gate.Gate

	sessionCookie config.CookieTemplate
	idTokenCookie config.CookieTemplate
}

func NewHandler(cfg *config.Client, manager *flow.Manager, projectsClient *projects.Client, g *gate.Gate) *Handler {
	sessionCookie := cfg.SessionCookieTemplate
	if sessionCookie.Name == "" {
		sessionCookie.Name = "session_id"
	}
	idTokenCookie := cfg.IDTokenCookieTemplate
	if idTokenCookie.Name == "" {
		idTokenCookie.Name = "id_token"
	}

	return &Handler{
		manager:       manager,
		projects:      projectsClient,
		gate:          g,
		sessionCookie: sessionCookie,
		idTokenCookie: idTokenCookie,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.home)
	r.Get("/login", h.login)
	r.Get(authorizePath, h.authorize)
	r.Get(callbackPath, h.callback)
	r.Post("/logout", h.logout)
	r.Post("/logout/full", h.logoutFull)

	r.Group(func(r chi.Router) {
		r.Use(h.gate.Middleware)
		r.Get("/projects", h.listProjects)
		r.Post("/projects", h.createProject)
		r.Post("/projects/{id}/delete", h.deleteProject)
	})

	return r
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	view := homeView{}
	if session, err := h.sessionFromRequest(r); err == nil {
		view.SignedIn = true
		view.Email = session.Claims.Email
	}
	h.render(w, "home.html", view, http.StatusOK)
}

// login restarts authorization from scratch. The authorization server owns
// the credential prompt, so a fresh flow is the closest thing to "go back to
// the login form" this origin can offer.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, authorizePath, http.StatusFound)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fp, err := fingerprint.FromHTTPRequest(r)
	if err != nil {
		slogctx.Warn(ctx, "Computing request fingerprint failed", "error", err)
	}

	authURI, err := h.manager.Begin(ctx, r.URL.Query().Get("next"), fp)
	if err != nil {
		if errors.Is(err, serviceerr.ErrConfig) {
			h.renderError(w, "Configuration error",
				"The application's OAuth client is not configured. Contact the site operator.",
				http.StatusInternalServerError)
			return
		}
		slogctx.Error(ctx, "Starting authorization flow failed", "error", err)
		h.renderError(w, "Authorization unavailable",
			"The sign-in flow could not be started. Please try again shortly.",
			http.StatusBadGateway)
		return
	}

	http.Redirect(w, r, authURI, http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fp, err := fingerprint.FromHTTPRequest(r)
	if err != nil {
		slogctx.Warn(ctx, "Computing request fingerprint failed", "error", err)
	}

	result := h.manager.HandleCallback(ctx, r.URL.Query(), fp)
	if result.Failure != nil {
		url, name := retryURL(result.Failure.Retry)
		h.render(w, "callback_error.html", callbackErrorView{
			Message:   result.Failure.Message,
			Code:      string(result.Failure.Code),
			Countdown: result.Failure.Countdown,
			RetryURL:  url,
			RetryName: name,
		}, http.StatusBadRequest)
		return
	}

	http.SetCookie(w, h.sessionCookie.ToCookie(result.Session.ID))
	if result.Session.IDToken != "" {
		http.SetCookie(w, h.idTokenCookie.ToCookie(result.Session.IDToken))
	}

	h.render(w, "callback_success.html", callbackSuccessView{
		RedirectTo: result.RedirectTo,
	}, http.StatusOK)
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	h.renderProjects(w, r, "")
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, _ := gate.SessionFromContext(ctx)

	if err := r.ParseForm(); err != nil {
		h.renderProjects(w, r, "The submitted form could not be read.")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		h.renderProjects(w, r, "A project needs a name.")
		return
	}

	_, err := h.projects.Create(ctx, session, projects.Project{
		Name:        name,
		Description: strings.TrimSpace(r.FormValue("description")),
	})
	if err != nil {
		h.renderProjects(w, r, actionError("create", err))
		return
	}

	http.Redirect(w, r, "/projects", http.StatusSeeOther)
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, _ := gate.SessionFromContext(ctx)

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.renderProjects(w, r, "Unknown project.")
		return
	}

	if err := h.projects.Delete(ctx, session, id); err != nil {
		h.renderProjects(w, r, actionError("delete", err))
		return
	}

	http.Redirect(w, r, "/projects", http.StatusSeeOther)
}

func (h *Handler) renderProjects(w http.ResponseWriter, r *http.Request, actionErr string) {
	ctx := r.Context()
	session, _ := gate.SessionFromContext(ctx)

	view := projectsView{
		Email:  session.Claims.Email,
		Scopes: session.GrantedScopes,
		Error:  actionErr,
	}

	list, err := h.projects.List(ctx, session)
	if err != nil {
		if view.Error == "" {
			view.Error = actionError("list", err)
		}
		slogctx.Error(ctx, "Listing projects failed", "error", err)
	}
	view.Projects = list

	h.render(w, "projects.html", view, http.StatusOK)
}

// actionError turns a resource-server failure into a message for the page.
// A missing scope is the user's own grant decision, so it gets a precise
// explanation rather than a generic failure.
func actionError(action string, err error) string {
	if errors.Is(err, projects.ErrScopeMissing) {
		return "You did not grant permission to " + action + " projects. Sign in again and approve the \"" + action + "\" permission to use this action."
	}
	return "Could not " + action + " projects right now. Please try again."
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.endSession(w, r, false)
}

// logoutFull also revokes the consent grant on the authorization server, so
// the next authorization prompts for approval again.
func (h *Handler) logoutFull(w http.ResponseWriter, r *http.Request) {
	h.endSession(w, r, true)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request, revokeConsent bool) {
	ctx := r.Context()

	if cookie, err := r.Cookie(h.sessionCookie.Name); err == nil && cookie.Value != "" {
		if err := h.manager.Logout(ctx, cookie.Value, revokeConsent); err != nil {
			slogctx.Warn(ctx, "Logout cleanup failed", "error", err)
		}
	}

	http.SetCookie(w, h.sessionCookie.Expire())
	http.SetCookie(w, h.idTokenCookie.Expire())
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) sessionFromRequest(r *http.Request) (flow.Session, error) {
	cookie, err := r.Cookie(h.sessionCookie.Name)
	if err != nil || cookie.Value == "" {
		return flow.Session{}, http.ErrNoCookie
	}
	return h.manager.Session(r.Context(), cookie.Value)
}

func (h *Handler) render(w http.ResponseWriter, name string, view any, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, view); err != nil {
		slogctx.Error(context.Background(), "Rendering template failed", "template", name, "error", err)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, title, message string, status int) {
	h.render(w, "error.html", errorView{Title: title, Message: message}, status)
}
