package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"sales-dashboard/internal/auth"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/ui/templates"
)

// Version is reported by the health endpoint. Set it with -ldflags.
var Version = "dev"

// PageHandlers serve the HTML pages and the session cookie endpoints.
type PageHandlers struct {
	auth       *auth.Authenticator
	workspaces *services.Workspaces
	logger     *slog.Logger
}

func NewPageHandlers(authenticator *auth.Authenticator, workspaces *services.Workspaces, logger *slog.Logger) *PageHandlers {
	return &PageHandlers{
		auth:       authenticator,
		workspaces: workspaces,
		logger:     logger,
	}
}

func (h *PageHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	ws, err := workspaceFor(r, h.workspaces)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	h.render(w, r, http.StatusOK, templates.Dashboard(templates.DashboardData{
		Nav:     templates.Navigation("/"),
		Email:   ws.Session().Email,
		Filters: ws.Filters(),
	}))
}

func (h *PageHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	ws, err := workspaceFor(r, h.workspaces)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	h.render(w, r, http.StatusOK, templates.ForecastPage(templates.ForecastPageData{
		Nav:   templates.Navigation("/forecast"),
		View:  ws.Forecast(),
		Query: ws.Query(),
	}))
}

func (h *PageHandlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, templates.Login(templates.LoginData{
		Expired: r.URL.Query().Get("expired") != "",
		Next:    safeNext(r.URL.Query().Get("next")),
	}))
}

// HandleSession stores an identity provider token in the session cookie.
func (h *PageHandlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.loginFailed(w, r, "", errors.BadRequestWrap(err, "Invalid form submission"))
		return
	}
	next := safeNext(r.PostForm.Get("next"))

	session, err := h.auth.Parse(strings.TrimSpace(r.PostForm.Get("token")))
	if err != nil {
		h.loginFailed(w, r, next, err)
		return
	}

	h.auth.SetCookie(w, r, session)
	h.workspaces.Get(session)
	h.logger.Info("session started", "subject", session.Subject)

	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *PageHandlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if session, err := h.auth.FromRequest(r); err == nil {
		h.workspaces.Drop(session.Subject)
		h.logger.Info("session ended", "subject", session.Subject)
	}
	h.auth.ClearCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *PageHandlers) loginFailed(w http.ResponseWriter, r *http.Request, next string, err error) {
	h.logger.Warn("login rejected", "error", err)
	h.render(w, r, http.StatusUnauthorized, templates.Login(templates.LoginData{
		Error: errors.UserMessage(err),
		Next:  next,
	}))
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		h.logger.Error("render page", "path", r.URL.Path, "error", err)
	}
}

// safeNext keeps redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
