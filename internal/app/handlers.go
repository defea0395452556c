package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/cam3ron2/gh-dashboard/internal/auth"
	"github.com/cam3ron2/gh-dashboard/internal/dashboard"
	"github.com/cam3ron2/gh-dashboard/internal/selector"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	pageCookieName = "ghd_page"
	// authCookieName remembers the backend session token so a browser stays signed in when
	// its page expires.
	authCookieName = "ghd_auth"
)

func (rt *Runtime) routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/", Name: "index", Handler: http.HandlerFunc(rt.handleIndex)},
		{Method: http.MethodGet, Pattern: "/search", Name: "search", Handler: http.HandlerFunc(rt.handleSearch)},
		{Method: http.MethodGet, Pattern: "/u/{username}", Name: "dashboard", Handler: http.HandlerFunc(rt.handleDashboard)},
		{Method: http.MethodGet, Pattern: "/rankings", Name: "rankings", Handler: http.HandlerFunc(rt.handleRankings)},
		{Method: http.MethodPost, Pattern: "/widgets/{widget}/retry", Name: "widget_retry", Handler: http.HandlerFunc(rt.handleWidgetRetry)},
		{Method: http.MethodGet, Pattern: "/auth/login", Name: "auth_login", Handler: http.HandlerFunc(rt.handleLogin)},
		{Method: http.MethodGet, Pattern: "/auth/callback", Name: "auth_callback", Handler: http.HandlerFunc(rt.handleLoginCallback)},
		{Method: http.MethodPost, Pattern: "/auth/logout", Name: "auth_logout", Handler: http.HandlerFunc(rt.handleLogout)},

		{Method: http.MethodGet, Pattern: "/api/auth", Name: "api_auth", Handler: http.HandlerFunc(rt.handleAPIAuth)},
		{Method: http.MethodGet, Pattern: "/api/users/search", Name: "api_user_search", Handler: http.HandlerFunc(rt.handleAPIUserSearch)},
		{Method: http.MethodPost, Pattern: "/api/pages", Name: "api_page_create", Handler: http.HandlerFunc(rt.handleAPICreatePage)},
		{Method: http.MethodGet, Pattern: "/api/pages/{id}", Name: "api_page_get", Handler: http.HandlerFunc(rt.handleAPIGetPage)},
		{Method: http.MethodDelete, Pattern: "/api/pages/{id}", Name: "api_page_delete", Handler: http.HandlerFunc(rt.handleAPIDeletePage)},
		{Method: http.MethodPut, Pattern: "/api/pages/{id}/selector", Name: "api_page_selector", Handler: http.HandlerFunc(rt.handleAPISetSelector)},
		{Method: http.MethodPost, Pattern: "/api/pages/{id}/widgets/{widget}/retry", Name: "api_widget_retry", Handler: http.HandlerFunc(rt.handleAPIRetry)},
		{Method: http.MethodPost, Pattern: "/api/pages/{id}/region/{action}", Name: "api_region", Handler: http.HandlerFunc(rt.handleAPIRegion)},
		{Method: http.MethodGet, Pattern: "/api/users/{username}/{list}", Name: "api_user_list", Handler: http.HandlerFunc(rt.handleAPIUserList)},
	}
}

func (rt *Runtime) handleIndex(w http.ResponseWriter, r *http.Request) {
	rt.render(w, http.StatusOK, "index.html", indexData{
		Title: "Search",
		Auth:  rt.authState(r),
	})
}

// handleSearch jumps straight to a dashboard for ?username= and lists matching accounts
// for ?q=.
func (rt *Runtime) handleSearch(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	if values.Has("q") {
		rt.handleUserSearch(w, r, strings.TrimSpace(values.Get("q")))
		return
	}
	username := strings.TrimSpace(values.Get("username"))
	if username == "" {
		rt.render(w, http.StatusBadRequest, "index.html", indexData{
			Title:   "Search",
			Auth:    rt.authState(r),
			Message: "Enter a GitHub username.",
		})
		return
	}
	http.Redirect(w, r, "/u/"+url.PathEscape(username), http.StatusSeeOther)
}

func (rt *Runtime) handleUserSearch(w http.ResponseWriter, r *http.Request, query string) {
	data := indexData{
		Title:       "Search",
		Auth:        rt.authState(r),
		SearchQuery: query,
	}
	if query == "" {
		data.Message = "Enter a search term."
		rt.render(w, http.StatusBadRequest, "index.html", data)
		return
	}

	result, err := rt.stats.SearchUsers(rt.authorize(r), query)
	if err != nil {
		rt.logger.Warn("user search failed", zap.String("query", query), zap.Error(err))
		data.Message = searchFailureMessage(err)
		rt.render(w, http.StatusBadGateway, "index.html", data)
		return
	}
	data.Results = &result
	rt.render(w, http.StatusOK, "index.html", data)
}

func (rt *Runtime) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sel, err := selectorFromValues(chi.URLParam(r, "username"), r.URL.Query())
	if err != nil {
		rt.renderError(w, r, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	v, ok := rt.cookieVisitor(w, r)
	if !ok {
		return
	}
	if _, err := v.page.Apply(sel); err != nil {
		rt.renderError(w, r, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	rt.settle(r.Context(), v.page)

	rt.render(w, http.StatusOK, "dashboard.html", dashboardData{
		Title:        sel.Subject,
		Auth:         v.session.State(),
		View:         v.page.View(),
		Years:        selector.Years(rt.Now().Year()),
		Visibilities: []selector.Visibility{selector.VisibilityPublic, selector.VisibilityPrivate, selector.VisibilityAll},
		ViewModes:    []selector.ViewMode{selector.ViewHour, selector.ViewDay, selector.ViewMonth},
		StatModes:    []selector.StatMode{selector.StatTotal, selector.StatAverage},
	})
}

func (rt *Runtime) handleRankings(w http.ResponseWriter, r *http.Request) {
	v, ok := rt.cookieVisitor(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	rankings := v.page.Rankings()

	if query.Has("region") {
		rankings.LoadCandidates(r.Context())
		rankings.Select(selector.ParseRegion(query.Get("region")))
	} else {
		v.page.StartRankings(r.Context())
	}
	switch {
	case query.Has("dismiss"):
		rankings.Dismiss()
	case query.Has("open"):
		rankings.Open()
	}
	if query.Has("q") {
		rankings.Filter(query.Get("q"))
	}
	rt.settle(r.Context(), v.page)

	rt.render(w, http.StatusOK, "rankings.html", rankingsData{
		Title:  "Rankings",
		Auth:   v.session.State(),
		Region: rankings.View(),
	})
}

func (rt *Runtime) handleWidgetRetry(w http.ResponseWriter, r *http.Request) {
	v, ok := rt.cookieVisitor(w, r)
	if !ok {
		return
	}
	if _, err := v.page.Retry(chi.URLParam(r, "widget")); err != nil {
		rt.renderError(w, r, http.StatusNotFound, "Unknown widget", err.Error())
		return
	}
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

func (rt *Runtime) handleLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, rt.auth.LoginURL(), http.StatusFound)
}

// handleLoginCallback adopts the backend session handed back after OAuth, either as a query
// parameter or as the backend's own cookie when both share a domain. Only the caller's page
// is signed in.
func (rt *Runtime) handleLoginCallback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get(statsapi.SessionCookieName)
	if token == "" {
		token = cookieValue(r, statsapi.SessionCookieName)
	}
	v, ok := rt.cookieVisitor(w, r)
	if !ok {
		return
	}
	state, err := v.session.Complete(r.Context(), token)
	if err != nil {
		rt.renderError(w, r, http.StatusBadRequest, "Login failed", err.Error())
		return
	}
	rt.reapply(v)
	if !state.Authenticated {
		clearAuthCookie(w)
		rt.renderError(w, r, http.StatusUnauthorized, "Login failed", "The stats backend did not accept the session.")
		return
	}
	setAuthCookie(w, v.session.Token())
	http.Redirect(w, r, "/u/"+url.PathEscape(state.Username), http.StatusSeeOther)
}

// handleLogout signs out the caller's browser only. A caller without a live page but with a
// remembered token still has that token logged out at the backend.
func (rt *Runtime) handleLogout(w http.ResponseWriter, r *http.Request) {
	if v, ok := rt.existingVisitor(r); ok && v.session.Token() != "" {
		if err := v.session.Logout(r.Context()); err != nil {
			rt.logger.Warn("logout completed with backend error", zap.Error(err))
		}
		rt.reapply(v)
	} else if token := cookieValue(r, authCookieName); token != "" {
		if err := rt.auth.Logout(statsapi.WithSessionToken(r.Context(), token)); err != nil {
			rt.logger.Warn("logout of remembered session failed", zap.Error(err))
		}
	}
	clearAuthCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// visitor is the caller's page together with its login session.
type visitor struct {
	id      string
	page    *dashboard.Page
	session *auth.Session
}

// cookieVisitor resolves the caller's page from the page cookie, creating one when the
// cookie is missing or its page expired. A new page re-adopts the remembered login.
func (rt *Runtime) cookieVisitor(w http.ResponseWriter, r *http.Request) (visitor, bool) {
	id := cookieValue(r, pageCookieName)
	resolvedID, page, err := rt.registry.GetOrCreate(id)
	if err != nil {
		rt.logger.Warn("page unavailable", zap.Error(err))
		rt.renderError(w, r, http.StatusServiceUnavailable, "Unavailable", "The dashboard is shutting down.")
		return visitor{}, false
	}
	session, ok := rt.registry.Session(resolvedID)
	if !ok {
		rt.renderError(w, r, http.StatusServiceUnavailable, "Unavailable", "The page expired. Reload to continue.")
		return visitor{}, false
	}
	v := visitor{id: resolvedID, page: page, session: session}
	if resolvedID != id {
		setPageCookie(w, resolvedID)
		rt.restoreLogin(w, r, v)
	}
	return v, true
}

// existingVisitor resolves the caller's page without creating one.
func (rt *Runtime) existingVisitor(r *http.Request) (visitor, bool) {
	id := cookieValue(r, pageCookieName)
	if id == "" {
		return visitor{}, false
	}
	page, ok := rt.registry.Get(id)
	if !ok {
		return visitor{}, false
	}
	session, ok := rt.registry.Session(id)
	if !ok {
		return visitor{}, false
	}
	return visitor{id: id, page: page, session: session}, true
}

// authState is the caller's login state. Browsers without a live page are anonymous.
func (rt *Runtime) authState(r *http.Request) auth.State {
	if v, ok := rt.existingVisitor(r); ok {
		return v.session.State()
	}
	return auth.State{}
}

// authorize returns the request context carrying the caller's backend session, if any.
func (rt *Runtime) authorize(r *http.Request) context.Context {
	if v, ok := rt.existingVisitor(r); ok {
		return v.session.Authorize(r.Context())
	}
	return r.Context()
}

func (rt *Runtime) restoreLogin(w http.ResponseWriter, r *http.Request, v visitor) {
	token := cookieValue(r, authCookieName)
	if token == "" {
		return
	}
	state, err := v.session.Complete(r.Context(), token)
	if err != nil || !state.Authenticated {
		clearAuthCookie(w)
		return
	}
	rt.logger.Debug("login restored on new page", zap.String("page_id", v.id), zap.String("username", state.Username))
}

// reapply re-derives visibility on the visitor's page after its session changed.
func (rt *Runtime) reapply(v visitor) {
	if _, err := v.page.Reapply(); err != nil {
		rt.logger.Warn("reapply selector after auth change failed", zap.String("page_id", v.id), zap.Error(err))
	}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func searchFailureMessage(err error) string {
	var statusErr *statsapi.StatusError
	if errors.As(err, &statusErr) && statusErr.RateLimited() {
		return statusErr.Message
	}
	return "User search failed. Try again."
}

func setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func setPageCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     pageCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func selectorFromValues(username string, values url.Values) (selector.Selector, error) {
	sel := selector.New(username)
	year, err := selector.ParseYear(values.Get("year"))
	if err != nil {
		return selector.Selector{}, err
	}
	visibility, err := selector.ParseVisibility(values.Get("visibility"))
	if err != nil {
		return selector.Selector{}, err
	}
	viewMode, err := selector.ParseViewMode(values.Get("view"))
	if err != nil {
		return selector.Selector{}, err
	}
	statMode, err := selector.ParseStatMode(values.Get("stat"))
	if err != nil {
		return selector.Selector{}, err
	}
	sel = sel.WithYear(year).WithVisibility(visibility).WithViewMode(viewMode).WithStatMode(statMode)
	if err := sel.Validate(); err != nil {
		return selector.Selector{}, err
	}
	return sel, nil
}

// backTo returns the local path of the referring page.
func backTo(r *http.Request) string {
	referer, err := url.Parse(r.Referer())
	if err != nil || !strings.HasPrefix(referer.Path, "/") || strings.HasPrefix(referer.Path, "//") {
		return "/"
	}
	if referer.Host != "" && referer.Host != r.Host {
		return "/"
	}
	return referer.RequestURI()
}
