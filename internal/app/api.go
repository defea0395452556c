package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cam3ron2/gh-dashboard/internal/auth"
	"github.com/cam3ron2/gh-dashboard/internal/dashboard"
	"github.com/cam3ron2/gh-dashboard/internal/githubapi"
	"github.com/cam3ron2/gh-dashboard/internal/region"
	"github.com/cam3ron2/gh-dashboard/internal/selector"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
	"github.com/cam3ron2/gh-dashboard/internal/widget"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 16

type selectorPayload struct {
	Subject    string `json:"subject"`
	Visibility string `json:"visibility,omitempty"`
	Year       int    `json:"year,omitempty"`
	View       string `json:"view,omitempty"`
	Stat       string `json:"stat,omitempty"`
}

type widgetPayload struct {
	Phase     widget.Phase `json:"phase"`
	Epoch     uint64       `json:"epoch"`
	Message   string       `json:"message,omitempty"`
	NotFound  bool         `json:"not_found,omitempty"`
	Retryable bool         `json:"retryable,omitempty"`
	Data      any          `json:"data,omitempty"`
}

type candidatePayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type regionPayload struct {
	Selection        string             `json:"selection"`
	DisplayName      string             `json:"display_name"`
	Open             bool               `json:"open"`
	FilterText       string             `json:"filter_text"`
	CandidatesLoaded bool               `json:"candidates_loaded"`
	Candidates       []candidatePayload `json:"candidates"`
	Ranking          widgetPayload      `json:"ranking"`
}

type pageResponse struct {
	ID                  string                   `json:"id"`
	Selector            *selectorPayload         `json:"selector,omitempty"`
	RequestedVisibility string                   `json:"requested_visibility,omitempty"`
	Owner               bool                     `json:"owner"`
	Widgets             map[string]widgetPayload `json:"widgets"`
	Region              regionPayload            `json:"region"`
}

type regionRequest struct {
	Region string `json:"region"`
	Filter string `json:"filter"`
}

type authPayload struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
}

// handleAPIAuth reports the caller's own login state.
func (rt *Runtime) handleAPIAuth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, authPayloadOf(rt.authState(r)))
}

func (rt *Runtime) handleAPIUserSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSONError(w, http.StatusBadRequest, "query parameter 'q' required")
		return
	}
	result, err := rt.stats.SearchUsers(rt.authorize(r), query)
	if err != nil {
		var statusErr *statsapi.StatusError
		if errors.As(err, &statusErr) {
			writeJSONError(w, statusErr.Status, statusErr.Message)
			return
		}
		rt.logger.Warn("user search failed", zap.String("query", query), zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "Failed to search users")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Runtime) handleAPICreatePage(w http.ResponseWriter, _ *http.Request) {
	id, page, err := rt.registry.Create()
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	setPageCookie(w, id)
	writeJSON(w, http.StatusCreated, pageResponseOf(id, page))
}

func (rt *Runtime) handleAPIGetPage(w http.ResponseWriter, r *http.Request) {
	id, page, ok := rt.apiPage(w, r)
	if !ok {
		return
	}
	if wantsWait(r) {
		rt.settle(r.Context(), page)
	}
	writeJSON(w, http.StatusOK, pageResponseOf(id, page))
}

func (rt *Runtime) handleAPIDeletePage(w http.ResponseWriter, r *http.Request) {
	if !rt.registry.Remove(chi.URLParam(r, "id")) {
		writeJSONError(w, http.StatusNotFound, "page not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Runtime) handleAPISetSelector(w http.ResponseWriter, r *http.Request) {
	id, page, ok := rt.apiPage(w, r)
	if !ok {
		return
	}

	var payload selectorPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "decode selector: "+err.Error())
		return
	}
	values := url.Values{}
	values.Set("visibility", payload.Visibility)
	values.Set("view", payload.View)
	values.Set("stat", payload.Stat)
	if payload.Year != 0 {
		values.Set("year", strconv.Itoa(payload.Year))
	}
	sel, err := selectorFromValues(payload.Subject, values)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := page.Apply(sel); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if wantsWait(r) {
		rt.settle(r.Context(), page)
	}
	writeJSON(w, http.StatusOK, pageResponseOf(id, page))
}

func (rt *Runtime) handleAPIRetry(w http.ResponseWriter, r *http.Request) {
	_, page, ok := rt.apiPage(w, r)
	if !ok {
		return
	}
	issued, err := page.Retry(chi.URLParam(r, "widget"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"issued": issued})
}

func (rt *Runtime) handleAPIRegion(w http.ResponseWriter, r *http.Request) {
	_, page, ok := rt.apiPage(w, r)
	if !ok {
		return
	}

	var payload regionRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&payload)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "decode region request: "+err.Error())
		return
	}

	rankings := page.Rankings()
	switch chi.URLParam(r, "action") {
	case "start":
		page.StartRankings(r.Context())
	case "open":
		rankings.Open()
	case "toggle":
		rankings.Toggle()
	case "dismiss":
		rankings.Dismiss()
	case "filter":
		rankings.Filter(payload.Filter)
	case "select":
		rankings.LoadCandidates(r.Context())
		rankings.Select(selector.ParseRegion(payload.Region))
	default:
		writeJSONError(w, http.StatusNotFound, "unknown region action")
		return
	}
	if wantsWait(r) {
		rt.settle(r.Context(), page)
	}
	writeJSON(w, http.StatusOK, regionPayloadOf(rankings.View()))
}

func (rt *Runtime) handleAPIUserList(w http.ResponseWriter, r *http.Request) {
	if rt.profiles == nil {
		writeJSONError(w, http.StatusNotFound, "github profiles are disabled")
		return
	}
	username := chi.URLParam(r, "username")

	var (
		list githubapi.UserList
		err  error
	)
	switch chi.URLParam(r, "list") {
	case "followers":
		list, err = rt.profiles.Followers(r.Context(), username)
	case "following":
		list, err = rt.profiles.Following(r.Context(), username)
	default:
		writeJSONError(w, http.StatusNotFound, "unknown user list")
		return
	}
	if err != nil {
		var statusErr *githubapi.StatusError
		if errors.As(err, &statusErr) {
			writeJSONError(w, statusErr.Status, statusErr.Message)
			return
		}
		rt.logger.Warn("github user list failed", zap.String("login", username), zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "Failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (rt *Runtime) apiPage(w http.ResponseWriter, r *http.Request) (string, *dashboard.Page, bool) {
	id := chi.URLParam(r, "id")
	page, ok := rt.registry.Get(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "page not found")
		return "", nil, false
	}
	return id, page, true
}

func wantsWait(r *http.Request) bool {
	wait, err := strconv.ParseBool(r.URL.Query().Get("wait"))
	return err == nil && wait
}

func pageResponseOf(id string, page *dashboard.Page) pageResponse {
	view := page.View()
	response := pageResponse{
		ID:    id,
		Owner: view.Owner,
		Widgets: map[string]widgetPayload{
			dashboard.WidgetContributions: widgetPayloadOf(view.Contributions),
			dashboard.WidgetCodeFrequency: widgetPayloadOf(view.CodeFrequency),
			dashboard.WidgetFunStats:      widgetPayloadOf(view.FunStats),
			dashboard.WidgetTopRepos:      widgetPayloadOf(view.TopRepos),
			dashboard.WidgetProfile:       widgetPayloadOf(view.Profile),
			dashboard.WidgetRank:          widgetPayloadOf(view.Rank),
		},
		Region: regionPayloadOf(view.Rankings),
	}
	if _, applied := page.Selector(); applied {
		response.Selector = &selectorPayload{
			Subject:    view.Selector.Subject,
			Visibility: string(view.Selector.Visibility),
			Year:       view.Selector.Year,
			View:       string(view.Selector.ViewMode),
			Stat:       string(view.Selector.StatMode),
		}
		response.RequestedVisibility = string(view.RequestedVisibility)
	}
	return response
}

func widgetPayloadOf[T any](view dashboard.WidgetView[T]) widgetPayload {
	payload := widgetPayload{
		Phase:     view.Phase,
		Epoch:     view.Epoch,
		Message:   view.Message,
		NotFound:  view.NotFound,
		Retryable: view.Retryable,
	}
	if view.Loaded() {
		payload.Data = view.Data
	}
	return payload
}

func regionPayloadOf(view region.View) regionPayload {
	payload := regionPayload{
		Selection:        string(view.Selection),
		DisplayName:      view.DisplayName,
		Open:             view.Open,
		FilterText:       view.FilterText,
		CandidatesLoaded: view.CandidatesLoaded,
		Candidates:       make([]candidatePayload, 0, len(view.Candidates)),
		Ranking: widgetPayload{
			Phase:     view.Ranking.Phase,
			Epoch:     view.Ranking.Epoch,
			Message:   view.Ranking.Message,
			NotFound:  view.Ranking.Kind == widget.KindNotFound,
			Retryable: view.Ranking.Kind == widget.KindTransient,
		},
	}
	for _, candidate := range view.Candidates {
		payload.Candidates = append(payload.Candidates, candidatePayload{Code: candidate.Code, Name: candidate.Name})
	}
	if view.Ranking.Loaded() {
		payload.Ranking.Data = view.Ranking.Data
	}
	return payload
}

func authPayloadOf(state auth.State) authPayload {
	return authPayload{
		Authenticated: state.Authenticated,
		Username:      state.Username,
		AvatarURL:     state.AvatarURL,
	}
}
