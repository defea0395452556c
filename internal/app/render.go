package app

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/cam3ron2/gh-dashboard/internal/auth"
	"github.com/cam3ron2/gh-dashboard/internal/dashboard"
	"github.com/cam3ron2/gh-dashboard/internal/normalize"
	"github.com/cam3ron2/gh-dashboard/internal/region"
	"github.com/cam3ron2/gh-dashboard/internal/selector"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"compact": normalize.Compact,
		"pct": func(v float64) string {
			return strconv.FormatFloat(v, 'f', 1, 64)
		},
	}
	tmpl, err := template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

type indexData struct {
	Title       string
	Auth        auth.State
	Query       string
	SearchQuery string
	// Results is set once a user search ran.
	Results *statsapi.UserSearch
	Message string
}

type errorData struct {
	Title   string
	Auth    auth.State
	Message string
}

type dashboardData struct {
	Title        string
	Auth         auth.State
	View         dashboard.View
	Years        []int
	Visibilities []selector.Visibility
	ViewModes    []selector.ViewMode
	StatModes    []selector.StatMode
}

type rankingsData struct {
	Title  string
	Auth   auth.State
	Region region.View
}

// render buffers the whole page so a template failure never leaves a half-written body.
func (rt *Runtime) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := rt.templates.ExecuteTemplate(&buf, name, data); err != nil {
		rt.logger.Error("render template failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		return
	}
}

func (rt *Runtime) renderError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	rt.render(w, status, "error.html", errorData{
		Title:   title,
		Auth:    rt.authState(r),
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		if _, writeErr := w.Write([]byte(`{"error":"marshal response"}`)); writeErr != nil {
			return
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:gosec // Response payload is server-generated JSON.
	if _, err := w.Write(body); err != nil {
		return
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
