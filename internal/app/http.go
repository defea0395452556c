package app

import (
	"net/http"
	"strings"

	"github.com/cam3ron2/gh-dashboard/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerScope = "github.com/cam3ron2/gh-dashboard/internal/app"
	spanPrefix  = "gh-dashboard.http."
)

// Route is one dashboard endpoint. Name becomes the span suffix: "dashboard" is traced as
// "gh-dashboard.http.dashboard".
type Route struct {
	Method  string
	Pattern string
	Name    string
	Handler http.Handler
}

// NewHTTPHandler mounts the dashboard routes, the Prometheus scrape endpoint and the health
// checks on one router, traced according to the current telemetry mode.
func NewHTTPHandler(routes []Route, metricsHandler http.Handler, healthHandler http.Handler) http.Handler {
	return newRouter(routes, metricsHandler, healthHandler, routeTracer{
		mode:   telemetry.Current(),
		tracer: otel.Tracer(tracerScope),
	})
}

func newRouter(routes []Route, metricsHandler, healthHandler http.Handler, spans routeTracer) http.Handler {
	router := chi.NewRouter()
	for _, route := range routes {
		router.Method(route.Method, route.Pattern, spans.wrap(route, false))
	}

	operational := []Route{
		{Pattern: "/metrics", Name: "metrics", Handler: metricsHandler},
		{Pattern: "/livez", Name: "livez", Handler: healthHandler},
		{Pattern: "/readyz", Name: "readyz", Handler: healthHandler},
		{Pattern: "/healthz", Name: "healthz", Handler: healthHandler},
	}
	for _, route := range operational {
		router.Handle(route.Pattern, spans.wrap(route, true))
	}
	return router
}

// routeTracer starts one server span per request. Scrapes and health checks are only traced in
// detailed mode; they would otherwise drown the page requests.
type routeTracer struct {
	mode   telemetry.Mode
	tracer trace.Tracer
}

func (s routeTracer) wrap(route Route, operational bool) http.Handler {
	handler := route.Handler
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if !s.mode.Enabled() || (operational && !s.mode.Detailed()) || s.tracer == nil {
		return handler
	}

	name := strings.TrimSpace(route.Name)
	if name == "" {
		name = "unnamed"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), spanPrefix+name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route.Pattern),
				attribute.String("url.path", r.URL.Path),
				attribute.Bool("gh_dashboard.returning_visitor", hasCookie(r, pageCookieName)),
			),
		)
		defer span.End()

		out := &responseObserver{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(out, r.WithContext(ctx))

		span.SetAttributes(
			attribute.Int("http.response.status_code", out.status),
			attribute.Int64("http.response.body.size", out.written),
		)
		if out.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(out.status))
		}
	})
}

func hasCookie(r *http.Request, name string) bool {
	_, err := r.Cookie(name)
	return err == nil
}

// responseObserver records the status and body size a handler produced.
type responseObserver struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (w *responseObserver) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseObserver) Write(p []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseObserver) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
