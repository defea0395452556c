package statsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultBackendBaseURL = "http://localhost:8080/"
	// SessionCookieName is the backend's session cookie.
	SessionCookieName = "session"

	rateLimitedMessage = "GitHub API rate limit exceeded. Please log in for higher limits."
)

// DataClient is a typed client for the statistics backend. It holds no session of its own;
// each request forwards the token carried by its context (see WithSessionToken).
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
	logger        *zap.Logger
}

// NewDataClient creates a typed data client over the generic retry/rate-limit request client.
func NewDataClient(baseURL string, requestClient *Client, logger ...*zap.Logger) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	resolvedLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		resolvedLogger = logger[0]
	}

	return &DataClient{
		baseURL:       parsed,
		requestClient: requestClient,
		logger:        resolvedLogger,
	}, nil
}

// Contributions reads the contribution calendar. Year 0 requests the trailing year.
func (c *DataClient) Contributions(ctx context.Context, login string, year int) (Contributions, error) {
	query := url.Values{}
	if year > 0 {
		query.Set("year", strconv.Itoa(year))
	}
	var payload Contributions
	err := c.getJSON(ctx, endpoint{
		op:       "contributions",
		notFound: "User not found",
		segments: []string{"api", "users", login, "contributions"},
		query:    query,
	}, &payload)
	return payload, err
}

// CodeFrequency reads weekly additions and deletions.
func (c *DataClient) CodeFrequency(ctx context.Context, login string, visibility string) (CodeFrequency, error) {
	var payload CodeFrequency
	err := c.getJSON(ctx, endpoint{
		op:       "code frequency",
		notFound: "User not found",
		segments: []string{"api", "users", login, "code-frequency"},
		query:    visibilityQuery(visibility),
	}, &payload)
	return payload, err
}

// FunStats reads the commit-timing summary.
func (c *DataClient) FunStats(ctx context.Context, login string, visibility string) (FunStats, error) {
	var payload FunStats
	err := c.getJSON(ctx, endpoint{
		op:       "fun stats",
		notFound: "User not found",
		segments: []string{"api", "users", login, "fun"},
		query:    visibilityQuery(visibility),
	}, &payload)
	return payload, err
}

// RepoCommits reads per-repository commit counts.
func (c *DataClient) RepoCommits(ctx context.Context, login string, visibility string) (RepoCommits, error) {
	var payload RepoCommits
	err := c.getJSON(ctx, endpoint{
		op:       "repository commits",
		notFound: "User not found",
		segments: []string{"api", "users", login, "repo-commits"},
		query:    visibilityQuery(visibility),
	}, &payload)
	return payload, err
}

// CountryRanking reads the ranking for one normalized country.
func (c *DataClient) CountryRanking(ctx context.Context, country string) (Ranking, error) {
	var payload Ranking
	err := c.getJSON(ctx, endpoint{
		op:       "country ranking",
		notFound: "Country not found",
		segments: []string{"api", "rankings", "country", country},
	}, &payload)
	if err != nil {
		return Ranking{}, err
	}
	if payload.Country == "" {
		payload.Country = country
	}
	return finishRanking(payload), nil
}

// GlobalRanking reads the global ranking. Limit <= 0 leaves the size to the backend.
func (c *DataClient) GlobalRanking(ctx context.Context, limit int) (Ranking, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var payload Ranking
	err := c.getJSON(ctx, endpoint{
		op:       "global ranking",
		segments: []string{"api", "rankings", "global"},
		query:    query,
	}, &payload)
	if err != nil {
		return Ranking{}, err
	}
	return finishRanking(payload), nil
}

// AvailableCountries reads the list of rankable countries.
func (c *DataClient) AvailableCountries(ctx context.Context) ([]string, error) {
	var payload countriesPayload
	if err := c.getJSON(ctx, endpoint{
		op:       "countries",
		segments: []string{"api", "rankings", "countries"},
	}, &payload); err != nil {
		return nil, err
	}
	return payload.Countries, nil
}

// SearchUsers runs a GitHub user search through the backend.
func (c *DataClient) SearchUsers(ctx context.Context, query string) (UserSearch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return UserSearch{}, fmt.Errorf("search users: query is required")
	}
	var payload UserSearch
	err := c.getJSON(ctx, endpoint{
		op:       "user search",
		segments: []string{"api", "users", "search"},
		query:    url.Values{"q": []string{query}},
	}, &payload)
	if err != nil {
		return UserSearch{}, err
	}
	if payload.Count == 0 {
		payload.Count = len(payload.Users)
	}
	return payload, nil
}

// UserRanking reads where login places in its country ranking. A user the backend has not
// ranked yields a not-found error.
func (c *DataClient) UserRanking(ctx context.Context, login string) (UserRanking, error) {
	var payload userRankingPayload
	if err := c.getJSON(ctx, endpoint{
		op:       "user ranking",
		notFound: "User not ranked",
		segments: []string{"api", "rankings", "user", login},
	}, &payload); err != nil {
		return UserRanking{}, err
	}
	ranking, ok := payload.resolve()
	if !ok {
		return UserRanking{}, newStatusError("user ranking", http.StatusNotFound, "User not ranked")
	}
	return ranking, nil
}

// AuthStatus reads the backend session state of the token carried by ctx.
func (c *DataClient) AuthStatus(ctx context.Context) (AuthStatus, error) {
	var payload AuthStatus
	err := c.getJSON(ctx, endpoint{
		op:       "auth status",
		segments: []string{"api", "auth", "me"},
	}, &payload)
	return payload, err
}

// Logout ends the backend session of the token carried by ctx.
func (c *DataClient) Logout(ctx context.Context) error {
	return c.getJSON(ctx, endpoint{
		op:       "logout",
		method:   http.MethodPost,
		segments: []string{"api", "auth", "logout"},
	}, nil)
}

// LoginURL returns the backend's OAuth entry point.
func (c *DataClient) LoginURL() string {
	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "api", "auth", "login")
	return reqURL.String()
}

type endpoint struct {
	op       string
	method   string
	notFound string
	segments []string
	query    url.Values
}

func (c *DataClient) getJSON(ctx context.Context, ep endpoint, target any) error {
	raw := make([]string, 0, len(ep.segments))
	escaped := make([]string, 0, len(ep.segments))
	for _, segment := range ep.segments {
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" {
			return fmt.Errorf("%s: empty path segment", ep.op)
		}
		raw = append(raw, trimmed)
		escaped = append(escaped, url.PathEscape(trimmed))
	}

	reqURL := c.cloneBaseURL()
	reqURL.RawPath = joinURLPath(reqURL.EscapedPath(), escaped...)
	reqURL.Path = joinURLPath(reqURL.Path, raw...)
	if len(ep.query) > 0 {
		reqURL.RawQuery = ep.query.Encode()
	}

	method := ep.method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", ep.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if token := SessionToken(ctx); token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	}

	resp, metadata, err := c.requestClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", ep.op, err)
	}
	if resp == nil {
		return fmt.Errorf("%s request failed: nil response", ep.op)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := newStatusError(ep.op, resp.StatusCode, ep.notFound)
		if resp.StatusCode == http.StatusTooManyRequests || metadata.LastRateHeaders.Throttled {
			statusErr.Message = rateLimitMessage(resp)
		}
		closeBody(resp)
		c.logger.Debug("backend request failed",
			zap.String("op", ep.op),
			zap.Int("status", resp.StatusCode),
			zap.Int("attempts", metadata.Attempts),
			zap.String("rate_limit_reason", metadata.LastDecision.Reason),
		)
		return statusErr
	}

	if target == nil {
		closeBody(resp)
		return nil
	}
	if err := decodeJSONAndClose(resp, target); err != nil {
		return fmt.Errorf("decode %s response: %w", ep.op, err)
	}
	return nil
}

func visibilityQuery(visibility string) url.Values {
	query := url.Values{}
	if trimmed := strings.TrimSpace(visibility); trimmed != "" {
		query.Set("visibility", trimmed)
	}
	return query
}

// finishRanking drops repeated logins, keeping the first (highest ranked) occurrence.
func finishRanking(ranking Ranking) Ranking {
	seen := make(map[string]struct{}, len(ranking.Users))
	users := make([]RankingEntry, 0, len(ranking.Users))
	for _, entry := range ranking.Users {
		key := strings.ToLower(entry.Login)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		users = append(users, entry)
	}
	ranking.Users = users
	if ranking.Total < len(users) {
		ranking.Total = len(users)
	}
	return ranking
}

func rateLimitMessage(resp *http.Response) string {
	if resp.Body == nil {
		return rateLimitedMessage
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return rateLimitedMessage
	}
	var payload rateLimitPayload
	if err := json.Unmarshal(body, &payload); err != nil || strings.TrimSpace(payload.Message) == "" {
		return rateLimitedMessage
	}
	return payload.Message
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBackendBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse backend base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

func joinURLPath(base string, segments ...string) string {
	builder := strings.Builder{}
	builder.WriteString(strings.TrimSuffix(base, "/"))
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func decodeJSONAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
