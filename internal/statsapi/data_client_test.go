package statsapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/widget"
)

func newTestRequestClient(doer HTTPDoer) *Client {
	client := NewClient(doer, RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
	}, RateLimitPolicy{})
	client.Sleep = func(context.Context, time.Duration) error { return nil }
	return client
}

type recordedRequest struct {
	method  string
	path    string
	query   string
	session string
}

type backendStub struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newBackendStub(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) (*backendStub, *DataClient) {
	t.Helper()

	stub := &backendStub{routes: routes}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := ""
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			session = cookie.Value
		}
		stub.mu.Lock()
		stub.requests = append(stub.requests, recordedRequest{
			method:  r.Method,
			path:    r.URL.EscapedPath(),
			query:   r.URL.RawQuery,
			session: session,
		})
		stub.mu.Unlock()

		handler, ok := stub.routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := NewDataClient(server.URL, newTestRequestClient(server.Client()))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}
	return stub, client
}

func (s *backendStub) Requests() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]recordedRequest, len(s.requests))
	copy(copied, s.requests)
	return copied
}

func jsonHandler(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}
}

func TestNewDataClient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		baseURL     string
		client      *Client
		wantErr     bool
		errContains string
	}{
		{name: "uses_default_base_url", client: newTestRequestClient(&fakeDoer{})},
		{name: "accepts_custom_base_url", baseURL: "https://stats.example.com/backend", client: newTestRequestClient(&fakeDoer{})},
		{
			name:        "rejects_invalid_base_url",
			baseURL:     "://bad-url",
			client:      newTestRequestClient(&fakeDoer{}),
			wantErr:     true,
			errContains: "parse backend base url",
		},
		{
			name:        "rejects_nil_client",
			baseURL:     "https://stats.example.com",
			wantErr:     true,
			errContains: "request client is required",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewDataClient(tc.baseURL, tc.client)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewDataClient() expected error, got nil")
				}
				if !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, missing %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewDataClient() unexpected error: %v", err)
			}
			if client == nil {
				t.Fatalf("NewDataClient() returned nil client")
			}
		})
	}
}

func TestDataClientContributions(t *testing.T) {
	t.Parallel()

	stub, client := newBackendStub(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/users/octocat/contributions": jsonHandler(http.StatusOK, `{
			"contributions": [{"days": [{"date": "2024-01-07", "count": 3, "level": 2}]}],
			"totalContributions": 3,
			"year": 2024
		}`),
	})

	got, err := client.Contributions(context.Background(), "octocat", 2024)
	if err != nil {
		t.Fatalf("Contributions() unexpected error: %v", err)
	}
	if got.Total != 3 || got.Year != 2024 || len(got.Weeks) != 1 || got.Weeks[0].Days[0].Count != 3 {
		t.Fatalf("Contributions() = %+v", got)
	}

	if _, err := client.Contributions(context.Background(), "octocat", 0); err != nil {
		t.Fatalf("Contributions(trailing) unexpected error: %v", err)
	}

	requests := stub.Requests()
	if requests[0].query != "year=2024" {
		t.Fatalf("query = %q, want year=2024", requests[0].query)
	}
	if requests[1].query != "" {
		t.Fatalf("trailing query = %q, want empty", requests[1].query)
	}
}

func TestDataClientVisibilityEndpoints(t *testing.T) {
	t.Parallel()

	stub, client := newBackendStub(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/users/octocat/code-frequency": jsonHandler(http.StatusOK, `{"weeks":[{"week":1704585600,"additions":10,"deletions":4}],"totalAdditions":10,"totalDeletions":4}`),
		"/api/users/octocat/fun":            jsonHandler(http.StatusOK, `{"commitsByHour":{"9":4,"23":1},"avgCommitsByHour":{"9":0.5},"mostProductiveDay":"Tuesday","nightOwlPercent":12.5}`),
		"/api/users/octocat/repo-commits":   jsonHandler(http.StatusOK, `{"commitsByRepo":{"hello-world":7},"totalCommits":7}`),
	})
	ctx := WithSessionToken(context.Background(), "abc123")

	frequency, err := client.CodeFrequency(ctx, "octocat", "private")
	if err != nil {
		t.Fatalf("CodeFrequency() unexpected error: %v", err)
	}
	if len(frequency.Weeks) != 1 || frequency.Weeks[0].Additions != 10 {
		t.Fatalf("CodeFrequency() = %+v", frequency)
	}

	fun, err := client.FunStats(ctx, "octocat", "public")
	if err != nil {
		t.Fatalf("FunStats() unexpected error: %v", err)
	}
	if fun.CommitsByHour[9] != 4 || fun.AvgCommitsByHour[9] != 0.5 || fun.MostProductiveDay != "Tuesday" {
		t.Fatalf("FunStats() = %+v", fun)
	}

	repos, err := client.RepoCommits(ctx, "octocat", "all")
	if err != nil {
		t.Fatalf("RepoCommits() unexpected error: %v", err)
	}
	if repos.CommitsByRepo["hello-world"] != 7 {
		t.Fatalf("RepoCommits() = %+v", repos)
	}

	wantQueries := []string{"visibility=private", "visibility=public", "visibility=all"}
	for i, request := range stub.Requests() {
		if request.query != wantQueries[i] {
			t.Fatalf("request %d query = %q, want %q", i, request.query, wantQueries[i])
		}
		if request.session != "abc123" {
			t.Fatalf("request %d session = %q, want forwarded session", i, request.session)
		}
	}
}

func TestDataClientRankings(t *testing.T) {
	t.Parallel()

	stub, client := newBackendStub(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/rankings/global": jsonHandler(http.StatusOK, `{"users":[
			{"login":"alice","publicContributions":90},
			{"login":"bob","publicContributions":80},
			{"login":"Alice","publicContributions":70}
		],"total":3}`),
		"/api/rankings/country/lithuania": jsonHandler(http.StatusOK, `{"users":[{"login":"jonas","publicContributions":5}],"total":1}`),
		"/api/rankings/countries":         jsonHandler(http.StatusOK, `{"countries":["lithuania","latvia","estonia"]}`),
	})

	global, err := client.GlobalRanking(context.Background(), 100)
	if err != nil {
		t.Fatalf("GlobalRanking() unexpected error: %v", err)
	}
	if len(global.Users) != 2 || global.Users[0].Login != "alice" || global.Users[1].Login != "bob" {
		t.Fatalf("GlobalRanking() users = %+v, want deduplicated alice,bob", global.Users)
	}

	country, err := client.CountryRanking(context.Background(), "lithuania")
	if err != nil {
		t.Fatalf("CountryRanking() unexpected error: %v", err)
	}
	if country.Country != "lithuania" || len(country.Users) != 1 {
		t.Fatalf("CountryRanking() = %+v", country)
	}

	countries, err := client.AvailableCountries(context.Background())
	if err != nil {
		t.Fatalf("AvailableCountries() unexpected error: %v", err)
	}
	if strings.Join(countries, ",") != "lithuania,latvia,estonia" {
		t.Fatalf("AvailableCountries() = %v", countries)
	}

	if got := stub.Requests()[0].query; got != "limit=100" {
		t.Fatalf("global query = %q, want limit=100", got)
	}
}

func TestDataClientStatusHandling(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		status      int
		body        string
		call        func(*DataClient) error
		wantMessage string
		wantKind    widget.ErrorKind
	}{
		{
			name:   "user_not_found",
			status: http.StatusNotFound,
			call: func(c *DataClient) error {
				_, err := c.FunStats(context.Background(), "ghost", "public")
				return err
			},
			wantMessage: "User not found",
			wantKind:    widget.KindNotFound,
		},
		{
			name:   "country_not_found",
			status: http.StatusNotFound,
			call: func(c *DataClient) error {
				_, err := c.CountryRanking(context.Background(), "atlantis")
				return err
			},
			wantMessage: "Country not found",
			wantKind:    widget.KindNotFound,
		},
		{
			name:   "server_error",
			status: http.StatusInternalServerError,
			call: func(c *DataClient) error {
				_, err := c.GlobalRanking(context.Background(), 100)
				return err
			},
			wantMessage: "Failed to fetch global ranking: Internal Server Error",
			wantKind:    widget.KindTransient,
		},
		{
			name:   "rate_limited_with_backend_message",
			status: http.StatusTooManyRequests,
			body:   `{"error":"rate_limited","message":"Slow down","login_required":true}`,
			call: func(c *DataClient) error {
				_, err := c.RepoCommits(context.Background(), "octocat", "public")
				return err
			},
			wantMessage: "Slow down",
			wantKind:    widget.KindTransient,
		},
		{
			name:   "rate_limited_without_body",
			status: http.StatusTooManyRequests,
			call: func(c *DataClient) error {
				_, err := c.CodeFrequency(context.Background(), "octocat", "public")
				return err
			},
			wantMessage: rateLimitedMessage,
			wantKind:    widget.KindTransient,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewDataClient("http://backend.test", newTestRequestClient(&fakeDoer{
				responses: []*http.Response{newResponse(tc.status, nil, tc.body)},
			}))
			if err != nil {
				t.Fatalf("NewDataClient() unexpected error: %v", err)
			}

			err = tc.call(client)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if err.Error() != tc.wantMessage {
				t.Fatalf("error = %q, want %q", err.Error(), tc.wantMessage)
			}
			if got := Classify(err); got != tc.wantKind {
				t.Fatalf("Classify() = %q, want %q", got, tc.wantKind)
			}
		})
	}
}

func TestDataClientNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	client, err := NewDataClient("http://backend.test", newTestRequestClient(&fakeDoer{
		errors: []error{fmt.Errorf("connection refused")},
	}))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}
	_, err = client.Contributions(context.Background(), "octocat", 0)
	if err == nil {
		t.Fatalf("Contributions() expected error")
	}
	if IsNotFound(err) || Classify(err) != widget.KindTransient {
		t.Fatalf("Classify(%v) = %q, want transient", err, Classify(err))
	}
}

func TestDataClientRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{}
	client, err := NewDataClient("http://backend.test", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}
	if _, err := client.FunStats(context.Background(), "  ", "public"); err == nil {
		t.Fatalf("FunStats() with blank subject expected error")
	}
	if doer.callCount != 0 {
		t.Fatalf("doer calls = %d, want 0", doer.callCount)
	}
}

func TestDataClientAuthEndpoints(t *testing.T) {
	t.Parallel()

	stub, client := newBackendStub(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/auth/me":     jsonHandler(http.StatusOK, `{"authenticated":true,"username":"octocat","avatar_url":"https://avatars.example/octocat"}`),
		"/api/auth/logout": jsonHandler(http.StatusOK, `{"success":true}`),
	})

	ctx := WithSessionToken(context.Background(), "owner-token")
	status, err := client.AuthStatus(ctx)
	if err != nil {
		t.Fatalf("AuthStatus() unexpected error: %v", err)
	}
	if !status.Authenticated || status.Username != "octocat" {
		t.Fatalf("AuthStatus() = %+v", status)
	}
	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout() unexpected error: %v", err)
	}
	requests := stub.Requests()
	if got := requests[1].method; got != http.MethodPost {
		t.Fatalf("logout method = %s, want POST", got)
	}
	for i, request := range requests {
		if request.session != "owner-token" {
			t.Fatalf("request %d session = %q, want owner-token", i, request.session)
		}
	}
	if !strings.HasSuffix(client.LoginURL(), "/api/auth/login") {
		t.Fatalf("LoginURL() = %q", client.LoginURL())
	}
}

func TestDataClientEscapesSubject(t *testing.T) {
	t.Parallel()

	stub, client := newBackendStub(t, map[string]func(http.ResponseWriter, *http.Request){})
	_, _ = client.Contributions(context.Background(), "a/b", 0)

	requests := stub.Requests()
	if len(requests) != 1 || requests[0].path != "/api/users/a%2Fb/contributions" {
		t.Fatalf("requests = %+v, want escaped subject", requests)
	}
}

func TestDataClientSessionIsPerRequest(t *testing.T) {
	t.Parallel()

	stub, client := newBackendStub(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/users/octocat/fun": jsonHandler(http.StatusOK, `{"totalCommits":1}`),
	})

	owner := WithSessionToken(context.Background(), "owner-token")
	if _, err := client.FunStats(owner, "octocat", "private"); err != nil {
		t.Fatalf("FunStats(owner) unexpected error: %v", err)
	}
	if _, err := client.FunStats(context.Background(), "octocat", "private"); err != nil {
		t.Fatalf("FunStats(anonymous) unexpected error: %v", err)
	}
	if _, err := client.FunStats(WithSessionToken(context.Background(), "  "), "octocat", "public"); err != nil {
		t.Fatalf("FunStats(blank token) unexpected error: %v", err)
	}

	want := []string{"owner-token", "", ""}
	for i, request := range stub.Requests() {
		if request.session != want[i] {
			t.Fatalf("request %d session = %q, want %q", i, request.session, want[i])
		}
	}
}

func TestDataClientSearchUsers(t *testing.T) {
	t.Parallel()

	stub, client := newBackendStub(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/users/search": jsonHandler(http.StatusOK, `{"count":2,"users":[
			{"login":"octocat","avatar_url":"https://avatars.example/octocat","type":"User"},
			{"login":"octo-org","avatar_url":"https://avatars.example/org","type":"Organization"}
		]}`),
	})

	result, err := client.SearchUsers(context.Background(), " octo cat ")
	if err != nil {
		t.Fatalf("SearchUsers() unexpected error: %v", err)
	}
	if result.Count != 2 || len(result.Users) != 2 || result.Users[1].Type != "Organization" {
		t.Fatalf("SearchUsers() = %+v", result)
	}
	if got := stub.Requests()[0].query; got != "q=octo+cat" {
		t.Fatalf("search query = %q, want q=octo+cat", got)
	}

	if _, err := client.SearchUsers(context.Background(), "   "); err == nil {
		t.Fatalf("SearchUsers() with blank query expected error")
	}
	if got := len(stub.Requests()); got != 1 {
		t.Fatalf("requests = %d, want blank query rejected locally", got)
	}
}

func TestDataClientUserRanking(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		status       int
		body         string
		wantRank     int
		wantCountry  string
		wantNotFound bool
	}{
		{
			name:        "bare_payload",
			status:      http.StatusOK,
			body:        `{"username":"jonas","country":"lithuania","countryRank":3,"countryTotal":250,"globalRank":900}`,
			wantRank:    3,
			wantCountry: "lithuania",
		},
		{
			name:        "wrapped_payload",
			status:      http.StatusOK,
			body:        `{"ranking":{"username":"jonas","country":"latvia","countryRank":1,"countryTotal":100}}`,
			wantRank:    1,
			wantCountry: "latvia",
		},
		{
			name:         "null_ranking",
			status:       http.StatusOK,
			body:         `{"ranking":null}`,
			wantNotFound: true,
		},
		{
			name:         "backend_not_found",
			status:       http.StatusNotFound,
			body:         `{}`,
			wantNotFound: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, client := newBackendStub(t, map[string]func(http.ResponseWriter, *http.Request){
				"/api/rankings/user/jonas": jsonHandler(tc.status, tc.body),
			})
			ranking, err := client.UserRanking(context.Background(), "jonas")
			if tc.wantNotFound {
				if !IsNotFound(err) {
					t.Fatalf("UserRanking() error = %v, want not found", err)
				}
				if err.Error() != "User not ranked" {
					t.Fatalf("UserRanking() error = %q, want User not ranked", err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("UserRanking() unexpected error: %v", err)
			}
			if ranking.CountryRank != tc.wantRank || ranking.Country != tc.wantCountry {
				t.Fatalf("UserRanking() = %+v, want #%d in %s", ranking, tc.wantRank, tc.wantCountry)
			}
		})
	}
}
