package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cam3ron2/gh-dashboard/internal/selector"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
)

// fakeBackend answers AuthStatus per token, the way the backend resolves its session cookie.
type fakeBackend struct {
	mu          sync.Mutex
	statuses    map[string]statsapi.AuthStatus
	statusErr   error
	logoutErr   error
	statusCalls []string
	logouts     []string
}

func (f *fakeBackend) AuthStatus(ctx context.Context) (statsapi.AuthStatus, error) {
	token := statsapi.SessionToken(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, token)
	if f.statusErr != nil {
		return statsapi.AuthStatus{}, f.statusErr
	}
	return f.statuses[token], nil
}

func (f *fakeBackend) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, statsapi.SessionToken(ctx))
	return f.logoutErr
}

func (f *fakeBackend) LoginURL() string {
	return "http://backend.test/api/auth/login"
}

func ownerBackend() *fakeBackend {
	return &fakeBackend{statuses: map[string]statsapi.AuthStatus{
		"owner-token": {Authenticated: true, Username: "octocat", AvatarURL: "a.png"},
	}}
}

func TestSessionComplete(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		backend *fakeBackend
		token   string
		want    State
	}{
		{
			name:    "authenticated",
			backend: ownerBackend(),
			token:   "owner-token",
			want:    State{Authenticated: true, Username: "octocat", AvatarURL: "a.png"},
		},
		{
			name:    "unknown_token_is_anonymous",
			backend: ownerBackend(),
			token:   "expired-token",
			want:    State{},
		},
		{
			name:    "backend_failure_is_anonymous",
			backend: &fakeBackend{statusErr: errors.New("connection refused")},
			token:   "owner-token",
			want:    State{},
		},
		{
			name: "authenticated_without_username_is_anonymous",
			backend: &fakeBackend{statuses: map[string]statsapi.AuthStatus{
				"owner-token": {Authenticated: true},
			}},
			token: "owner-token",
			want:  State{},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			session := NewSession(tc.backend)
			got, err := session.Complete(context.Background(), tc.token)
			if err != nil {
				t.Fatalf("Complete() unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Complete() = %+v, want %+v", got, tc.want)
			}
			if got := session.State(); got != tc.want {
				t.Fatalf("State() = %+v, want %+v", got, tc.want)
			}
			if calls := tc.backend.statusCalls; len(calls) != 1 || calls[0] != tc.token {
				t.Fatalf("AuthStatus() tokens = %v, want [%s]", calls, tc.token)
			}
		})
	}
}

func TestSessionCompleteRejectsBlankToken(t *testing.T) {
	t.Parallel()

	backend := ownerBackend()
	session := NewSession(backend)
	if _, err := session.Complete(context.Background(), " "); err == nil {
		t.Fatalf("Complete() with blank token expected error")
	}
	if session.Token() != "" || len(backend.statusCalls) != 0 {
		t.Fatalf("blank token reached the backend: token=%q calls=%v", session.Token(), backend.statusCalls)
	}
}

func TestSessionRefreshWithoutTokenSkipsBackend(t *testing.T) {
	t.Parallel()

	backend := ownerBackend()
	session := NewSession(backend)
	if got := session.Refresh(context.Background()); got != (State{}) {
		t.Fatalf("Refresh() = %+v, want anonymous", got)
	}
	if len(backend.statusCalls) != 0 {
		t.Fatalf("AuthStatus() calls = %v, want none", backend.statusCalls)
	}
}

func TestSessionVisibilityFor(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{statuses: map[string]statsapi.AuthStatus{
		"owner-token": {Authenticated: true, Username: "OctoCat"},
	}}
	session := NewSession(backend)
	if _, err := session.Complete(context.Background(), "owner-token"); err != nil {
		t.Fatalf("Complete() unexpected error: %v", err)
	}

	testCases := []struct {
		name      string
		subject   string
		requested selector.Visibility
		want      selector.Visibility
	}{
		{name: "owner_private", subject: "octocat", requested: selector.VisibilityPrivate, want: selector.VisibilityPrivate},
		{name: "owner_all", subject: "OCTOCAT", requested: selector.VisibilityAll, want: selector.VisibilityAll},
		{name: "owner_empty", subject: "octocat", requested: "", want: selector.VisibilityPublic},
		{name: "other_user", subject: "hubot", requested: selector.VisibilityPrivate, want: selector.VisibilityPublic},
	}
	for _, tc := range testCases {
		if got := session.VisibilityFor(tc.subject, tc.requested); got != tc.want {
			t.Fatalf("%s: VisibilityFor() = %q, want %q", tc.name, got, tc.want)
		}
	}

	anonymous := NewSession(backend)
	if got := anonymous.VisibilityFor("octocat", selector.VisibilityPrivate); got != selector.VisibilityPublic {
		t.Fatalf("anonymous VisibilityFor() = %q, want public", got)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	t.Parallel()

	backend := ownerBackend()
	owner := NewSession(backend)
	visitor := NewSession(backend)
	if _, err := owner.Complete(context.Background(), "owner-token"); err != nil {
		t.Fatalf("Complete() unexpected error: %v", err)
	}

	if visitor.Owns("octocat") || visitor.Token() != "" {
		t.Fatalf("visitor inherited the owner's login: state=%+v token=%q", visitor.State(), visitor.Token())
	}
	if got := statsapi.SessionToken(visitor.Authorize(context.Background())); got != "" {
		t.Fatalf("visitor Authorize() token = %q, want none", got)
	}
	if got := statsapi.SessionToken(owner.Authorize(context.Background())); got != "owner-token" {
		t.Fatalf("owner Authorize() token = %q, want owner-token", got)
	}

	if err := visitor.Logout(context.Background()); err != nil {
		t.Fatalf("visitor Logout() unexpected error: %v", err)
	}
	if len(backend.logouts) != 0 {
		t.Fatalf("anonymous logout reached the backend: %v", backend.logouts)
	}
	if !owner.Owns("octocat") {
		t.Fatalf("visitor logout ended the owner's session")
	}
}

func TestSessionLogout(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		logoutErr error
		wantErr   bool
	}{
		{name: "success"},
		{name: "backend_failure_still_resets", logoutErr: errors.New("502"), wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			backend := ownerBackend()
			backend.logoutErr = tc.logoutErr
			session := NewSession(backend)
			if _, err := session.Complete(context.Background(), "owner-token"); err != nil {
				t.Fatalf("Complete() unexpected error: %v", err)
			}

			err := session.Logout(context.Background())
			if (err != nil) != tc.wantErr {
				t.Fatalf("Logout() error = %v, wantErr %v", err, tc.wantErr)
			}
			if session.State().Authenticated || session.Token() != "" {
				t.Fatalf("after Logout() state = %+v token = %q", session.State(), session.Token())
			}
			if len(backend.logouts) != 1 || backend.logouts[0] != "owner-token" {
				t.Fatalf("backend logouts = %v, want [owner-token]", backend.logouts)
			}
		})
	}
}
