package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/telemetry"
	"github.com/google/go-github/v75/github"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	tracerScope    = "gh-dashboard/internal/githubapi"
	maxListPerPage = 100
)

// Profile is the public GitHub profile shown in the dashboard header.
type Profile struct {
	Login       string    `json:"login"`
	Name        string    `json:"name,omitempty"`
	AvatarURL   string    `json:"avatar_url"`
	HTMLURL     string    `json:"html_url"`
	Bio         string    `json:"bio,omitempty"`
	Company     string    `json:"company,omitempty"`
	Location    string    `json:"location,omitempty"`
	Blog        string    `json:"blog,omitempty"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	PublicRepos int       `json:"public_repos"`
	CreatedAt   time.Time `json:"created_at"`
}

// DisplayName returns the name, falling back to the login.
func (p Profile) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.Login
}

// BlogURL returns the blog as an absolute URL.
func (p Profile) BlogURL() string {
	blog := strings.TrimSpace(p.Blog)
	if blog == "" || strings.HasPrefix(blog, "http") {
		return blog
	}
	return "https://" + blog
}

// UserSummary is one entry of a follower or following list.
type UserSummary struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// UserList is the first page of a follower or following list.
type UserList struct {
	Count int           `json:"count"`
	Users []UserSummary `json:"users"`
}

// StatusError is a non-success GitHub response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// UserMessage returns Message; GitHub statuses are mapped to display text by mapError.
func (e *StatusError) UserMessage() string {
	return e.Message
}

// NotFound reports whether the user does not exist.
func (e *StatusError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// ProfileClient reads user profiles and relationship lists through go-github.
type ProfileClient struct {
	rest   *RESTClient
	logger *zap.Logger
}

// NewProfileClient creates a profile client.
func NewProfileClient(rest *RESTClient, logger ...*zap.Logger) (*ProfileClient, error) {
	if rest == nil || rest.Client == nil {
		return nil, fmt.Errorf("rest client is required")
	}
	resolvedLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		resolvedLogger = logger[0]
	}
	return &ProfileClient{rest: rest, logger: resolvedLogger}, nil
}

// Profile reads one user's public profile.
func (c *ProfileClient) Profile(ctx context.Context, login string) (Profile, error) {
	trimmed := strings.TrimSpace(login)
	if trimmed == "" {
		return Profile{}, fmt.Errorf("login is required")
	}

	ctx, span := telemetry.StartSpan(ctx, tracerScope, "githubapi.profile", attribute.String("github.login", trimmed))
	defer span.End()

	user, _, err := c.rest.Client.Users.Get(ctx, trimmed)
	if err != nil {
		mapped := mapError("profile", err)
		span.RecordError(mapped)
		span.SetStatus(codes.Error, mapped.Error())
		return Profile{}, mapped
	}

	return Profile{
		Login:       user.GetLogin(),
		Name:        user.GetName(),
		AvatarURL:   user.GetAvatarURL(),
		HTMLURL:     user.GetHTMLURL(),
		Bio:         user.GetBio(),
		Company:     user.GetCompany(),
		Location:    user.GetLocation(),
		Blog:        user.GetBlog(),
		Followers:   user.GetFollowers(),
		Following:   user.GetFollowing(),
		PublicRepos: user.GetPublicRepos(),
		CreatedAt:   user.GetCreatedAt().Time,
	}, nil
}

// Followers reads the first page of a user's followers.
func (c *ProfileClient) Followers(ctx context.Context, login string) (UserList, error) {
	return c.listUsers(ctx, "followers", login, c.rest.Client.Users.ListFollowers)
}

// Following reads the first page of the accounts a user follows.
func (c *ProfileClient) Following(ctx context.Context, login string) (UserList, error) {
	return c.listUsers(ctx, "following", login, c.rest.Client.Users.ListFollowing)
}

// Ping reads the rate-limit endpoint, which does not count against the quota.
func (c *ProfileClient) Ping(ctx context.Context) error {
	if _, _, err := c.rest.Client.RateLimit.Get(ctx); err != nil {
		return mapError("rate limit", err)
	}
	return nil
}

type listUsersFunc func(ctx context.Context, user string, opts *github.ListOptions) ([]*github.User, *github.Response, error)

func (c *ProfileClient) listUsers(ctx context.Context, op, login string, list listUsersFunc) (UserList, error) {
	trimmed := strings.TrimSpace(login)
	if trimmed == "" {
		return UserList{}, fmt.Errorf("login is required")
	}

	ctx, span := telemetry.StartSpan(ctx, tracerScope, "githubapi."+op, attribute.String("github.login", trimmed))
	defer span.End()

	users, _, err := list(ctx, trimmed, &github.ListOptions{PerPage: maxListPerPage})
	if err != nil {
		mapped := mapError(op, err)
		span.RecordError(mapped)
		span.SetStatus(codes.Error, mapped.Error())
		return UserList{}, mapped
	}

	result := UserList{Users: make([]UserSummary, 0, len(users))}
	for _, user := range users {
		if user == nil {
			continue
		}
		result.Users = append(result.Users, UserSummary{
			Login:     user.GetLogin(),
			AvatarURL: user.GetAvatarURL(),
		})
	}
	result.Count = len(result.Users)
	c.logger.Debug("github user list read", zap.String("op", op), zap.String("login", trimmed), zap.Int("count", result.Count))
	return result, nil
}

func mapError(op string, err error) error {
	var responseErr *github.ErrorResponse
	if errors.As(err, &responseErr) && responseErr.Response != nil {
		status := responseErr.Response.StatusCode
		if status == http.StatusNotFound {
			return &StatusError{Status: status, Message: "User not found"}
		}
		return &StatusError{Status: status, Message: fmt.Sprintf("Failed to fetch %s: %s", op, http.StatusText(status))}
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &StatusError{Status: http.StatusForbidden, Message: "GitHub API rate limit exceeded. Please log in for higher limits."}
	}
	return fmt.Errorf("fetch %s: %w", op, err)
}
