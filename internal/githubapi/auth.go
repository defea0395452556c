package githubapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
)

// userAgent identifies profile reads in GitHub's request logs.
const userAgent = "gh-dashboard"

// AuthMode names how profile reads authenticate.
type AuthMode string

const (
	AuthAnonymous    AuthMode = "anonymous"
	AuthToken        AuthMode = "token"
	AuthInstallation AuthMode = "installation"
)

// InstallationAuthConfig configures GitHub App installation authentication.
type InstallationAuthConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	Timeout        time.Duration
	BaseTransport  http.RoundTripper
}

func (c InstallationAuthConfig) configured() bool {
	return c.AppID > 0 || c.InstallationID > 0
}

// AuthConfig selects how profile reads authenticate. App installation credentials win over a
// token; with neither, requests are anonymous and subject to the unauthenticated rate limit.
type AuthConfig struct {
	Token        string
	Installation InstallationAuthConfig
	Timeout      time.Duration
}

// Mode reports which credentials c will use.
func (c AuthConfig) Mode() AuthMode {
	switch {
	case c.Installation.configured():
		return AuthInstallation
	case strings.TrimSpace(c.Token) != "":
		return AuthToken
	default:
		return AuthAnonymous
	}
}

// RESTClient is a go-github client plus the credentials it was built with.
type RESTClient struct {
	Client *github.Client
	Mode   AuthMode
}

// NewInstallationHTTPClient creates an HTTP client that signs requests as one GitHub App
// installation.
func NewInstallationHTTPClient(cfg InstallationAuthConfig) (*http.Client, error) {
	switch {
	case cfg.AppID <= 0:
		return nil, fmt.Errorf("app id must be > 0")
	case cfg.InstallationID <= 0:
		return nil, fmt.Errorf("installation id must be > 0")
	case strings.TrimSpace(cfg.PrivateKeyPath) == "":
		return nil, fmt.Errorf("private key path is required")
	}

	base := cfg.BaseTransport
	if base == nil {
		base = http.DefaultTransport
	}
	transport, err := ghinstallation.NewKeyFromFile(base, cfg.AppID, cfg.InstallationID, cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("create github app transport: %w", err)
	}
	return &http.Client{Transport: transport, Timeout: cfg.Timeout}, nil
}

// NewGitHubRESTClient creates an anonymous go-github client. A blank apiBaseURL keeps
// api.github.com; anything else must be an absolute URL, e.g. a GitHub Enterprise API root.
func NewGitHubRESTClient(httpClient *http.Client, apiBaseURL string) (*RESTClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	client := github.NewClient(httpClient)
	client.UserAgent = userAgent

	base, err := parseAPIBaseURL(apiBaseURL)
	if err != nil {
		return nil, err
	}
	if base != nil {
		client.BaseURL = base
	}
	return &RESTClient{Client: client, Mode: AuthAnonymous}, nil
}

// NewAuthenticatedRESTClient builds the profile REST client for cfg.Mode().
func NewAuthenticatedRESTClient(cfg AuthConfig, apiBaseURL string) (*RESTClient, error) {
	switch cfg.Mode() {
	case AuthInstallation:
		installation := cfg.Installation
		if installation.Timeout == 0 {
			installation.Timeout = cfg.Timeout
		}
		httpClient, err := NewInstallationHTTPClient(installation)
		if err != nil {
			return nil, err
		}
		client, err := NewGitHubRESTClient(httpClient, apiBaseURL)
		if err != nil {
			return nil, err
		}
		client.Mode = AuthInstallation
		return client, nil
	case AuthToken:
		client, err := NewGitHubRESTClient(&http.Client{Timeout: cfg.Timeout}, apiBaseURL)
		if err != nil {
			return nil, err
		}
		client.Client = client.Client.WithAuthToken(strings.TrimSpace(cfg.Token))
		client.Mode = AuthToken
		return client, nil
	default:
		return NewGitHubRESTClient(&http.Client{Timeout: cfg.Timeout}, apiBaseURL)
	}
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	// go-github resolves paths against BaseURL and requires the trailing slash.
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}
