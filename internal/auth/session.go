// Package auth holds the login state of one browser. Every visitor gets their own Session;
// it only changes through that visitor's login callback, Logout and Refresh calls.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cam3ron2/gh-dashboard/internal/selector"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
	"go.uber.org/zap"
)

// Backend is the slice of the stats backend the session talks to. AuthStatus and Logout act
// on the session token carried by ctx.
type Backend interface {
	AuthStatus(ctx context.Context) (statsapi.AuthStatus, error)
	Logout(ctx context.Context) error
	LoginURL() string
}

// State is a snapshot of the session.
type State struct {
	Authenticated bool
	Username      string
	AvatarURL     string
}

// Session is one browser's auth state and backend token. Components receive it explicitly.
type Session struct {
	backend Backend
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
	state State
}

// NewSession creates an unauthenticated session.
func NewSession(backend Backend, logger ...*zap.Logger) *Session {
	resolvedLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		resolvedLogger = logger[0]
	}
	return &Session{
		backend: backend,
		logger:  resolvedLogger,
	}
}

// Refresh re-reads the backend session for the held token. Without a token the session is
// anonymous and the backend is not asked. Any failure leaves the session unauthenticated;
// the dashboard still works for public data.
func (s *Session) Refresh(ctx context.Context) State {
	token := s.Token()
	if token == "" {
		s.setState(State{})
		return State{}
	}

	status, err := s.backend.AuthStatus(statsapi.WithSessionToken(ctx, token))
	if err != nil {
		s.logger.Warn("auth status unavailable", zap.Error(err))
		status = statsapi.AuthStatus{}
	}

	next := State{}
	if status.Authenticated && strings.TrimSpace(status.Username) != "" {
		next = State{
			Authenticated: true,
			Username:      status.Username,
			AvatarURL:     status.AvatarURL,
		}
	}

	s.mu.Lock()
	if s.token != token {
		// Logged out or replaced while the backend answered.
		current := s.state
		s.mu.Unlock()
		return current
	}
	s.state = next
	s.mu.Unlock()

	s.logger.Info("auth session refreshed",
		zap.Bool("authenticated", next.Authenticated),
		zap.String("username", next.Username),
	)
	return next
}

// Complete adopts a backend session token handed back by the login callback and refreshes.
func (s *Session) Complete(ctx context.Context, token string) (State, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.State(), fmt.Errorf("session token is required")
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return s.Refresh(ctx), nil
}

// Logout ends the backend session of this browser. Local state is reset even when the
// backend call fails, and an anonymous session never reaches the backend.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.token = ""
	s.state = State{}
	s.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := s.backend.Logout(statsapi.WithSessionToken(ctx, token)); err != nil {
		s.logger.Warn("backend logout failed", zap.Error(err))
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Token returns the backend session token, empty when anonymous.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authorize returns ctx carrying this session's backend token.
func (s *Session) Authorize(ctx context.Context) context.Context {
	return statsapi.WithSessionToken(ctx, s.Token())
}

// State returns a snapshot.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// VisibilityFor returns requested only when the session owns subject; everyone else sees
// public data.
func (s *Session) VisibilityFor(subject string, requested selector.Visibility) selector.Visibility {
	if !s.Owns(subject) || requested == "" {
		return selector.VisibilityPublic
	}
	return requested
}

// Owns reports whether the authenticated user is subject.
func (s *Session) Owns(subject string) bool {
	state := s.State()
	return state.Authenticated && strings.EqualFold(strings.TrimSpace(subject), state.Username)
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}
