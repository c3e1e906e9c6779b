// Package session holds the client-side record of who is signed in. It is
// restored from durable storage once, when created.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/KevinKickass/PumpFleet/internal/validation"
)

// Storage slots.
const (
	TokenKey    = "token"
	UsernameKey = "username"
)

var ErrNoSession = errors.New("not signed in")

// User is an authenticated user and the token proving it.
type User struct {
	Username string
	Token    string
}

// Authenticator exchanges credentials for a signed-in user.
type Authenticator interface {
	Authenticate(ctx context.Context, creds validation.Credentials) (User, error)
}

type Session struct {
	store  Storage
	logger *zap.Logger

	mu   sync.RWMutex
	user *User
}

// New restores the session from store. Both slots must be present for the
// user to count as signed in; a half-written session is treated as absent.
func New(store Storage, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{store: store, logger: logger}
	s.restore()
	return s
}

func (s *Session) restore() {
	token, okToken, err := s.store.Get(TokenKey)
	if err != nil {
		s.logger.Warn("Failed to restore session", zap.Error(err))
		return
	}
	username, okUser, err := s.store.Get(UsernameKey)
	if err != nil {
		s.logger.Warn("Failed to restore session", zap.Error(err))
		return
	}
	if !okToken || !okUser || token == "" || username == "" {
		return
	}
	s.user = &User{Username: username, Token: token}
}

// CurrentUser returns the signed-in user, if any.
func (s *Session) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *Session) IsAuthenticated() bool {
	_, ok := s.CurrentUser()
	return ok
}

// Require returns the signed-in user or ErrNoSession.
func (s *Session) Require() (User, error) {
	u, ok := s.CurrentUser()
	if !ok {
		return User{}, ErrNoSession
	}
	return u, nil
}

// SignIn persists both slots and marks the user signed in. If either write
// fails the previous session stays in place, in memory and in storage.
func (s *Session) SignIn(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(TokenKey, u.Token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	if err := s.store.Set(UsernameKey, u.Username); err != nil {
		var rollback error
		if s.user != nil {
			rollback = s.store.Set(TokenKey, s.user.Token)
		} else {
			rollback = s.store.Remove(TokenKey)
		}
		if rollback != nil {
			s.logger.Warn("Failed to roll back token slot", zap.Error(rollback))
		}
		return fmt.Errorf("failed to store username: %w", err)
	}
	s.user = &u
	return nil
}

// SignOut removes both slots and forgets the user.
func (s *Session) SignOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	return errors.Join(s.store.Remove(TokenKey), s.store.Remove(UsernameKey))
}

// Login validates the credentials, authenticates them and signs in. On any
// failure nothing is persisted and the previous session is left as is.
func (s *Session) Login(ctx context.Context, a Authenticator, creds validation.Credentials) (User, error) {
	if err := validation.Struct(creds); err != nil {
		return User{}, err
	}

	u, err := a.Authenticate(ctx, creds)
	if err != nil {
		return User{}, err
	}
	if err := s.SignIn(u); err != nil {
		return User{}, err
	}

	s.logger.Debug("Signed in", zap.String("username", u.Username))
	return u, nil
}
