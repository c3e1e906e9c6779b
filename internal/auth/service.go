package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/KevinKickass/PumpFleet/internal/config"
)

// DefaultPassword is used when no password hash is configured.
const DefaultPassword = "888888"

// InvalidCredentialsMessage is shown to users whose login is rejected.
const InvalidCredentialsMessage = "Invalid username or password"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

// LoginResult is what a successful login hands back to the client.
type LoginResult struct {
	Token     string    `json:"token"`
	User      string    `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service authenticates the single configured user and issues tokens.
type Service struct {
	username     string
	passwordHash string
	loginDelay   time.Duration

	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	revoked        *expirable.LRU[string, struct{}]
	logger         *zap.Logger
	now            func() time.Time
}

func NewService(cfg config.AuthConfig, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	maxRevoked := cfg.MaxRevoked
	if maxRevoked <= 0 {
		maxRevoked = 4096
	}

	hasher := NewPasswordHasher(cfg.HashMemoryKiB, cfg.HashIterations)

	hash := cfg.PasswordHash
	if hash == "" {
		var err error
		hash, err = hasher.HashPassword(DefaultPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to hash default password: %w", err)
		}
		logger.Warn("No password hash configured, using the default password",
			zap.String("username", cfg.Username))
	}

	if !cfg.IsProductionReady() {
		logger.Warn("Using development JWT secret")
	}

	return &Service{
		username:       cfg.Username,
		passwordHash:   hash,
		loginDelay:     cfg.LoginDelay,
		jwtHandler:     NewJWTHandler(cfg.GetJWTSecret(), ttl),
		passwordHasher: hasher,
		revoked:        expirable.NewLRU[string, struct{}](maxRevoked, nil, ttl),
		logger:         logger,
		now:            time.Now,
	}, nil
}

// Login checks the credentials after the configured latency and returns a
// signed token. Wrong credentials yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK, err := s.passwordHasher.VerifyPassword(password, s.passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !userOK || !passOK {
		s.logger.Info("Login failed", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.jwtHandler.GenerateAccessToken(s.username, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	s.logger.Info("Login succeeded", zap.String("username", s.username))
	return &LoginResult{
		Token:     token,
		User:      s.username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ValidateToken parses a token and rejects revoked ones.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	claims, err := s.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, revoked := s.revoked.Get(claims.ID); revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *Service) Logout(token string) error {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return err
	}
	s.revoked.Add(claims.ID, struct{}{})
	s.logger.Info("Logout", zap.String("username", claims.Username))
	return nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.loginDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.loginDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
