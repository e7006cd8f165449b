package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"metaapi-trading-bot/config"
)

var ErrMissingSecret = errors.New("auth enabled without a JWT secret")

// Service authenticates the single operator of the control API
type Service struct {
	config     config.AuthConfig
	jwtManager *JWTManager
	logger     zerolog.Logger
}

// NewService creates the operator auth service
func NewService(cfg config.AuthConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled && cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	logger = logger.With().Str("component", "Auth").Logger()
	if cfg.Enabled && cfg.OperatorPassHash == "" {
		logger.Warn().Msg("Auth enabled without an operator password hash, logins will fail")
	}

	return &Service{
		config:     cfg,
		jwtManager: NewJWTManager(cfg.JWTSecret, cfg.AccessTokenDuration),
		logger:     logger,
	}, nil
}

// Enabled reports whether control routes require a token
func (s *Service) Enabled() bool {
	return s.config.Enabled
}

// GetJWTManager returns the JWT manager for use in middleware
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwtManager
}

// Login checks the operator credentials and issues an access token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	if !s.config.Enabled || s.config.OperatorPassHash == "" {
		return nil, ErrNotConfigured
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.config.OperatorUser)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password
	passOK := VerifyPassword(req.Password, s.config.OperatorPassHash)
	if !userOK || !passOK {
		s.logger.Warn().Str("username", req.Username).Msg("Failed operator login")
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtManager.GenerateAccessToken(OperatorClaims{Username: req.Username, Role: RoleOperator})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info().Str("username", req.Username).Time("expires_at", token.ExpiresAt).Msg("Operator logged in")
	return token, nil
}
