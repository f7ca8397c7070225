package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ratewatch/ratewatch/internal/auth"
	"github.com/ratewatch/ratewatch/internal/domain"
	"github.com/ratewatch/ratewatch/internal/repository"
	apperrors "github.com/ratewatch/ratewatch/pkg/errors"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum password length required at registration.
const minPasswordLength = 8

// AuthService implements login throttling, session token issue and
// verification, and token revocation.
type AuthService struct {
	userRepo   repository.UserRepository
	jwtManager *auth.JWTManager
	throttle   *auth.LoginThrottle
	ledger     *auth.RevocationLedger
	timeout    time.Duration
	logger     *slog.Logger
}

// NewAuthService creates the auth service. timeout bounds credential lookups.
func NewAuthService(
	userRepo repository.UserRepository,
	jwtManager *auth.JWTManager,
	throttle *auth.LoginThrottle,
	ledger *auth.RevocationLedger,
	timeout time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		throttle:   throttle,
		ledger:     ledger,
		timeout:    timeout,
		logger:     logger,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email    string
	Password string
}

// Register creates a new user account with a bcrypt password hash.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Authenticate verifies credentials and returns a signed session token.
// Lockout is checked before any store access; an unknown email and a wrong
// password are indistinguishable to the caller.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (string, error) {
	if s.throttle.Blocked(email) {
		return "", apperrors.Throttled()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.userRepo.GetByEmail(lookupCtx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.throttle.RecordFailure(email)
			return "", apperrors.InvalidCredentials()
		}
		if errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
			return "", apperrors.Timeout(fmt.Errorf("credential lookup: %w", err))
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.throttle.RecordFailure(email)
		return "", apperrors.InvalidCredentials()
	}

	s.throttle.Reset(email)

	token, err := s.jwtManager.Generate(user.ID, user.Email)
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}

	s.logger.InfoContext(ctx, "user authenticated", slog.String("user_id", user.ID))
	return token, nil
}

// Authorize validates a session token and returns the user ID it was issued
// for. The revocation ledger is consulted first: a revoked token is rejected
// as revoked even while its signature and expiry are still valid.
func (s *AuthService) Authorize(_ context.Context, token string) (string, error) {
	if s.ledger.IsRevoked(token) {
		return "", apperrors.TokenRevoked()
	}

	claims, err := s.jwtManager.Validate(token)
	if err != nil {
		return "", err
	}

	return claims.UserID, nil
}

// Revoke invalidates the session token immediately. Revoking an unknown or
// already-revoked token is a no-op.
func (s *AuthService) Revoke(_ context.Context, token string) {
	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	// Use the token's own expiry when it parses, so the ledger entry can be
	// dropped once the token would have died anyway.
	if claims, err := s.jwtManager.Validate(token); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	s.ledger.Revoke(token, expiresAt)
}
