package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"smartattend/internal/apperr"
	"smartattend/internal/auth"
)

// Users is the repository slice the service needs.
type Users interface {
	Create(ctx context.Context, u User) error
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
}

// TokenConfig carries the signing parameters for issued tokens.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service registers and authenticates users.
type Service struct {
	users  Users
	tokens TokenConfig
}

// NewService wires an identity service.
func NewService(users Users, tokens TokenConfig) *Service {
	return &Service{users: users, tokens: tokens}
}

// Register creates an account and returns its first token pair.
func (s *Service) Register(ctx context.Context, email, name, password, role string) (User, auth.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || name == "" {
		return User{}, auth.TokenPair{}, apperr.E(apperr.KindValidation, "email and name are required")
	}
	if len(password) < 8 {
		return User{}, auth.TokenPair{}, apperr.E(apperr.KindValidation, "password must be at least 8 characters")
	}
	parsedRole, err := auth.ParseRole(role)
	if err != nil {
		return User{}, auth.TokenPair{}, apperr.E(apperr.KindValidation, "role must be STUDENT, TEACHER or ADMIN")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, auth.TokenPair{}, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}

	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         parsedRole,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return User{}, auth.TokenPair{}, err
	}

	pair, err := s.issue(u)
	if err != nil {
		return User{}, auth.TokenPair{}, err
	}
	return u, pair, nil
}

// Login exchanges credentials for a token pair. Wrong email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (User, auth.TokenPair, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return User{}, auth.TokenPair{}, apperr.E(apperr.KindAccessDenied, "invalid credentials")
		}
		return User{}, auth.TokenPair{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, auth.TokenPair{}, apperr.E(apperr.KindAccessDenied, "invalid credentials")
	}

	pair, err := s.issue(u)
	if err != nil {
		return User{}, auth.TokenPair{}, err
	}
	return u, pair, nil
}

// Profile returns the account behind an authenticated caller id.
func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *Service) issue(u User) (auth.TokenPair, error) {
	pair, err := auth.Issue(u.ID, u.Role, s.tokens.Issuer, s.tokens.SigningKey, s.tokens.AccessTTL, s.tokens.RefreshTTL)
	if err != nil {
		return auth.TokenPair{}, apperr.Wrap(apperr.KindInternal, "issue tokens", err)
	}
	return pair, nil
}
