package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/guildhall/guildhall/internal/shared"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, email, displayName, passwordHash string) (User, error)
	ByID(ctx context.Context, id int64) (User, error)
	ByEmail(ctx context.Context, email string) (User, error)
	Deactivate(ctx context.Context, id int64) error
}

// Service wraps account business rules.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, email, displayName, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)
	if email == "" || displayName == "" {
		return User{}, errors.New("users: email and display name required")
	}
	if len(password) < 8 {
		return User{}, errors.New("users: password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.store.Create(ctx, email, displayName, string(hash))
}

// Authenticate validates email/password credentials. Every failure mode maps
// to ErrInvalidCredentials so callers cannot distinguish unknown accounts
// from wrong passwords.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.store.ByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Get fetches one account.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.store.ByID(ctx, id)
}

// Deactivate disables an account.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.store.Deactivate(ctx, id)
}
