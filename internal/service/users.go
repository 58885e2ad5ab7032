package service

import (
	"context"
	"errors"
	"log/slog"
	"subscriber/internal/auth"
	"subscriber/internal/models"
	"subscriber/internal/storage"
	"sync"
	"time"
)

// dummyHash is verified against when a login names an unknown email, so both
// failure paths cost one argon2 evaluation.
var dummyHash = sync.OnceValue(func() string {
	h, _ := auth.HashPassword("not-a-real-password")
	return h
})

// UserService handles user registration, login and CRUD
type UserService struct {
	storage storage.Storage
	tokens  TokenIssuer
	now     func() time.Time
}

// NewUserService creates a user service. tokens may be nil when login is not offered.
func NewUserService(store storage.Storage, tokens TokenIssuer) *UserService {
	return &UserService{
		storage: store,
		tokens:  tokens,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register validates and stores a new user
func (s *UserService) Register(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	req.Name = auth.Sanitize(req.Name)
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid user", err)
	}
	req.Normalize()

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, NewInternalError("failed to hash password", err)
	}

	user := models.NewUser(req.Name, req.Email, hash)
	user.CreatedAt = s.now()
	user.UpdatedAt = user.CreatedAt

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, NewConflictError("a user with this email already exists")
		}
		return nil, NewInternalError("failed to create user", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and returns a signed token
func (s *UserService) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	if s.tokens == nil {
		return nil, NewNotFoundError("login is not enabled")
	}
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid credentials", err)
	}
	req.Normalize()

	user, err := s.storage.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			auth.VerifyPassword(req.Password, dummyHash())
			return nil, NewUnauthorizedError("invalid email or password")
		}
		return nil, NewInternalError("failed to look up user", err)
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, NewInternalError("stored password hash is invalid", err)
	}
	if !ok {
		slog.WarnContext(ctx, "Failed login attempt", "user_id", user.ID)
		return nil, NewUnauthorizedError("invalid email or password")
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, NewInternalError("failed to issue token", err)
	}

	return &models.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.ToResponse(),
	}, nil
}

// List returns all users, newest first
func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, NewInternalError("failed to list users", err)
	}
	return users, nil
}

// Get returns the user with the given ID
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	if !models.IsValidUUID(id) {
		return nil, NewInvalidRequestError("user id must be a UUID", nil)
	}

	user, err := s.storage.GetUser(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, err)
	}
	return user, nil
}

// Update applies the non-nil fields of req. An empty update returns the user unchanged.
func (s *UserService) Update(ctx context.Context, id string, req *models.UpdateUserRequest) (*models.User, error) {
	if !models.IsValidUUID(id) {
		return nil, NewInvalidRequestError("user id must be a UUID", nil)
	}
	if req.Name != nil {
		name := auth.Sanitize(*req.Name)
		req.Name = &name
	}
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid user update", err)
	}
	req.Normalize()

	user, err := s.storage.GetUser(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, err)
	}
	if req.IsEmpty() {
		return user, nil
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	user.UpdatedAt = s.now()

	if err := s.storage.UpdateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, NewConflictError("a user with this email already exists")
		case errors.Is(err, storage.ErrNotFound):
			return nil, NewUserNotFoundError(id)
		default:
			return nil, NewInternalError("failed to update user", err)
		}
	}
	return user, nil
}

// Delete removes the user with the given ID
func (s *UserService) Delete(ctx context.Context, id string) error {
	if !models.IsValidUUID(id) {
		return NewInvalidRequestError("user id must be a UUID", nil)
	}
	if err := s.storage.DeleteUser(ctx, id); err != nil {
		return s.lookupError(id, err)
	}
	slog.InfoContext(ctx, "User deleted", "user_id", id)
	return nil
}

func (s *UserService) lookupError(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewUserNotFoundError(id)
	}
	return NewInternalError("failed to access user", err)
}
