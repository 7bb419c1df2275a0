package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"marketplace/internal/audit"
	"marketplace/internal/ids"
)

// Registration is the self-service sign-up payload.
type Registration struct {
	Email           string
	Username        string
	FirstName       string
	LastName        string
	Password        string
	PasswordConfirm string
}

// Registrar creates active accounts with argon2id password hashes.
type Registrar struct {
	users UserStore
	s     settings
}

// NewRegistrar constructs a registrar backed by users.
func NewRegistrar(users UserStore, opts ...Option) (*Registrar, error) {
	if users == nil {
		return nil, errors.New("auth: registrar requires a user store")
	}
	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Registrar{users: users, s: s}, nil
}

// Register validates reg and stores the new user. A taken email yields ErrEmailTaken.
func (r *Registrar) Register(ctx context.Context, reg Registration) (*User, error) {
	email := normalizeEmail(reg.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	username := strings.TrimSpace(reg.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if reg.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if reg.Password != reg.PasswordConfirm {
		return nil, fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}
	now := r.s.now().UTC()
	user := &User{
		ID:           ids.NewAt(now),
		Email:        email,
		Username:     username,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = r.s.storeCall(ctx, "create_user", func(ctx context.Context) error {
		return r.users.CreateUser(ctx, user)
	})
	if errors.Is(err, ErrConflict) && !errors.Is(err, ErrEmailTaken) {
		err = ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "auth.registered", map[string]any{"user_id": user.ID})
	return user, nil
}
