package auth

import "time"

// Principal is the identity resolved from a validated access token.
type Principal struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Active    bool   `json:"active"`
	Superuser bool   `json:"superuser"`
}

// User is the credential store row behind a principal.
type User struct {
	ID           string
	Email        string
	Username     string
	FirstName    string
	LastName     string
	PasswordHash string
	Active       bool
	Superuser    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal projects the user onto the read-only identity used by the core.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Email: u.Email, Active: u.Active, Superuser: u.Superuser}
}

// ClientMeta is optional request metadata recorded on refresh tokens.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// TokenPair is returned by login and refresh. RefreshToken is the raw secret and is
// only ever handed out here.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires"`
}

// RefreshToken represents a persisted refresh token. Only the hash of the secret is kept.
type RefreshToken struct {
	ID         string
	UserID     string
	FamilyID   string
	TokenHash  string
	ReplacedBy string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	IP         string
	UserAgent  string
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Rotated reports whether the token was revoked by being exchanged for a successor.
func (t *RefreshToken) Rotated() bool {
	return t.Revoked && t.ReplacedBy != ""
}

// RevocationEntry blacklists an access token by its jti.
type RevocationEntry struct {
	JTI       string
	Reason    string
	CreatedAt time.Time
	// ExpiresAt is the natural expiry of the revoked token; zero means unknown.
	ExpiresAt time.Time
}

// Role groups permissions.
type Role struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Permission is an opaque capability code such as "product.create".
type Permission struct {
	ID          string
	Code        string
	Description string
	CreatedAt   time.Time
}

// Assignment gives a user a role.
type Assignment struct {
	UserID    string
	RoleID    string
	CreatedAt time.Time
}

// RolePermission links roles to permissions.
type RolePermission struct {
	RoleID       string
	PermissionID string
}
