package auth

import (
	"context"
	"time"
)

// UserStore is the credential store collaborator. Lookups return ErrNotFound when
// the user does not exist.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	SetUserActive(ctx context.Context, id string, active bool) error
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, tok *RefreshToken) error
	// FindRefreshToken returns ErrRefreshNotFound when no row has the hash.
	FindRefreshToken(ctx context.Context, hash string) (*RefreshToken, error)
	// RotateRefreshToken atomically revokes the active row identified by hash and
	// inserts next in its place. next inherits UserID and FamilyID from the current
	// row. On ErrRefreshRevoked or ErrRefreshExpired the current row is returned too.
	RotateRefreshToken(ctx context.Context, hash string, now time.Time, next *RefreshToken) (*RefreshToken, error)
	// RevokeRefreshToken revokes the row only if it belongs to userID. Unknown or
	// already revoked rows are not an error.
	RevokeRefreshToken(ctx context.Context, userID, hash string, now time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error)
	RevokeRefreshFamily(ctx context.Context, familyID string, now time.Time) (int64, error)
	PurgeRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

// RevocationRegistry stores blacklisted access token identifiers.
type RevocationRegistry interface {
	// RevokeAccessToken is idempotent: inserting a known jti succeeds.
	RevokeAccessToken(ctx context.Context, entry RevocationEntry) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	PurgeRevocations(ctx context.Context, now time.Time) (int64, error)
}

// RevocationReasons is implemented by registries that can say why a jti was
// blacklisted. The authenticator adds the reason to its denial audit when present.
type RevocationReasons interface {
	RevocationReason(ctx context.Context, jti string) (string, error)
}

// RBACStore is the read side of role configuration.
type RBACStore interface {
	MembershipsOf(ctx context.Context, userID string) ([]string, error)
	GrantsOf(ctx context.Context, roleID string) ([]string, error)
}

// RBACAdmin is the administrative write side of role configuration. CreateRole
// assigns an ID when the role has none; grants and assignments are idempotent.
type RBACAdmin interface {
	CreateRole(ctx context.Context, role *Role) error
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	EnsurePermissions(ctx context.Context, perms []Permission) error
	GrantPermission(ctx context.Context, roleID, code string) error
	AssignRole(ctx context.Context, userID, roleID string) error
}
