package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"marketplace/internal/auth"
)

// RevokeAccessToken commits before returning; a duplicate jti is left untouched.
func (s *Store) RevokeAccessToken(ctx context.Context, entry auth.RevocationEntry) error {
	jti := strings.TrimSpace(entry.JTI)
	if jti == "" {
		return auth.ErrInvalidInput
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into jwt_blacklist (jti, reason, created_at, expires_at)
		values ($1, $2, $3, $4)
		on conflict (jti) do nothing
	`, jti, nullIfEmpty(entry.Reason), createdAt, nullTime(entry.ExpiresAt))
	return err
}

func (s *Store) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from jwt_blacklist where jti = $1)`, jti).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// RevocationReason returns the reason stored for jti, empty when none was given.
func (s *Store) RevocationReason(ctx context.Context, jti string) (string, error) {
	var reason string
	err := s.db.QueryRowContext(ctx, `select coalesce(reason, '') from jwt_blacklist where jti = $1`, jti).Scan(&reason)
	if errors.Is(err, sql.ErrNoRows) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return reason, nil
}

// PurgeRevocations drops entries whose access token has expired on its own. Entries
// with unknown expiry are kept.
func (s *Store) PurgeRevocations(ctx context.Context, now time.Time) (int64, error) {
	return s.execCount(ctx, `delete from jwt_blacklist where expires_at < $1`, now)
}
