package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/ids"
)

const refreshColumns = `id, user_id, family_id, token_hash, coalesce(replaced_by, ''), created_at, expires_at, revoked, revoked_at, coalesce(ip, ''), coalesce(user_agent, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateRefreshToken(ctx context.Context, tok *auth.RefreshToken) error {
	return insertRefresh(ctx, s.db, tok)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefresh(ctx context.Context, db execer, tok *auth.RefreshToken) error {
	if tok.TokenHash == "" || tok.UserID == "" {
		return fmt.Errorf("%w: refresh token requires hash and user", auth.ErrInvalidInput)
	}
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	if tok.FamilyID == "" {
		tok.FamilyID = tok.ID
	}
	_, err := db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, family_id, token_hash, created_at, expires_at, ip, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tok.ID, tok.UserID, tok.FamilyID, tok.TokenHash, tok.CreatedAt, tok.ExpiresAt, nullIfEmpty(tok.IP), nullIfEmpty(tok.UserAgent))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) FindRefreshToken(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `select `+refreshColumns+` from refresh_tokens where token_hash = $1`, hash)
	tok, err := scanRefresh(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrRefreshNotFound
	}
	return tok, err
}

// RotateRefreshToken locks the presented row so that concurrent rotations of the
// same secret serialise; the loser sees the row already revoked.
func (s *Store) RotateRefreshToken(ctx context.Context, hash string, now time.Time, next *auth.RefreshToken) (*auth.RefreshToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanRefresh(tx.QueryRowContext(ctx,
		`select `+refreshColumns+` from refresh_tokens where token_hash = $1 for update`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrRefreshNotFound
	}
	if err != nil {
		return nil, err
	}
	if cur.Revoked {
		return cur, auth.ErrRefreshRevoked
	}
	if cur.Expired(now) {
		return cur, auth.ErrRefreshExpired
	}

	if next.ID == "" {
		next.ID = ids.New()
	}
	next.UserID = cur.UserID
	next.FamilyID = cur.FamilyID
	if _, err := tx.ExecContext(ctx, `
		update refresh_tokens set revoked = true, revoked_at = $2, replaced_by = $3
		where id = $1
	`, cur.ID, now, next.ID); err != nil {
		return nil, err
	}
	if err := insertRefresh(ctx, tx, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	revokedAt := now
	cur.Revoked = true
	cur.RevokedAt = &revokedAt
	cur.ReplacedBy = next.ID
	return cur, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, userID, hash string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true, revoked_at = $3
		where token_hash = $1 and user_id = $2 and not revoked
	`, hash, userID, now)
	return err
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	return s.execCount(ctx, `
		update refresh_tokens set revoked = true, revoked_at = $2
		where user_id = $1 and not revoked
	`, userID, now)
}

func (s *Store) RevokeRefreshFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	return s.execCount(ctx, `
		update refresh_tokens set revoked = true, revoked_at = $2
		where family_id = $1 and not revoked
	`, familyID, now)
}

func (s *Store) PurgeRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	return s.execCount(ctx, `delete from refresh_tokens where expires_at < $1`, before)
}

func (s *Store) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRefresh(row rowScanner) (*auth.RefreshToken, error) {
	var (
		tok       auth.RefreshToken
		revokedAt sql.NullTime
	)
	if err := row.Scan(&tok.ID, &tok.UserID, &tok.FamilyID, &tok.TokenHash, &tok.ReplacedBy,
		&tok.CreatedAt, &tok.ExpiresAt, &tok.Revoked, &revokedAt, &tok.IP, &tok.UserAgent); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		tok.RevokedAt = &at
	}
	return &tok, nil
}
