// Package memory keeps every auth collaborator in process memory. It backs tests
// and single-node development setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/ids"
)

// Store implements the user, refresh token and RBAC stores behind one mutex.
type Store struct {
	mu sync.Mutex

	users   map[string]*auth.User
	byEmail map[string]string

	refresh map[string]*auth.RefreshToken

	roles       map[string]*auth.Role
	roleByName  map[string]string
	permissions map[string]auth.Permission
	grants      map[string]map[string]struct{}
	members     map[string]map[string]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]*auth.User),
		byEmail:     make(map[string]string),
		refresh:     make(map[string]*auth.RefreshToken),
		roles:       make(map[string]*auth.Role),
		roleByName:  make(map[string]string),
		permissions: make(map[string]auth.Permission),
		grants:      make(map[string]map[string]struct{}),
		members:     make(map[string]map[string]struct{}),
	}
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return fmt.Errorf("%w: email is required", auth.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return auth.ErrEmailTaken
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, exists := s.users[u.ID]; exists {
		return auth.ErrConflict
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
		u.UpdatedAt = u.CreatedAt
	}
	u.Email = email
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[email] = u.ID
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CreateRefreshToken(ctx context.Context, tok *auth.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertRefreshLocked(tok)
}

func (s *Store) insertRefreshLocked(tok *auth.RefreshToken) error {
	if tok.TokenHash == "" || tok.UserID == "" {
		return fmt.Errorf("%w: refresh token requires hash and user", auth.ErrInvalidInput)
	}
	if _, exists := s.refresh[tok.TokenHash]; exists {
		return auth.ErrConflict
	}
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	if tok.FamilyID == "" {
		tok.FamilyID = tok.ID
	}
	s.refresh[tok.TokenHash] = cloneRefresh(tok)
	return nil
}

func (s *Store) FindRefreshToken(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.refresh[hash]
	if !ok {
		return nil, auth.ErrRefreshNotFound
	}
	return cloneRefresh(tok), nil
}

func (s *Store) RotateRefreshToken(ctx context.Context, hash string, now time.Time, next *auth.RefreshToken) (*auth.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.refresh[hash]
	if !ok {
		return nil, auth.ErrRefreshNotFound
	}
	if cur.Revoked {
		return cloneRefresh(cur), auth.ErrRefreshRevoked
	}
	if cur.Expired(now) {
		return cloneRefresh(cur), auth.ErrRefreshExpired
	}
	if _, exists := s.refresh[next.TokenHash]; exists {
		return nil, auth.ErrConflict
	}
	if next.ID == "" {
		next.ID = ids.New()
	}
	next.UserID = cur.UserID
	next.FamilyID = cur.FamilyID
	if err := s.insertRefreshLocked(next); err != nil {
		return nil, err
	}
	revokedAt := now
	cur.Revoked = true
	cur.RevokedAt = &revokedAt
	cur.ReplacedBy = next.ID
	return cloneRefresh(cur), nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, userID, hash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.refresh[hash]
	if !ok || tok.UserID != userID || tok.Revoked {
		return nil
	}
	revokeLocked(tok, now)
	return nil
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	return s.revokeWhere(ctx, now, func(t *auth.RefreshToken) bool { return t.UserID == userID })
}

func (s *Store) RevokeRefreshFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	return s.revokeWhere(ctx, now, func(t *auth.RefreshToken) bool { return t.FamilyID == familyID })
}

func (s *Store) revokeWhere(ctx context.Context, now time.Time, match func(*auth.RefreshToken) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, tok := range s.refresh {
		if !tok.Revoked && match(tok) {
			revokeLocked(tok, now)
			n++
		}
	}
	return n, nil
}

func (s *Store) PurgeRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, tok := range s.refresh {
		if tok.ExpiresAt.Before(before) {
			delete(s.refresh, hash)
			n++
		}
	}
	return n, nil
}

// RefreshTokensOf lists the rows owned by userID ordered by creation.
func (s *Store) RefreshTokensOf(userID string) []auth.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.RefreshToken
	for _, tok := range s.refresh {
		if tok.UserID == userID {
			out = append(out, *cloneRefresh(tok))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func revokeLocked(tok *auth.RefreshToken, now time.Time) {
	at := now
	tok.Revoked = true
	tok.RevokedAt = &at
}

func cloneRefresh(t *auth.RefreshToken) *auth.RefreshToken {
	cp := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		cp.RevokedAt = &at
	}
	return &cp
}
