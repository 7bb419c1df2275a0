package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace/internal/audit"
	"marketplace/internal/ids"
	"marketplace/internal/obs"
)

// SessionManager drives login, refresh rotation, logout and account deactivation.
type SessionManager struct {
	users       UserStore
	refresh     RefreshTokenStore
	revocations RevocationRegistry
	codec       *TokenCodec
	hasher      RefreshHasher
	s           settings
}

// NewSessionManager wires the session state machine to its stores.
func NewSessionManager(users UserStore, refresh RefreshTokenStore, revocations RevocationRegistry, codec *TokenCodec, opts ...Option) (*SessionManager, error) {
	if users == nil || refresh == nil || revocations == nil || codec == nil {
		return nil, errors.New("auth: session manager requires user, refresh, revocation stores and a codec")
	}
	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &SessionManager{
		users:       users,
		refresh:     refresh,
		revocations: revocations,
		codec:       codec,
		hasher:      NewRefreshHasher(s.pepper),
		s:           s,
	}, nil
}

// Login authenticates credentials and opens a new refresh lineage.
func (m *SessionManager) Login(ctx context.Context, email, password string, meta ClientMeta) (TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, m.outcome(ctx, "login", ErrInvalidCredentials, map[string]any{"email": email})
	}

	var user *User
	err := m.s.storeCall(ctx, "find_user_by_email", func(ctx context.Context) error {
		var err error
		user, err = m.users.FindUserByEmail(ctx, email)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		_, _ = m.s.verifyPassword(dummyPasswordHash(), password)
		return TokenPair{}, m.outcome(ctx, "login", ErrInvalidCredentials, map[string]any{"email": email})
	case err != nil:
		return TokenPair{}, m.outcome(ctx, "login", err, nil)
	}

	ok, err := m.s.verifyPassword(user.PasswordHash, password)
	if err != nil {
		m.s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored password hash is unreadable")
		ok = false
	}
	if !ok {
		return TokenPair{}, m.outcome(ctx, "login", ErrInvalidCredentials, map[string]any{"user_id": user.ID})
	}
	// Checked after the password so that a wrong guess cannot learn the account state.
	if !user.Active {
		return TokenPair{}, m.outcome(ctx, "login", ErrInactiveAccount, map[string]any{"user_id": user.ID})
	}

	secret, row, err := m.newRefreshRow(user.ID, "", meta)
	if err != nil {
		return TokenPair{}, err
	}
	// A lineage is named after its first row.
	row.FamilyID = row.ID
	if err := m.s.storeCall(ctx, "create_refresh_token", func(ctx context.Context) error {
		return m.refresh.CreateRefreshToken(ctx, row)
	}); err != nil {
		return TokenPair{}, m.outcome(ctx, "login", err, nil)
	}

	pair, jti, err := m.pair(user.Principal(), secret, row)
	if err != nil {
		return TokenPair{}, err
	}
	_ = m.outcome(ctx, "login", nil, nil)
	_ = audit.LogEvent(ctx, "auth.login.succeeded", map[string]any{
		"user_id":   user.ID,
		"family_id": row.FamilyID,
		"jti":       jti,
		"ip":        meta.IP,
	})
	return pair, nil
}

// ValidateRefresh resolves a raw refresh secret to its active row without rotating it.
func (m *SessionManager) ValidateRefresh(ctx context.Context, raw string) (*RefreshToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrRefreshNotFound
	}
	var tok *RefreshToken
	err := m.s.storeCall(ctx, "find_refresh_token", func(ctx context.Context) error {
		var err error
		tok, err = m.refresh.FindRefreshToken(ctx, m.hasher.Hash(raw))
		return err
	})
	switch {
	case err != nil:
		return nil, err
	case tok.Revoked:
		return nil, ErrRefreshRevoked
	case tok.Expired(m.s.now()):
		return nil, ErrRefreshExpired
	}
	return tok, nil
}

// Refresh exchanges a raw refresh secret for a new pair. The presented row is
// revoked in the same atomic step that creates its successor.
func (m *SessionManager) Refresh(ctx context.Context, raw string, meta ClientMeta) (TokenPair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TokenPair{}, m.outcome(ctx, "refresh", ErrRefreshNotFound, nil)
	}

	secret, next, err := m.newRefreshRow("", "", meta)
	if err != nil {
		return TokenPair{}, err
	}
	var current *RefreshToken
	err = m.s.storeCall(ctx, "rotate_refresh_token", func(ctx context.Context) error {
		var err error
		current, err = m.refresh.RotateRefreshToken(ctx, m.hasher.Hash(raw), next.CreatedAt, next)
		return err
	})
	if err != nil {
		fields := map[string]any{}
		if current != nil {
			fields["user_id"] = current.UserID
			fields["family_id"] = current.FamilyID
			fields["token_id"] = current.ID
		}
		if errors.Is(err, ErrRefreshRevoked) && m.reused(current) {
			if rerr := m.revokeFamily(ctx, current); rerr != nil {
				return TokenPair{}, m.outcome(ctx, "refresh", rerr, nil)
			}
		}
		return TokenPair{}, m.outcome(ctx, "refresh", err, fields)
	}

	user, err := m.findUser(ctx, next.UserID)
	if err == nil && !user.Active {
		err = ErrInactiveAccount
	}
	if err != nil {
		if IsDenial(err) {
			if _, rerr := m.revokeUser(ctx, next.UserID); rerr != nil {
				return TokenPair{}, m.outcome(ctx, "refresh", rerr, nil)
			}
		}
		return TokenPair{}, m.outcome(ctx, "refresh", err, map[string]any{"user_id": next.UserID})
	}

	pair, jti, err := m.pair(user.Principal(), secret, next)
	if err != nil {
		return TokenPair{}, err
	}
	_ = m.outcome(ctx, "refresh", nil, nil)
	_ = audit.LogEvent(ctx, "auth.refresh.succeeded", map[string]any{
		"user_id":   user.ID,
		"family_id": next.FamilyID,
		"token_id":  next.ID,
		"jti":       jti,
	})
	return pair, nil
}

// Logout revokes the caller's refresh token and blacklists the access token when
// either is supplied. Repeating a logout succeeds.
func (m *SessionManager) Logout(ctx context.Context, p Principal, rawRefresh, accessToken string) error {
	if strings.TrimSpace(p.ID) == "" {
		return m.outcome(ctx, "logout", ErrMissingCredentials, nil)
	}
	now := m.s.now().UTC()

	if raw := strings.TrimSpace(rawRefresh); raw != "" {
		hash := m.hasher.Hash(raw)
		if err := m.s.storeCall(ctx, "revoke_refresh_token", func(ctx context.Context) error {
			return m.refresh.RevokeRefreshToken(ctx, p.ID, hash, now)
		}); err != nil {
			return m.outcome(ctx, "logout", err, nil)
		}
	}

	jti, err := m.blacklist(ctx, p, accessToken, "logout", now)
	if err != nil {
		return m.outcome(ctx, "logout", err, nil)
	}
	_ = m.outcome(ctx, "logout", nil, nil)
	_ = audit.LogEvent(ctx, "auth.logout", map[string]any{"user_id": p.ID, "jti": jti})
	return nil
}

// Deactivate soft-deletes the principal, revokes every refresh token it owns and
// blacklists the presented access token.
func (m *SessionManager) Deactivate(ctx context.Context, p Principal, accessToken string) error {
	if strings.TrimSpace(p.ID) == "" {
		return m.outcome(ctx, "deactivate", ErrMissingCredentials, nil)
	}
	now := m.s.now().UTC()

	err := m.s.storeCall(ctx, "set_user_active", func(ctx context.Context) error {
		return m.users.SetUserActive(ctx, p.ID, false)
	})
	if errors.Is(err, ErrNotFound) {
		err = ErrSubjectNotFound
	}
	if err != nil {
		return m.outcome(ctx, "deactivate", err, map[string]any{"user_id": p.ID})
	}

	revoked, err := m.revokeUser(ctx, p.ID)
	if err != nil {
		return m.outcome(ctx, "deactivate", err, nil)
	}
	jti, err := m.blacklist(ctx, p, accessToken, "deactivated", now)
	if err != nil {
		return m.outcome(ctx, "deactivate", err, nil)
	}
	_ = m.outcome(ctx, "deactivate", nil, nil)
	_ = audit.LogEvent(ctx, "auth.account.deactivated", map[string]any{
		"user_id":        p.ID,
		"refresh_tokens": revoked,
		"jti":            jti,
	})
	return nil
}

func (m *SessionManager) newRefreshRow(userID, familyID string, meta ClientMeta) (string, *RefreshToken, error) {
	secret, err := GenerateRefreshSecret()
	if err != nil {
		return "", nil, err
	}
	now := m.s.now().UTC()
	return secret, &RefreshToken{
		ID:        ids.NewAt(now),
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: m.hasher.Hash(secret),
		CreatedAt: now,
		ExpiresAt: now.Add(m.s.refreshLifetime),
		IP:        strings.TrimSpace(meta.IP),
		UserAgent: strings.TrimSpace(meta.UserAgent),
	}, nil
}

func (m *SessionManager) pair(p Principal, secret string, row *RefreshToken) (TokenPair, string, error) {
	access, jti, exp, err := m.codec.Issue(p)
	if err != nil {
		return TokenPair{}, "", err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     secret,
		RefreshExpiresAt: row.ExpiresAt,
	}, jti, nil
}

func (m *SessionManager) findUser(ctx context.Context, id string) (*User, error) {
	var user *User
	err := m.s.storeCall(ctx, "find_user_by_id", func(ctx context.Context) error {
		var err error
		user, err = m.users.FindUserByID(ctx, id)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrSubjectNotFound
	}
	return user, err
}

func (m *SessionManager) revokeUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := m.s.storeCall(ctx, "revoke_user_refresh_tokens", func(ctx context.Context) error {
		var err error
		n, err = m.refresh.RevokeUserRefreshTokens(ctx, userID, m.s.now().UTC())
		return err
	})
	return n, err
}

// reused reports whether a rotated token was presented again after the grace
// window that absorbs concurrent refreshes of the same token.
func (m *SessionManager) reused(tok *RefreshToken) bool {
	if !m.s.reuseDetection || tok == nil || !tok.Rotated() {
		return false
	}
	if tok.RevokedAt == nil {
		return true
	}
	return m.s.now().Sub(*tok.RevokedAt) > m.s.reuseGrace
}

func (m *SessionManager) revokeFamily(ctx context.Context, tok *RefreshToken) error {
	var n int64
	err := m.s.storeCall(ctx, "revoke_refresh_family", func(ctx context.Context) error {
		var err error
		n, err = m.refresh.RevokeRefreshFamily(ctx, tok.FamilyID, m.s.now().UTC())
		return err
	})
	if err != nil {
		return err
	}
	m.s.log.Warn().
		Str("user_id", tok.UserID).
		Str("family_id", tok.FamilyID).
		Int64("revoked", n).
		Msg("rotated refresh token presented again; lineage revoked")
	_ = audit.LogEvent(ctx, "auth.refresh.reuse_detected", map[string]any{
		"user_id":   tok.UserID,
		"family_id": tok.FamilyID,
		"token_id":  tok.ID,
		"revoked":   n,
	})
	return nil
}

// blacklist records the jti of token when it decodes and belongs to p. Tokens that
// cannot be decoded are skipped; only store failures are returned.
func (m *SessionManager) blacklist(ctx context.Context, p Principal, token, reason string, now time.Time) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", nil
	}
	claims, err := m.codec.DecodeIgnoringExpiry(token)
	if err != nil {
		m.s.log.Warn().Err(err).Str("user_id", p.ID).Str("reason", reason).Msg("access token not blacklisted: undecodable")
		return "", nil
	}
	if claims.UserID != p.ID {
		m.s.log.Warn().Str("user_id", p.ID).Str("reason", reason).Msg("access token not blacklisted: subject mismatch")
		return "", nil
	}
	if claims.ID == "" {
		return "", nil
	}
	entry := RevocationEntry{
		JTI:       claims.ID,
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: claims.ExpiresAtTime(),
	}
	err = m.s.storeCall(ctx, "revoke_access_token", func(ctx context.Context) error {
		return m.revocations.RevokeAccessToken(ctx, entry)
	})
	return claims.ID, err
}

// outcome records metrics for op and audits denials. It returns err unchanged.
func (m *SessionManager) outcome(ctx context.Context, op string, err error, fields map[string]any) error {
	return recordOutcome(ctx, m.s, op, err, fields)
}

func recordOutcome(ctx context.Context, s settings, op string, err error, fields map[string]any) error {
	switch {
	case err == nil:
		obs.ObserveAuth(op, "success")
	case IsDenial(err):
		obs.ObserveAuth(op, "denied")
		reason, _ := ReasonOf(err)
		if fields == nil {
			fields = map[string]any{}
		}
		fields["reason"] = string(reason)
		_ = audit.LogEvent(ctx, "auth."+op+".denied", fields)
	default:
		obs.ObserveAuth(op, "error")
		s.log.Error().Err(err).Str("op", op).Msg("auth operation failed")
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
