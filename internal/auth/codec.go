package auth

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errMissingSecret = errors.New("auth: signing secret is not configured")

// AccessClaims represents JWT claims carried by access tokens.
type AccessClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 access tokens with a process-wide secret.
type TokenCodec struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenCodec builds a codec. The secret is copied; callers may discard theirs.
func NewTokenCodec(secret []byte, opts ...Option) (*TokenCodec, error) {
	if len(bytes.TrimSpace(secret)) == 0 {
		return nil, errMissingSecret
	}
	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &TokenCodec{
		secret:   bytes.Clone(secret),
		issuer:   s.issuer,
		lifetime: s.accessLifetime,
		now:      s.now,
	}, nil
}

// Lifetime returns the fixed access token lifetime.
func (c *TokenCodec) Lifetime() time.Duration { return c.lifetime }

// Issue signs a fresh access token for the principal and returns it together with
// its jti and expiry.
func (c *TokenCodec) Issue(p Principal) (string, string, time.Time, error) {
	userID := strings.TrimSpace(p.ID)
	if userID == "" {
		return "", "", time.Time{}, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}

	// NumericDate has second precision; truncating first keeps exp == iat + lifetime.
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(c.lifetime)
	jti := uuid.NewString()
	claims := AccessClaims{
		UserID: userID,
		Email:  p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, jti, exp, nil
}

// Decode verifies signature and expiry. A token is expired from the instant
// now == exp onwards.
func (c *TokenCodec) Decode(token string) (*AccessClaims, error) {
	return c.decode(token, true)
}

// DecodeIgnoringExpiry verifies the signature only. It exists to recover the jti of
// a token the server is about to revoke and must never be used to grant access.
func (c *TokenCodec) DecodeIgnoringExpiry(token string) (*AccessClaims, error) {
	return c.decode(token, false)
}

func (c *TokenCodec) decode(token string, validate bool) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformedToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	}
	if validate {
		opts = append(opts, jwt.WithExpirationRequired())
		if c.issuer != "" {
			opts = append(opts, jwt.WithIssuer(c.issuer))
		}
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		// Signature is checked before claims, so an expired error implies a genuine token.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrMalformedToken
	}
	if !parsed.Valid {
		return nil, ErrMalformedToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// ExpiresAtTime returns the expiry claim or the zero time.
func (c *AccessClaims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
