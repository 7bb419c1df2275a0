package auth

import (
	"context"
	"errors"
	"strings"
)

// OutcomeKind classifies the result of authenticating a request.
type OutcomeKind int

const (
	// OutcomeAnonymous means no bearer credentials were offered; public endpoints may proceed.
	OutcomeAnonymous OutcomeKind = iota
	OutcomeAuthenticated
	OutcomeDenied
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of Authenticate.
type Outcome struct {
	Kind      OutcomeKind
	Principal Principal
	Reason    Reason
	Claims    *AccessClaims
	// Token is the raw bearer token, kept so logout can revoke it.
	Token string
}

// Err returns the denial as an error, or nil for other kinds.
func (o Outcome) Err() error {
	if o.Kind != OutcomeDenied {
		return nil
	}
	return o.Reason.Err()
}

// Authenticator is the per-request gate. It never caches and never mutates state.
type Authenticator struct {
	codec       *TokenCodec
	revocations RevocationRegistry
	users       UserStore
	s           settings
}

// NewAuthenticator wires the gate to the codec, revocation registry and credential store.
func NewAuthenticator(codec *TokenCodec, revocations RevocationRegistry, users UserStore, opts ...Option) (*Authenticator, error) {
	if codec == nil || revocations == nil || users == nil {
		return nil, errors.New("auth: authenticator requires codec, revocation registry and user store")
	}
	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Authenticator{codec: codec, revocations: revocations, users: users, s: s}, nil
}

// Authenticate resolves an Authorization header value. The returned error is set
// only when a store could not answer; denials are reported through the Outcome.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Outcome, error) {
	parts := strings.Fields(header)
	if len(parts) == 0 || !strings.EqualFold(parts[0], "Bearer") {
		return Outcome{Kind: OutcomeAnonymous}, nil
	}
	if len(parts) == 1 {
		return a.deny(ctx, ErrMissingCredentials, nil, nil), nil
	}
	if len(parts) > 2 {
		return a.deny(ctx, ErrMalformedToken, nil, nil), nil
	}
	token := parts[1]

	claims, err := a.codec.Decode(token)
	if err != nil {
		return a.deny(ctx, err, nil, nil), nil
	}

	if claims.ID != "" {
		var revoked bool
		err := a.s.storeCall(ctx, "is_access_token_revoked", func(ctx context.Context) error {
			var err error
			revoked, err = a.revocations.IsAccessTokenRevoked(ctx, claims.ID)
			return err
		})
		if err != nil {
			return Outcome{}, recordOutcome(ctx, a.s, "authenticate", err, nil)
		}
		if revoked {
			var extra map[string]any
			if why := a.revocationReason(ctx, claims.ID); why != "" {
				extra = map[string]any{"revocation_reason": why}
			}
			return a.deny(ctx, ErrTokenRevoked, claims, extra), nil
		}
	}

	var user *User
	err = a.s.storeCall(ctx, "find_user_by_id", func(ctx context.Context) error {
		var err error
		user, err = a.users.FindUserByID(ctx, claims.UserID)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return a.deny(ctx, ErrSubjectNotFound, claims, nil), nil
	case err != nil:
		return Outcome{}, recordOutcome(ctx, a.s, "authenticate", err, nil)
	case !user.Active:
		return a.deny(ctx, ErrInactiveAccount, claims, nil), nil
	}

	_ = recordOutcome(ctx, a.s, "authenticate", nil, nil)
	return Outcome{
		Kind:      OutcomeAuthenticated,
		Principal: user.Principal(),
		Claims:    claims,
		Token:     token,
	}, nil
}

// revocationReason returns "" when the registry cannot say or the lookup fails.
func (a *Authenticator) revocationReason(ctx context.Context, jti string) string {
	reasons, ok := a.revocations.(RevocationReasons)
	if !ok {
		return ""
	}
	var why string
	err := a.s.storeCall(ctx, "revocation_reason", func(ctx context.Context) error {
		var err error
		why, err = reasons.RevocationReason(ctx, jti)
		return err
	})
	if err != nil {
		return ""
	}
	return why
}

func (a *Authenticator) deny(ctx context.Context, err error, claims *AccessClaims, extra map[string]any) Outcome {
	reason, ok := ReasonOf(err)
	if !ok {
		reason = ReasonMalformedToken
		err = ErrMalformedToken
	}
	fields := map[string]any{}
	if claims != nil {
		fields["user_id"] = claims.UserID
		fields["jti"] = claims.ID
	}
	for k, v := range extra {
		fields[k] = v
	}
	_ = recordOutcome(ctx, a.s, "authenticate", err, fields)
	return Outcome{Kind: OutcomeDenied, Reason: reason, Claims: claims}
}
