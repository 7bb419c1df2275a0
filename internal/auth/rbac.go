package auth

import (
	"context"
	"errors"
	"strings"
)

// Evaluator answers permission checks from role memberships and grants.
type Evaluator struct {
	store RBACStore
	s     settings
}

// NewEvaluator constructs an evaluator reading from store.
func NewEvaluator(store RBACStore, opts ...Option) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("auth: evaluator requires an rbac store")
	}
	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Evaluator{store: store, s: s}, nil
}

// Authorize reports whether p holds the permission code. Superusers hold every code
// without a lookup; codes match by exact string equality.
func (e *Evaluator) Authorize(ctx context.Context, p Principal, code string) (bool, error) {
	if p.Superuser {
		return true, nil
	}
	if p.ID == "" || strings.TrimSpace(code) == "" {
		return false, nil
	}

	var roles []string
	if err := e.s.storeCall(ctx, "memberships_of", func(ctx context.Context) error {
		var err error
		roles, err = e.store.MembershipsOf(ctx, p.ID)
		return err
	}); err != nil {
		return false, err
	}
	for _, roleID := range roles {
		var grants []string
		if err := e.s.storeCall(ctx, "grants_of", func(ctx context.Context) error {
			var err error
			grants, err = e.store.GrantsOf(ctx, roleID)
			return err
		}); err != nil {
			return false, err
		}
		for _, g := range grants {
			if g == code {
				return true, nil
			}
		}
	}
	return false, nil
}

// Require returns ErrPermissionDenied unless p holds code.
func (e *Evaluator) Require(ctx context.Context, p Principal, code string) error {
	ok, err := e.Authorize(ctx, p, code)
	if err != nil {
		return err
	}
	if !ok {
		return recordOutcome(ctx, e.s, "authorize", ErrPermissionDenied, map[string]any{"user_id": p.ID, "permission": code})
	}
	return nil
}
