package auth

import "context"

type principalKey struct{}
type accessTokenKey struct{}

// ContextWithPrincipal attaches the authenticated principal and the bearer token it
// was resolved from, so a later logout can revoke exactly that token.
func ContextWithPrincipal(ctx context.Context, principal Principal, token string) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, principal)
	if token != "" {
		ctx = context.WithValue(ctx, accessTokenKey{}, token)
	}
	return ctx
}

// PrincipalFromContext extracts the authenticated principal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.ID == "" {
		return Principal{}, false
	}
	return p, true
}

// AccessTokenFromContext returns the bearer token the principal was resolved from.
func AccessTokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(accessTokenKey{}).(string)
	return v
}
