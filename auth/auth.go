// Package auth identifies callers of the orchestration runtime.
//
// A Principal travels in the request context. Tokens are Ed25519-signed JWTs;
// keys can be loaded from PEM files or generated for development.
package auth

import (
	"context"
	"errors"
)

// Roles a principal can hold.
const (
	RoleAgent    = "agent"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// ErrUnauthenticated is returned when the context carries no principal.
var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is an authenticated caller.
type Principal struct {
	Subject string `json:"sub"`
	BrandID string `json:"brand_id,omitempty"`
	Role    string `json:"role"`
}

// CanAccess reports whether p may act on brandID. Admins and brand-less
// operators reach every brand.
func (p Principal) CanAccess(brandID string) bool {
	if p.Role == RoleAdmin || p.BrandID == "" {
		return true
	}

	return p.BrandID == brandID
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.Subject == "" {
		return Principal{}, ErrUnauthenticated
	}

	return p, nil
}
