package common

import "context"

// Principal identifies the authenticated caller of an API operation.
// Subject is the owner id recorded on subscriptions.
type Principal struct {
	Subject string
	Name    string
	Admin   bool
}

type principalKey struct{}

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the principal from the context, or nil when the
// request was not authenticated.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// Owns reports whether the principal may act on a resource owned by ownerID.
func (p *Principal) Owns(ownerID string) bool {
	if p == nil {
		return false
	}
	return p.Admin || p.Subject == ownerID
}
