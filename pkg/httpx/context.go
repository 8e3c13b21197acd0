package httpx

import "context"

// Identity is the authenticated caller attached to a request by the session
// middleware.
type Identity struct {
	UserID    string
	Username  string
	Role      string
	SessionID string
}

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext returns the caller attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}
