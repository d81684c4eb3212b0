package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/estateauth"
)

// Authenticator is the Engine surface the guards need.
type Authenticator interface {
	Authenticate(ctx context.Context, token string, req estateauth.Requirement) (*estateauth.Identity, error)
}

type identityContextKey struct{}

// IdentityFromContext returns the identity a guard attached to ctx. An
// optional route without a token yields an anonymous identity.
func IdentityFromContext(ctx context.Context) (*estateauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*estateauth.Identity)
	return id, ok
}

// ContextWithIdentity attaches id to ctx the same way the guards do.
func ContextWithIdentity(ctx context.Context, id *estateauth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// Authenticate resolves the request's token against req without writing a
// response.
func Authenticate(engine Authenticator, r *http.Request, req estateauth.Requirement) (*estateauth.Identity, error) {
	if engine == nil {
		return nil, estateauth.ErrEngineNotReady
	}
	token, _ := TokenFromRequest(r)
	return engine.Authenticate(r.Context(), token, req)
}

// Guard returns middleware enforcing req. The wrapped handler runs only
// after authentication and authorization have both succeeded.
func Guard(engine Authenticator, req estateauth.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := Authenticate(engine, r, req)
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// WithAuth wraps next with req.
func WithAuth(engine Authenticator, next http.Handler, req estateauth.Requirement) http.Handler {
	return Guard(engine, req)(next)
}

// WithAdmin wraps next so that only live admin accounts reach it.
func WithAdmin(engine Authenticator, next http.Handler) http.Handler {
	return Guard(engine, estateauth.AdminRequirement())(next)
}
