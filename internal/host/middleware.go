package host

import (
	"context"
	"log/slog"
	"net/http"

	"shop-miniapp/internal/model"
)

// contextKey is unexported to prevent collisions with other packages.
type contextKey struct{}

// identityContextKey stores the request's host identity.
var identityContextKey = contextKey{}

// Middleware parses the IdentityHeader and stores the identity in the request
// context. Missing or malformed headers fall back to the guest identity; the
// web view works for guests, it just cannot attribute orders.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := model.GuestIdentity()

			if header := r.Header.Get(IdentityHeader); header != "" {
				parsed, err := ParseIdentityHeader(header)
				if err != nil {
					logger.Warn("invalid identity header, using guest",
						slog.String("header", header),
						slog.String("error", err.Error()))
				} else {
					id = parsed
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the identity stored by Middleware, or the guest
// identity when there is none.
func IdentityFromContext(ctx context.Context) model.Identity {
	if id, ok := ctx.Value(identityContextKey).(model.Identity); ok {
		return id
	}
	return model.GuestIdentity()
}
