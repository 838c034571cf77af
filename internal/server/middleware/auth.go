package middleware

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// Authenticator validates a raw Authorization header value and returns the
// claims it carries. The auth service implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (domain.Claims, error)
}

type claimsKey struct{}

// RequireAuth returns middleware that validates the bearer token on every
// request and stores the resulting claims in the request context. Token
// rejections become 401 carrying the rejection reason; anything else is an
// infrastructure failure and becomes 500.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if domain.TokenRejection(err) {
					writeAuthError(w, http.StatusUnauthorized, err.Error())
				} else {
					writeAuthError(w, http.StatusInternalServerError, "internal server error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom returns the claims RequireAuth stored in the context. The
// boolean is false on routes that did not pass through RequireAuth.
func ClaimsFrom(ctx context.Context) (domain.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(domain.Claims)
	return claims, ok
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
