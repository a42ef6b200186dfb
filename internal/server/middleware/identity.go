package middleware

import (
	"context"
	"net/http"

	"github.com/mlabs-tech/cryptarena-svm/internal/crypto"
)

type accountKey struct{}

// Identity returns middleware that verifies a participant token and stores
// the bound ledger account in the request context. A nil issuer disables
// participant authentication and requests pass through anonymously.
func Identity(issuer *crypto.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if issuer == nil {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing participant token")
				return
			}

			account, err := issuer.Verify(token)
			if err != nil {
				writeUnauthorized(w, "invalid participant token")
				return
			}

			ctx := context.WithValue(r.Context(), accountKey{}, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFrom returns the authenticated participant account, or "" when the
// request was not authenticated.
func AccountFrom(ctx context.Context) string {
	account, _ := ctx.Value(accountKey{}).(string)
	return account
}
