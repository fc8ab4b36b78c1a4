package middleware

import (
	"context"
	"net/http"
	"strings"

	"adserver/internal/domain"
	"adserver/internal/service"
	"adserver/pkg/utils"
)

type contextKey string

const userContextKey contextKey = "authenticated-user"

// UserFromContext returns the user stored by Authenticator.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	return user, ok
}

// Authenticator requires a valid bearer token and stores the resolved
// user on the request context.
func Authenticator(auth service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			user, err := auth.ValidateToken(r.Context(), token)
			if err != nil {
				utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
