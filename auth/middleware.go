package auth

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"net/http"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// RequireBearer rejects requests without a valid "Authorization: Bearer" token
// and injects the user identity into the request context for handlers.
func RequireBearer(authenticator contract.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "authorization token is missing", http.StatusUnauthorized)
				return
			}

			userID, ok := authenticator.Verify(header)
			if !ok {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the identity injected by RequireBearer.
func UserIDFromContext(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(UserIDKey).(domain.UserID)
	return userID, ok
}
