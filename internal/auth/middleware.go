package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// Middleware authenticates every request and stores the caller identity in
// the request context.
func Middleware(verifier TokenVerifier, roles RoleConfig, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", err.Error()))
				return
			}

			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				if log != nil {
					log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				}
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "invalid token"))
				return
			}

			ctx := WithIdentity(r.Context(), claims.Identity(roles))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFrom returns the caller identity stored by Middleware.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	return identity, ok
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	identity, _ := IdentityFrom(ctx)
	return identity.UserID
}
