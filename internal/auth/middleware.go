package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-uploader/internal/auth/jwt"
	httperrors "github.com/gokatarajesh/quiz-uploader/pkg/http/errors"
)

type claimsKey struct{}

// ClaimsFromContext returns the session claims injected by RequireSession.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*jwt.Claims)
	return claims, ok && claims != nil
}

// BearerToken extracts the token from an Authorization header, falling
// back to the token query parameter browsers use for WebSockets.
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// RequireSession rejects requests without a valid session token and
// injects the claims into the request context.
func RequireSession(authSvc *Service, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
				return
			}

			claims, err := authSvc.ValidateToken(token)
			if err != nil {
				logger.Debug().Err(err).Msg("token validation failed")
				code := httperrors.ErrCodeInvalidToken
				if errors.Is(err, jwt.ErrExpiredToken) {
					code = httperrors.ErrCodeTokenExpired
				}
				httperrors.RespondUnauthorized(w, code, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
