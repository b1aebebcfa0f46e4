package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tasktide/tasktide-backend/api/responses"
	pkgerrors "github.com/tasktide/tasktide-backend/pkg/errors"
	"github.com/tasktide/tasktide-backend/pkg/logger"
)

// TokenVerifier validates an access token and returns the user ID it carries.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type principalKey struct{}

// Auth extracts the bearer token, verifies it and stores the user ID in the
// request context. Requests without a valid token are rejected.
func Auth(verifier TokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing access token"))
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token"))
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, userID)
			if logg != nil {
				ctx = logg.WithActorID(ctx, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Principal returns the authenticated user ID, if any.
func Principal(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(principalKey{}).(string)
	return userID, ok && userID != ""
}

// bearerToken pulls the access token out of the Authorization header. The
// Bearer prefix is optional and matched case-insensitively.
func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
