package realtime

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tasktide/tasktide-backend/pkg/config"
)

// TokenVerifier validates the HMAC-signed access tokens presented on the
// WebSocket handshake.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(cfg config.JWTConfig) *TokenVerifier {
	return &TokenVerifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer}
}

// Verify checks signature, expiry and issuer and returns the subject, which
// carries the user ID.
func (v *TokenVerifier) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(v.issuer))
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}
